/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payroute

import (
	"context"
	"embed"
	"sort"
	"time"

	"github.com/blnkfinance/payroute/database"
	"github.com/blnkfinance/payroute/feepolicy"
	redlock "github.com/blnkfinance/payroute/internal/lock"
	"github.com/blnkfinance/payroute/internal/metrics"
	"github.com/blnkfinance/payroute/model"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("payroute.routes")

const (
	defaultLockTimeout = 30 * time.Second
	defaultLockWait    = 5 * time.Second
)

// Dispatcher delivers post-commit side effects. Queue is the production
// implementation; a nil dispatcher drops them.
type Dispatcher interface {
	SendWebhook(ctx context.Context, webhook NewWebhook) error
	ScheduleClaimableNotice(ctx context.Context, routeID string, at time.Time) error
}

// Payroute hosts the route state machine on a ledger datasource.
type Payroute struct {
	datasource   database.IDataSource
	redis        redis.UniversalClient
	resolver     feepolicy.Resolver
	fees         model.FeeSchedule
	feeCollector string
	dispatcher   Dispatcher
	metrics      *metrics.Recorder
	now          func() time.Time
	lockTimeout  time.Duration
	lockWait     time.Duration
}

type Option func(*Payroute)

// WithRedis enables per-route and per-balance locks. Without it operations
// rely on the datasource's version checks alone.
func WithRedis(client redis.UniversalClient) Option {
	return func(p *Payroute) { p.redis = client }
}

func WithResolver(resolver feepolicy.Resolver) Option {
	return func(p *Payroute) { p.resolver = resolver }
}

func WithFeeSchedule(fees model.FeeSchedule) Option {
	return func(p *Payroute) { p.fees = fees }
}

func WithFeeCollector(indicator string) Option {
	return func(p *Payroute) {
		if indicator != "" {
			p.feeCollector = indicator
		}
	}
}

func WithDispatcher(dispatcher Dispatcher) Option {
	return func(p *Payroute) { p.dispatcher = dispatcher }
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(p *Payroute) { p.metrics = recorder }
}

// WithClock replaces time.Now. Accrual and start clamping read this clock.
func WithClock(now func() time.Time) Option {
	return func(p *Payroute) { p.now = now }
}

// NewPayroute builds the service. Unless overridden it charges the default fee
// schedule, resolves every party to tier 0 and collects fees into @fees.
func NewPayroute(db database.IDataSource, opts ...Option) *Payroute {
	p := &Payroute{
		datasource:   db,
		resolver:     feepolicy.NewStaticResolver(nil),
		fees:         model.DefaultFeeSchedule(),
		feeCollector: model.FeeCollectorIndicator,
		now:          time.Now,
		lockTimeout:  defaultLockTimeout,
		lockWait:     defaultLockWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FeeSchedule returns the schedule fundings are charged against.
func (l *Payroute) FeeSchedule() model.FeeSchedule {
	return l.fees
}

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Errorf("%s: %v", msg, err)
	return err
}

// acquireLocks takes the redis locks for keys in sorted order and returns a
// function releasing them. It is a no-op when redis is not configured.
func (l *Payroute) acquireLocks(ctx context.Context, keys ...string) (func(), error) {
	if l.redis == nil {
		return func() {}, nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var held []*redlock.Locker
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Unlock(context.Background()); err != nil {
				logrus.Error("lock error ", err)
			}
		}
	}
	seen := map[string]bool{}
	for _, key := range sorted {
		if seen[key] {
			continue
		}
		seen[key] = true
		locker := redlock.NewLocker(l.redis, key, model.GenerateUUIDWithSuffix("loc"))
		if err := locker.WaitLock(ctx, l.lockTimeout, l.lockWait); err != nil {
			release()
			return nil, err
		}
		held = append(held, locker)
	}
	return release, nil
}
