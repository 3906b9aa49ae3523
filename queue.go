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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/payroute/config"
	"github.com/blnkfinance/payroute/internal/notification"
	redis_db "github.com/blnkfinance/payroute/internal/redis-db"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Queue enqueues webhooks and claimable notices on asynq.
type Queue struct {
	Client          *asynq.Client
	Inspector       *asynq.Inspector
	webhookQueue    string
	noticeQueue     string
	webhooksEnabled bool
}

// ClaimableNoticePayload is the body of a claimable-notice task.
type ClaimableNoticePayload struct {
	RouteID string    `json:"route_id"`
	At      time.Time `json:"at"`
}

// NewQueue connects to the redis deployment named in conf.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	opt, err := redis_db.AsynqOpt(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewQueueWithOpt(opt, conf), nil
}

func NewQueueWithOpt(opt asynq.RedisConnOpt, conf *config.Configuration) *Queue {
	return &Queue{
		Client:          asynq.NewClient(opt),
		Inspector:       asynq.NewInspector(opt),
		webhookQueue:    conf.Queue.WebhookQueue,
		noticeQueue:     conf.Queue.NoticeQueue,
		webhooksEnabled: conf.Notification.Webhook.Url != "",
	}
}

// SendWebhook enqueues webhook for delivery. It does nothing when no
// outgoing webhook url is configured.
func (q *Queue) SendWebhook(ctx context.Context, webhook NewWebhook) error {
	if !q.webhooksEnabled {
		return nil
	}
	payload, err := json.Marshal(webhook)
	if err != nil {
		return err
	}
	task := asynq.NewTask(q.webhookQueue, payload, asynq.Queue(q.webhookQueue), asynq.MaxRetry(10))
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		logrus.Errorf("enqueueing webhook %s: %v", webhook.Event, err)
		return err
	}
	logrus.Debugf("enqueued webhook %s as task %s", webhook.Event, info.ID)
	return nil
}

func noticeTaskID(routeID string, at time.Time) string {
	return fmt.Sprintf("claimable:%s:%d", routeID, at.Unix())
}

// ScheduleClaimableNotice enqueues a notice for routeID to run at at. Notices
// are keyed by route and time, so scheduling the same notice twice is a no-op.
func (q *Queue) ScheduleClaimableNotice(ctx context.Context, routeID string, at time.Time) error {
	payload, err := json.Marshal(ClaimableNoticePayload{RouteID: routeID, At: at.UTC()})
	if err != nil {
		return err
	}
	task := asynq.NewTask(q.noticeQueue, payload,
		asynq.TaskID(noticeTaskID(routeID, at)),
		asynq.Queue(q.noticeQueue),
		asynq.ProcessAt(at),
	)
	_, err = q.Client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	logrus.Infof("scheduled claimable notice for route %s at %s", routeID, at.UTC().Format(time.RFC3339))
	return nil
}

// NotificationSender adapts the queue for notification.RegisterWebhookSender.
func (q *Queue) NotificationSender() notification.WebhookSender {
	return func(event string, payload interface{}) error {
		return q.SendWebhook(context.Background(), NewWebhook{Event: event, Payload: payload})
	}
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		logrus.Error(err)
	}
	return q.Client.Close()
}
