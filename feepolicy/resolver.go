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

// Package feepolicy resolves the discount tier a funder is entitled to and
// loads the fee schedule the tier is applied to.
package feepolicy

import (
	"context"
	"sync"

	"github.com/blnkfinance/payroute/model"
	"github.com/pkg/errors"
)

// Resolver supplies the discount tier for a funding party. Implementations
// return an error wrapping model.ErrFeePolicyUnavailable when the standing
// cannot be determined; callers must not fall back to tier 0.
type Resolver interface {
	ResolveTier(ctx context.Context, party string) (uint32, error)
}

// StaticResolver serves tiers from a fixed table keyed by canonical address.
// Unlisted parties get DefaultTier, or an unavailable error when Strict is set.
type StaticResolver struct {
	mu          sync.RWMutex
	tiers       map[string]uint32
	DefaultTier uint32
	Strict      bool
}

func NewStaticResolver(tiers map[string]uint32) *StaticResolver {
	t := make(map[string]uint32, len(tiers))
	for k, v := range tiers {
		t[model.CanonicalAddress(k)] = v
	}
	return &StaticResolver{tiers: t}
}

func (s *StaticResolver) ResolveTier(_ context.Context, party string) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tier, ok := s.tiers[model.CanonicalAddress(party)]; ok {
		return tier, nil
	}
	if s.Strict {
		return 0, errors.Wrapf(model.ErrFeePolicyUnavailable, "no standing recorded for %s", party)
	}
	return s.DefaultTier, nil
}

// SetTier records or replaces a party's tier.
func (s *StaticResolver) SetTier(party string, tier uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[model.CanonicalAddress(party)] = tier
}

// UnavailableResolver always fails. It stands in for an oracle that is down.
type UnavailableResolver struct {
	Reason string
}

func (u UnavailableResolver) ResolveTier(_ context.Context, party string) (uint32, error) {
	return 0, errors.Wrapf(model.ErrFeePolicyUnavailable, "%s: %s", party, u.Reason)
}
