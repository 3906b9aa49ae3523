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
	"fmt"
	"net/http"
	"time"

	"github.com/blnkfinance/payroute/config"
	"github.com/blnkfinance/payroute/internal/request"
	"github.com/blnkfinance/payroute/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	EventRouteCreated    = "route.created"
	EventRouteFunded     = "route.funded"
	EventInvoiceCreated  = "invoice.created"
	EventInvoiceAccepted = "invoice.accepted"
	EventInvoiceDeclined = "invoice.declined"
	EventRouteApproved   = "route.approved"
	EventRouteClaimed    = "route.claimed"
	EventRouteCompleted  = "route.completed"
	EventRouteClaimable  = "route.claimable"
)

const webhookTimeout = 10 * time.Second

// NewWebhook represents the structure of a webhook notification.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// processHTTP posts data to the configured webhook url.
func processHTTP(ctx context.Context, data NewWebhook) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, payload)
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	if _, err := request.Call(req, nil, webhookTimeout); err != nil {
		return fmt.Errorf("delivering %s: %w", data.Event, err)
	}
	logrus.Infof("webhook %s delivered", data.Event)
	return nil
}

// ProcessWebhook delivers a webhook task. A failed delivery is returned so
// asynq retries it.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.Errorf("Error unmarshaling task payload: %v", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logrus.Infof("Processing webhook: %s", payload.Event)
	return processHTTP(ctx, payload)
}

// ProcessClaimableNotice emits route.claimable when the route in task has
// value to release that it did not have one period earlier, then schedules the
// notice for the next unlock. It never claims on the beneficiary's behalf.
func (l *Payroute) ProcessClaimableNotice(ctx context.Context, task *asynq.Task) error {
	var payload ClaimableNoticePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	route, err := l.datasource.GetRouteByID(ctx, payload.RouteID)
	if err != nil {
		return err
	}
	if route.Status != model.RouteStatusActive && route.Status != model.RouteStatusFunded {
		logrus.Infof("route %s is %s, dropping claimable notice", route.RouteID, route.Status)
		return nil
	}

	now := l.now()
	previous := time.Unix(now.Unix()-int64(route.Schedule.PeriodSeconds), 0)
	if model.ClaimableNow(route, previous).Sign() > 0 {
		logrus.Debugf("route %s was already claimable at the previous unlock", route.RouteID)
	} else {
		l.notifyClaimable(ctx, route)
	}
	l.scheduleNextNotice(ctx, route)
	return nil
}
