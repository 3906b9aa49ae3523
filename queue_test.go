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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blnkfinance/payroute/config"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T, webhookURL string) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	conf := &config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
		Queue: config.QueueConfig{
			WebhookQueue: "payroute_webhook_queue",
			NoticeQueue:  "payroute_claimable_notice_queue",
		},
		Notification: config.Notification{Webhook: config.WebhookConfig{Url: webhookURL}},
	}
	q, err := NewQueue(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestScheduleClaimableNotice(t *testing.T) {
	q := newTestQueue(t, "")
	ctx := context.Background()
	at := time.Now().Add(time.Hour).Truncate(time.Second)

	require.NoError(t, q.ScheduleClaimableNotice(ctx, "rte_1", at))
	require.NoError(t, q.ScheduleClaimableNotice(ctx, "rte_1", at))

	info, err := q.Inspector.GetTaskInfo("payroute_claimable_notice_queue", noticeTaskID("rte_1", at))
	require.NoError(t, err)
	assert.Equal(t, asynq.TaskStateScheduled, info.State)

	var payload ClaimableNoticePayload
	require.NoError(t, json.Unmarshal(info.Payload, &payload))
	assert.Equal(t, "rte_1", payload.RouteID)
	assert.True(t, payload.At.Equal(at))
}

func TestSendWebhook(t *testing.T) {
	ctx := context.Background()

	disabled := newTestQueue(t, "")
	require.NoError(t, disabled.SendWebhook(ctx, NewWebhook{Event: EventRouteCreated}))
	tasks, err := disabled.Inspector.ListPendingTasks("payroute_webhook_queue")
	if err == nil {
		assert.Empty(t, tasks)
	}

	q := newTestQueue(t, "http://hooks.test/payroute")
	require.NoError(t, q.SendWebhook(ctx, NewWebhook{Event: EventRouteFunded, Payload: map[string]string{"route_id": "rte_1"}}))
	require.NoError(t, q.NotificationSender()("system.error", map[string]string{"error": "boom"}))

	tasks, err = q.Inspector.ListPendingTasks("payroute_webhook_queue")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	var webhook NewWebhook
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &webhook))
	assert.Equal(t, EventRouteFunded, webhook.Event)
}
