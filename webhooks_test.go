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
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blnkfinance/payroute/config"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessWebhook(t *testing.T) {
	received := make(chan NewWebhook, 1)
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Payroute-Key")
		body, _ := io.ReadAll(r.Body)
		var webhook NewWebhook
		_ = json.Unmarshal(body, &webhook)
		received <- webhook
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Webhook: config.WebhookConfig{
			Url:     server.URL,
			Headers: map[string]string{"X-Payroute-Key": "secret"},
		}},
	})

	payload, err := json.Marshal(NewWebhook{Event: EventRouteClaimed, Payload: map[string]string{"route_id": "rte_1"}})
	require.NoError(t, err)
	require.NoError(t, ProcessWebhook(context.Background(), asynq.NewTask("payroute_webhook_queue", payload)))

	webhook := <-received
	assert.Equal(t, EventRouteClaimed, webhook.Event)
	assert.Equal(t, "secret", header)
}

func TestProcessWebhook_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()
	config.MockConfig(&config.Configuration{
		Notification: config.Notification{Webhook: config.WebhookConfig{Url: server.URL}},
	})

	payload, _ := json.Marshal(NewWebhook{Event: EventRouteFunded})
	err := ProcessWebhook(context.Background(), asynq.NewTask("payroute_webhook_queue", payload))
	assert.Error(t, err)

	err = ProcessWebhook(context.Background(), asynq.NewTask("payroute_webhook_queue", []byte("not json")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	config.MockConfig(&config.Configuration{})
	assert.NoError(t, ProcessWebhook(context.Background(), asynq.NewTask("payroute_webhook_queue", payload)))
}
