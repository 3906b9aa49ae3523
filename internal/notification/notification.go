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

package notification

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/blnkfinance/payroute/config"
	"github.com/blnkfinance/payroute/internal/request"
	"github.com/sirupsen/logrus"
)

const SystemErrorEvent = "system.error"

// WebhookSender delivers an event to the configured webhook endpoint.
type WebhookSender func(event string, payload interface{}) error

var (
	senderMu      sync.RWMutex
	webhookSender WebhookSender
)

// RegisterWebhookSender installs the function NotifyError uses to forward
// errors as webhook events. A later registration replaces an earlier one.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func currentSender() WebhookSender {
	senderMu.RLock()
	defer senderMu.RUnlock()
	return webhookSender
}

func slackPayload(err error, at time.Time) json.RawMessage {
	message, _ := json.Marshal(fmt.Sprintf("*Error:*\n%v", err))
	return json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{"type": "header", "text": {"type": "plain_text", "text": "Error From Payroute", "emoji": true}},
			{"type": "section", "fields": [{"type": "mrkdwn", "text": %s}]},
			{"type": "section", "fields": [{"type": "mrkdwn", "text": "*Time:*\n%s"}]}
		]
	}`, message, at.Format(time.RFC822)))
}

// SlackNotification posts err to the configured Slack webhook.
func SlackNotification(err error) {
	conf, cErr := config.Fetch()
	if cErr != nil {
		logrus.Error(cErr)
		return
	}

	data := slackPayload(err, time.Now())
	payload, pErr := request.ToJsonReq(&data)
	if pErr != nil {
		logrus.Error(pErr)
		return
	}

	req, rErr := http.NewRequest(http.MethodPost, conf.Notification.Slack.WebhookUrl, payload)
	if rErr != nil {
		logrus.Error(rErr)
		return
	}

	if _, callErr := request.Call(req, nil, 10*time.Second); callErr != nil {
		logrus.Error(callErr)
	}
}

// NotifyError logs systemError and, in the background, forwards it to Slack
// and the registered webhook sender when either is configured.
func NotifyError(systemError error) {
	logrus.Error(systemError)
	go func(systemError error) {
		conf, err := config.Fetch()
		if err == nil && conf.Notification.Slack.WebhookUrl != "" {
			SlackNotification(systemError)
		}
		if sender := currentSender(); sender != nil {
			payload := map[string]interface{}{
				"error":      systemError.Error(),
				"created_at": time.Now().UTC(),
			}
			if err := sender(SystemErrorEvent, payload); err != nil {
				logrus.Errorf("forwarding system error: %v", err)
			}
		}
	}(systemError)
}
