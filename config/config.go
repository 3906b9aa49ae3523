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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5001"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYROUTE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYROUTE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYROUTE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PAYROUTE_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYROUTE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYROUTE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYROUTE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PAYROUTE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PAYROUTE_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	WebhookQueue   string `json:"webhook_queue" envconfig:"PAYROUTE_QUEUE_WEBHOOK"`
	NoticeQueue    string `json:"notice_queue" envconfig:"PAYROUTE_QUEUE_NOTICE"`
	Concurrency    int    `json:"concurrency" envconfig:"PAYROUTE_QUEUE_CONCURRENCY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"PAYROUTE_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYROUTE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYROUTE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYROUTE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"PAYROUTE_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"PAYROUTE_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

// TokenConfig describes a token the engine routes.
type TokenConfig struct {
	Class    string `json:"class"`
	Decimals int32  `json:"decimals"`
}

type FeesConfig struct {
	ScheduleFile          string                 `json:"schedule_file" envconfig:"PAYROUTE_FEES_SCHEDULE_FILE"`
	FeeCollectorIndicator string                 `json:"fee_collector_indicator" envconfig:"PAYROUTE_FEES_COLLECTOR"`
	Tokens                map[string]TokenConfig `json:"tokens"`
}

type FeePolicyConfig struct {
	OracleURL   string            `json:"oracle_url" envconfig:"PAYROUTE_FEE_POLICY_ORACLE_URL"`
	TimeoutSec  int               `json:"timeout_sec" envconfig:"PAYROUTE_FEE_POLICY_TIMEOUT_SEC"`
	MaxRetries  uint64            `json:"max_retries" envconfig:"PAYROUTE_FEE_POLICY_MAX_RETRIES"`
	CacheTTLSec int               `json:"cache_ttl_sec" envconfig:"PAYROUTE_FEE_POLICY_CACHE_TTL_SEC"`
	StaticTiers map[string]uint32 `json:"static_tiers"`
}

type OtelConfig struct {
	Endpoint string `json:"endpoint" envconfig:"PAYROUTE_OTEL_ENDPOINT"`
	Insecure bool   `json:"insecure" envconfig:"PAYROUTE_OTEL_INSECURE"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"PAYROUTE_PROJECT_NAME"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"PAYROUTE_ENABLE_TELEMETRY"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Queue           QueueConfig      `json:"queue"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Fees            FeesConfig       `json:"fees"`
	FeePolicy       FeePolicyConfig  `json:"fee_policy"`
	Otel            OtelConfig       `json:"otel"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("payroute", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called payroute.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Payroute Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.FeePolicy.OracleURL = strings.TrimSpace(cnf.FeePolicy.OracleURL)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Queue.setDefaults()
	cnf.Fees.setDefaults()
	cnf.FeePolicy.setDefaults()

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (q *QueueConfig) setDefaults() {
	if q.WebhookQueue == "" {
		q.WebhookQueue = "payroute_webhook_queue"
	}
	if q.NoticeQueue == "" {
		q.NoticeQueue = "payroute_claimable_notice_queue"
	}
	if q.Concurrency <= 0 {
		q.Concurrency = 5
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = "5004"
	}
}

func (f *FeesConfig) setDefaults() {
	if f.FeeCollectorIndicator == "" {
		f.FeeCollectorIndicator = "@fees"
	}
	if f.Tokens == nil {
		f.Tokens = map[string]TokenConfig{}
	}
}

func (p *FeePolicyConfig) setDefaults() {
	if p.TimeoutSec <= 0 {
		p.TimeoutSec = 3
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 2
	}
	if p.CacheTTLSec <= 0 {
		p.CacheTTLSec = 300
	}
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
