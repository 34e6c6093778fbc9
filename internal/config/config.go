// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Api      ApiConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Binance  BinanceConfig  `yaml:"binance"`
	Invoice  InvoiceConfig  `yaml:"invoice"`
	Poller   PollerConfig   `yaml:"poller"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

type ApiConfig struct {
	ListenAddress string `yaml:"listenAddress" envconfig:"LISTEN_ADDRESS"`
	ListenPort    uint   `yaml:"listenPort" envconfig:"LISTEN_PORT"`
}

type DatabaseConfig struct {
	Url string `yaml:"url" envconfig:"DATABASE_URL"`
}

type RedisConfig struct {
	Url string `yaml:"url" envconfig:"REDIS_URL"`
}

type BinanceConfig struct {
	BaseUrl   string `yaml:"baseUrl" envconfig:"BINANCE_BASE_URL"`
	ApiKey    string `yaml:"apiKey" envconfig:"BINANCE_API_KEY"`
	ApiSecret string `yaml:"apiSecret" envconfig:"BINANCE_API_SECRET"`
}

type InvoiceConfig struct {
	AmountDiffK         int `yaml:"amountDiffK" envconfig:"AMOUNT_DIFF_K"`
	CreationMaxAttempts int `yaml:"creationMaxAttempts" envconfig:"INVOICE_CREATION_MAX_ATTEMPTS"`
}

type PollerConfig struct {
	PollIntervalSeconds  int   `yaml:"pollIntervalSeconds" envconfig:"POLLER_POLL_INTERVAL_SECONDS"`
	WindowMs             int64 `yaml:"windowMs" envconfig:"POLLER_WINDOW_MS"`
	InitialLookbackMs    int64 `yaml:"initialLookbackMs" envconfig:"POLLER_INITIAL_LOOKBACK_MS"`
	DefaultConfirmations int   `yaml:"defaultConfirmations" envconfig:"DEFAULT_CONFIRMATIONS"`
	MetricsPort          uint  `yaml:"metricsPort" envconfig:"POLLER_METRICS_PORT"`
}

type WebhookConfig struct {
	Secret             string `yaml:"secret" envconfig:"WEBHOOK_SECRET"`
	WorkerPollSeconds  int    `yaml:"workerPollSeconds" envconfig:"WEBHOOK_WORKER_POLL_SECONDS"`
	MaxAttempts        int    `yaml:"maxAttempts" envconfig:"WEBHOOK_MAX_ATTEMPTS"`
	BackoffBaseSeconds int    `yaml:"backoffBaseSeconds" envconfig:"WEBHOOK_BACKOFF_BASE_SECONDS"`
	MetricsPort        uint   `yaml:"metricsPort" envconfig:"WEBHOOK_METRICS_PORT"`
}

type SentryConfig struct {
	Dsn string `yaml:"dsn" envconfig:"SENTRY_DSN"`
}

// Singleton config instance with default values
var globalConfig = &Config{
	Logging: LoggingConfig{
		Level: "info",
	},
	Api: ApiConfig{
		ListenAddress: "",
		ListenPort:    8080,
	},
	Binance: BinanceConfig{
		BaseUrl: "https://api.binance.com",
	},
	Invoice: InvoiceConfig{
		AmountDiffK:         3,
		CreationMaxAttempts: 5,
	},
	Poller: PollerConfig{
		PollIntervalSeconds:  20,
		WindowMs:             300_000,
		InitialLookbackMs:    86_400_000,
		DefaultConfirmations: 2,
		MetricsPort:          8002,
	},
	Webhook: WebhookConfig{
		WorkerPollSeconds:  2,
		MaxAttempts:        10,
		BackoffBaseSeconds: 1,
		MetricsPort:        8001,
	},
}

func Load(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %s", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %s", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	err := envconfig.Process("dummy", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %s", err)
	}
	return globalConfig, nil
}

// ValidateApi checks config required by the API service
func (cfg *Config) ValidateApi() error {
	if cfg.Database.Url == "" {
		return errors.New("DATABASE_URL must be provided")
	}
	return nil
}

// ValidatePoller checks config required by the poller service
func (cfg *Config) ValidatePoller() error {
	if cfg.Database.Url == "" {
		return errors.New("DATABASE_URL must be provided")
	}
	if cfg.Binance.ApiKey == "" || cfg.Binance.ApiSecret == "" {
		return errors.New(
			"BINANCE_API_KEY and BINANCE_API_SECRET must be provided",
		)
	}
	return nil
}

// ValidateWebhook checks config required by the webhook dispatcher
func (cfg *Config) ValidateWebhook() error {
	if cfg.Database.Url == "" {
		return errors.New("DATABASE_URL must be provided")
	}
	if cfg.Webhook.Secret == "" {
		return errors.New("WEBHOOK_SECRET must be provided")
	}
	return nil
}

// Return global config instance
func GetConfig() *Config {
	return globalConfig
}
