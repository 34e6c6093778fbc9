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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blinklabs-io/paygate/internal/config"
	"github.com/blinklabs-io/paygate/internal/logging"
	"github.com/blinklabs-io/paygate/internal/metrics"
	"github.com/blinklabs-io/paygate/internal/store"
	"github.com/blinklabs-io/paygate/internal/version"
	"github.com/blinklabs-io/paygate/internal/webhook"

	"github.com/getsentry/sentry-go"
	_ "go.uber.org/automaxprocs"
)

const (
	programName = "paygate-webhook"
)

var cmdlineFlags struct {
	configFile string
	version    bool
}

func main() {
	flag.StringVar(
		&cmdlineFlags.configFile,
		"config",
		"",
		"path to config file to load",
	)
	flag.BoolVar(&cmdlineFlags.version, "version", false, "show version")
	flag.Parse()

	if cmdlineFlags.version {
		fmt.Printf("%s %s\n", programName, version.GetVersionString())
		os.Exit(0)
	}

	// Load config
	cfg, err := config.Load(cmdlineFlags.configFile)
	if err != nil {
		fmt.Printf("Failed to load config: %s\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateWebhook(); err != nil {
		fmt.Printf("Invalid config: %s\n", err)
		os.Exit(1)
	}

	// Configure logging
	logging.Configure(programName)
	logger := logging.GetLogger()

	// Configure error reporting
	if cfg.Sentry.Dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:     cfg.Sentry.Dsn,
			Release: version.GetVersionString(),
		}); err != nil {
			logger.Warn("failed to initialize sentry", "error", err)
		}
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	db, err := store.New(ctx, cfg.Database.Url)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Start metrics listener
	metricsAddr := fmt.Sprintf(":%d", cfg.Webhook.MetricsPort)
	go func() {
		logger.Info("starting metrics listener", "addr", metricsAddr)
		if err := metrics.StartListener(ctx, metricsAddr); err != nil {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	d := webhook.New(
		db,
		cfg.Webhook.Secret,
		cfg.Webhook.MaxAttempts,
		cfg.Webhook.BackoffBaseSeconds,
		time.Duration(cfg.Webhook.WorkerPollSeconds)*time.Second,
	)

	logger.Info(
		"starting webhook dispatcher",
		"version", version.GetVersionString(),
	)
	if err := d.Run(ctx); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.Error("webhook dispatcher failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}
