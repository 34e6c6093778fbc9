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

	"github.com/blinklabs-io/paygate/internal/binance"
	"github.com/blinklabs-io/paygate/internal/config"
	"github.com/blinklabs-io/paygate/internal/logging"
	"github.com/blinklabs-io/paygate/internal/matcher"
	"github.com/blinklabs-io/paygate/internal/metrics"
	"github.com/blinklabs-io/paygate/internal/poller"
	"github.com/blinklabs-io/paygate/internal/store"
	"github.com/blinklabs-io/paygate/internal/version"

	"github.com/getsentry/sentry-go"
	_ "go.uber.org/automaxprocs"
)

const (
	programName = "paygate-poller"
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
	if err := cfg.ValidatePoller(); err != nil {
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

	client, err := binance.NewClient(
		cfg.Binance.BaseUrl,
		cfg.Binance.ApiKey,
		cfg.Binance.ApiSecret,
	)
	if err != nil {
		logger.Error("failed to create exchange client", "error", err)
		os.Exit(1)
	}

	// Start metrics listener
	metricsAddr := fmt.Sprintf(":%d", cfg.Poller.MetricsPort)
	go func() {
		logger.Info("starting metrics listener", "addr", metricsAddr)
		if err := metrics.StartListener(ctx, metricsAddr); err != nil {
			logger.Error("metrics listener failed", "error", err)
		}
	}()

	m := matcher.New(
		cfg.Invoice.AmountDiffK,
		cfg.Poller.DefaultConfirmations,
	)
	p := poller.New(
		client,
		db,
		m,
		time.Duration(cfg.Poller.PollIntervalSeconds)*time.Second,
		cfg.Poller.WindowMs,
		cfg.Poller.InitialLookbackMs,
	)

	logger.Info("starting deposit poller", "version", version.GetVersionString())
	if err := p.Run(ctx); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.Error("poller failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}
