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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blinklabs-io/paygate/internal/api"
	"github.com/blinklabs-io/paygate/internal/config"
	"github.com/blinklabs-io/paygate/internal/invoice"
	"github.com/blinklabs-io/paygate/internal/logging"
	"github.com/blinklabs-io/paygate/internal/store"
	"github.com/blinklabs-io/paygate/internal/version"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"
)

const (
	programName = "paygate-api"
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
	if err := cfg.ValidateApi(); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Url != "" {
		opts, err := redis.ParseURL(cfg.Redis.Url)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	creator := invoice.New(
		db,
		cfg.Invoice.AmountDiffK,
		cfg.Invoice.CreationMaxAttempts,
	)

	apiServer := api.New(db, redisClient, creator)
	listenAddr := fmt.Sprintf(
		"%s:%d",
		cfg.Api.ListenAddress,
		cfg.Api.ListenPort,
	)
	if err := apiServer.StartServer(ctx, listenAddr); err != nil {
		logger.Error("API server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}
