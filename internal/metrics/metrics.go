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

// Package metrics holds the service's Prometheus collectors and the
// standalone metrics listener. Collectors live here so the poller and
// matcher can share counters without double registration.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DepositsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_processed_total",
		Help: "Total deposits credited against an invoice",
	})
	DepositsErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deposits_errors_total",
		Help: "Total deposit processing errors",
	})
	Collisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collisions_total",
		Help: "Total amount-diff collisions escalated to manual resolution",
	})
	PollerLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poller_last_success_unixtime",
		Help: "Unix time of the last successful poll cycle",
	})
	WebhookSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_success_total",
		Help: "Total webhook deliveries accepted by the merchant endpoint",
	})
	WebhookFail = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_fail_total",
		Help: "Total failed webhook delivery attempts",
	})
)

// StartListener serves the Prometheus text endpoint on its own listener
// until the context is cancelled
func StartListener(ctx context.Context, listenAddr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
