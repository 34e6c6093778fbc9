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

// Package webhook delivers queued merchant notifications at-least-once,
// signing each request and retrying with capped exponential backoff.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/blinklabs-io/paygate/internal/logging"
	"github.com/blinklabs-io/paygate/internal/metrics"
	"github.com/blinklabs-io/paygate/internal/store"
)

const (
	// Per-delivery HTTP timeout
	deliveryTimeout = 15 * time.Second

	// Ceiling on the retry delay, in seconds
	maxBackoffSeconds = 600

	headerTimestamp      = "X-PS-Timestamp"
	headerSignature      = "X-PS-Signature"
	headerIdempotencyKey = "Idempotency-Key"
)

type Dispatcher struct {
	store        *store.Store
	httpClient   *http.Client
	secret       string
	maxAttempts  int
	backoffBase  int
	pollInterval time.Duration
}

func New(
	db *store.Store,
	secret string,
	maxAttempts int,
	backoffBaseSeconds int,
	pollInterval time.Duration,
) *Dispatcher {
	return &Dispatcher{
		store:        db,
		httpClient:   &http.Client{Timeout: deliveryTimeout},
		secret:       secret,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBaseSeconds,
		pollInterval: pollInterval,
	}
}

// Run drains the webhook queue until the context is cancelled. It keeps
// claiming rows while work is available and sleeps the poll interval
// once the queue is empty.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger := logging.GetLogger()
	for {
		delivered, err := d.processOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("webhook delivery cycle failed", "error", err)
		}
		if delivered && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// processOne claims the oldest due pending row, attempts delivery, and
// records the outcome. Claim and outcome share one transaction so the
// row lock covers the delivery, preventing dual delivery by concurrent
// workers. Returns false when no row was due.
func (d *Dispatcher) processOne(ctx context.Context) (bool, error) {
	logger := logging.GetLogger()
	claimed := false
	err := d.store.WithTx(ctx, func(tx *store.Tx) error {
		job, err := tx.NextPendingWebhook(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("failed to claim webhook: %w", err)
		}
		claimed = true
		deliverErr := d.deliver(ctx, job)
		status, attempts, lastError, nextAttemptAt := d.outcome(
			job.Attempts,
			deliverErr,
		)
		if deliverErr == nil {
			metrics.WebhookSuccess.Inc()
			logger.Info(
				"delivered webhook",
				"webhookId", job.Id,
				"merchantId", job.MerchantId,
				"attempts", attempts,
			)
		} else {
			metrics.WebhookFail.Inc()
			logger.Warn(
				"webhook delivery failed",
				"webhookId", job.Id,
				"merchantId", job.MerchantId,
				"attempts", attempts,
				"status", status,
				"error", deliverErr,
			)
		}
		return tx.UpdateWebhookDelivery(
			ctx,
			job.Id,
			status,
			attempts,
			lastError,
			nextAttemptAt,
		)
	})
	return claimed, err
}

// outcome maps a delivery result onto the row's next state
func (d *Dispatcher) outcome(
	priorAttempts int,
	deliverErr error,
) (status string, attempts int, lastError string, nextAttemptAt *time.Time) {
	attempts = priorAttempts + 1
	if deliverErr == nil {
		return store.WebhookStatusSuccess, attempts, "", nil
	}
	lastError = deliverErr.Error()
	if attempts >= d.maxAttempts {
		return store.WebhookStatusFailed, attempts, lastError, nil
	}
	next := time.Now().Add(backoffDelay(d.backoffBase, attempts))
	return store.WebhookStatusPending, attempts, lastError, &next
}

// backoffDelay doubles the base delay per prior attempt, capped at ten
// minutes
func backoffDelay(baseSeconds int, attempts int) time.Duration {
	seconds := baseSeconds
	for i := 1; i < attempts; i++ {
		seconds *= 2
		if seconds >= maxBackoffSeconds {
			seconds = maxBackoffSeconds
			break
		}
	}
	return time.Duration(seconds) * time.Second
}

// deliver posts the signed payload to the merchant endpoint. Any
// non-2xx response is a failed attempt.
func (d *Dispatcher) deliver(ctx context.Context, job *store.WebhookJob) error {
	if job.WebhookUrl == "" {
		return errors.New("merchant has no webhook url configured")
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		job.WebhookUrl,
		bytes.NewReader(payload),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerSignature, Sign(payload, timestamp, d.secret))
	if job.IdempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, job.IdempotencyKey)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
