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

package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blinklabs-io/paygate/internal/store"

	"github.com/google/uuid"
)

func testDispatcher() *Dispatcher {
	return New(nil, "whsec", 10, 1, time.Second)
}

func TestDeliverSignsRequest(t *testing.T) {
	var gotBody []byte
	var gotTimestamp, gotSignature, gotIdempotency, gotContentType string
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotBody, _ = io.ReadAll(r.Body)
			gotTimestamp = r.Header.Get("X-PS-Timestamp")
			gotSignature = r.Header.Get("X-PS-Signature")
			gotIdempotency = r.Header.Get("Idempotency-Key")
			gotContentType = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusOK)
		}),
	)
	defer srv.Close()

	job := &store.WebhookJob{
		Id:             uuid.New(),
		WebhookUrl:     srv.URL,
		Payload:        map[string]any{"invoiceId": "abc"},
		IdempotencyKey: "pay-123",
	}
	d := testDispatcher()
	if err := d.deliver(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("unexpected content type %q", gotContentType)
	}
	if gotIdempotency != "pay-123" {
		t.Errorf("unexpected idempotency key %q", gotIdempotency)
	}
	if gotTimestamp == "" {
		t.Fatal("missing timestamp header")
	}
	if !Verify(gotBody, gotTimestamp, gotSignature, "whsec") {
		t.Error("signature does not verify against delivered body")
	}
}

func TestDeliverNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}),
	)
	defer srv.Close()

	job := &store.WebhookJob{
		Id:         uuid.New(),
		WebhookUrl: srv.URL,
		Payload:    map[string]any{"invoiceId": "abc"},
	}
	d := testDispatcher()
	if err := d.deliver(context.Background(), job); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestDeliverMissingUrl(t *testing.T) {
	job := &store.WebhookJob{
		Id:      uuid.New(),
		Payload: map[string]any{"invoiceId": "abc"},
	}
	d := testDispatcher()
	if err := d.deliver(context.Background(), job); err == nil {
		t.Error("expected error for missing webhook url")
	}
}

func TestOutcomeSuccess(t *testing.T) {
	d := testDispatcher()
	status, attempts, lastError, next := d.outcome(0, nil)
	if status != store.WebhookStatusSuccess {
		t.Errorf("expected success status, got %s", status)
	}
	if attempts != 1 {
		t.Errorf("expected attempts=1, got %d", attempts)
	}
	if lastError != "" {
		t.Errorf("expected empty last error, got %q", lastError)
	}
	if next != nil {
		t.Error("expected no retry scheduled")
	}
}

func TestOutcomeRetrySchedules(t *testing.T) {
	d := testDispatcher()
	before := time.Now()
	status, attempts, lastError, next := d.outcome(
		2,
		io.ErrUnexpectedEOF,
	)
	if status != store.WebhookStatusPending {
		t.Errorf("expected pending status, got %s", status)
	}
	if attempts != 3 {
		t.Errorf("expected attempts=3, got %d", attempts)
	}
	if lastError == "" {
		t.Error("expected last error recorded")
	}
	if next == nil {
		t.Fatal("expected retry scheduled")
	}
	// attempts=3 with base 1s gives a 4s delay
	delay := next.Sub(before)
	if delay < 3*time.Second || delay > 5*time.Second {
		t.Errorf("expected ~4s delay, got %s", delay)
	}
}

func TestOutcomeExhaustedFails(t *testing.T) {
	d := testDispatcher()
	status, attempts, _, next := d.outcome(9, io.ErrUnexpectedEOF)
	if status != store.WebhookStatusFailed {
		t.Errorf("expected failed status, got %s", status)
	}
	if attempts != 10 {
		t.Errorf("expected attempts=10, got %d", attempts)
	}
	if next != nil {
		t.Error("expected no retry after exhaustion")
	}
}

func TestBackoffDelay(t *testing.T) {
	testDefs := []struct {
		baseSeconds int
		attempts    int
		expected    time.Duration
	}{
		{1, 1, time.Second},
		{1, 2, 2 * time.Second},
		{1, 5, 16 * time.Second},
		{1, 11, 600 * time.Second},
		{2, 1, 2 * time.Second},
		{2, 9, 512 * time.Second},
		{2, 10, 600 * time.Second},
	}
	for _, testDef := range testDefs {
		got := backoffDelay(testDef.baseSeconds, testDef.attempts)
		if got != testDef.expected {
			t.Errorf(
				"base=%d attempts=%d: expected %s, got %s",
				testDef.baseSeconds,
				testDef.attempts,
				testDef.expected,
				got,
			)
		}
	}
}
