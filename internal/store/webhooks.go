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

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EnqueueWebhook queues a merchant notification for at-least-once delivery
func (t *Tx) EnqueueWebhook(ctx context.Context, w *WebhookJob) error {
	if w.Id == uuid.Nil {
		w.Id = uuid.New()
	}
	payload, err := jsonArg(w.Payload)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(
		ctx,
		`INSERT INTO webhook_queue (
			id, merchant_id, payload, status, idempotency_key
		) VALUES ($1, $2, $3::jsonb, $4, nullif($5, ''))`,
		w.Id,
		w.MerchantId,
		payload,
		WebhookStatusPending,
		w.IdempotencyKey,
	)
	return err
}

// NextPendingWebhook claims the oldest due pending row. The row lock with
// SKIP LOCKED keeps concurrent dispatcher workers from delivering the same
// webhook twice; the lock is held until the enclosing transaction ends.
func (t *Tx) NextPendingWebhook(ctx context.Context) (*WebhookJob, error) {
	var job WebhookJob
	var payload []byte
	err := t.tx.QueryRow(
		ctx,
		`SELECT q.id, q.merchant_id, coalesce(m.webhook_url, ''), q.payload,
			q.attempts, coalesce(q.last_error, ''), q.status,
			coalesce(q.idempotency_key, ''), q.created_at, q.next_attempt_at
		FROM webhook_queue q
		LEFT JOIN merchants m ON m.id = q.merchant_id
		WHERE q.status = $1
		AND (q.next_attempt_at IS NULL OR q.next_attempt_at <= now())
		ORDER BY q.created_at
		LIMIT 1
		FOR UPDATE OF q SKIP LOCKED`,
		WebhookStatusPending,
	).Scan(
		&job.Id,
		&job.MerchantId,
		&job.WebhookUrl,
		&payload,
		&job.Attempts,
		&job.LastError,
		&job.Status,
		&job.IdempotencyKey,
		&job.CreatedAt,
		&job.NextAttemptAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.Payload = scanJson(payload)
	return &job, nil
}

// UpdateWebhookDelivery records a delivery outcome on a claimed row
func (t *Tx) UpdateWebhookDelivery(
	ctx context.Context,
	id uuid.UUID,
	status string,
	attempts int,
	lastError string,
	nextAttemptAt *time.Time,
) error {
	tag, err := t.tx.Exec(
		ctx,
		`UPDATE webhook_queue SET
			status = $2,
			attempts = $3,
			last_error = nullif($4, ''),
			next_attempt_at = $5
		WHERE id = $1`,
		id,
		status,
		attempts,
		lastError,
		nextAttemptAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
