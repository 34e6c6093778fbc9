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

	"github.com/jackc/pgx/v5"
)

// LoadCheckpoint reads the durable high-water mark for a named poller.
// Returns ErrNotFound on first run.
func (s *Store) LoadCheckpoint(
	ctx context.Context,
	key string,
) (*PollerCheckpoint, error) {
	var cp PollerCheckpoint
	err := s.pool.QueryRow(
		ctx,
		`SELECT key, coalesce(last_insert_time_ms, 0),
			coalesce(last_tx_id, ''), updated_at
		FROM poller_checkpoints WHERE key = $1`,
		key,
	).Scan(&cp.Key, &cp.LastInsertTimeMs, &cp.LastTxId, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cp, nil
}

// SaveCheckpoint upserts the checkpoint row. Last writer wins: losing an
// update is tolerable because the tx_id unique index makes replay
// idempotent.
func (t *Tx) SaveCheckpoint(
	ctx context.Context,
	key string,
	lastInsertTimeMs int64,
	lastTxId string,
) error {
	_, err := t.tx.Exec(
		ctx,
		`INSERT INTO poller_checkpoints (key, last_insert_time_ms, last_tx_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			last_insert_time_ms = excluded.last_insert_time_ms,
			last_tx_id = excluded.last_tx_id,
			updated_at = now()`,
		key,
		lastInsertTimeMs,
		lastTxId,
	)
	return err
}
