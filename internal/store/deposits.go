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
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const depositColumns = `id, tx_id, coin, coalesce(network, ''), amount::text,
	status, coalesce(address, ''), coalesce(address_tag, ''), insert_time_ms,
	coalesce(complete_time_ms, 0), raw, processed, created_at`

func scanDeposit(row pgx.Row) (*DepositRaw, error) {
	var dep DepositRaw
	var amount string
	err := row.Scan(
		&dep.Id,
		&dep.TxId,
		&dep.Coin,
		&dep.Network,
		&amount,
		&dep.Status,
		&dep.Address,
		&dep.AddressTag,
		&dep.InsertTimeMs,
		&dep.CompleteTimeMs,
		&dep.Raw,
		&dep.Processed,
		&dep.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	dep.Amount, err = scanDecimal(amount)
	if err != nil {
		return nil, err
	}
	dep.Confirmations = confirmationsFromRaw(dep.Raw)
	return &dep, nil
}

// confirmationsFromRaw extracts confirmTimes from the verbatim exchange
// record. The value is not a first-class column; the raw record is
// authoritative.
func confirmationsFromRaw(raw json.RawMessage) int {
	var rec struct {
		ConfirmTimes int `json:"confirmTimes"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0
	}
	return rec.ConfirmTimes
}

// InsertDeposit idempotently inserts a raw deposit record keyed by tx_id.
// Returns the stored row and whether this call inserted it. Replaying a
// poll window is safe because the unique index makes this a no-op for
// rows already seen.
func (t *Tx) InsertDeposit(
	ctx context.Context,
	dep *DepositRaw,
) (*DepositRaw, bool, error) {
	if dep.Id == uuid.Nil {
		dep.Id = uuid.New()
	}
	tag, err := t.tx.Exec(
		ctx,
		`INSERT INTO deposit_raw (
			id, tx_id, coin, network, amount, status, address, address_tag,
			insert_time_ms, complete_time_ms, raw
		) VALUES (
			$1, $2, $3, nullif($4, ''), $5::numeric, $6, nullif($7, ''),
			nullif($8, ''), $9, nullif($10, 0), $11::jsonb
		) ON CONFLICT (tx_id) DO NOTHING`,
		dep.Id,
		dep.TxId,
		dep.Coin,
		dep.Network,
		dep.Amount.String(),
		dep.Status,
		dep.Address,
		dep.AddressTag,
		dep.InsertTimeMs,
		dep.CompleteTimeMs,
		[]byte(dep.Raw),
	)
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		existing, err := t.GetDepositByTxId(ctx, dep.TxId)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	stored, err := t.GetDepositByTxId(ctx, dep.TxId)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// RefreshDeposit updates the mutable exchange-reported fields on an
// already-seen row. Confirmations only exist inside the raw record, so
// replacing it is what lets a deposit first seen below the confirmation
// threshold eventually credit.
func (t *Tx) RefreshDeposit(
	ctx context.Context,
	id uuid.UUID,
	status int,
	completeTimeMs int64,
	raw json.RawMessage,
) error {
	tag, err := t.tx.Exec(
		ctx,
		`UPDATE deposit_raw SET
			status = $2,
			complete_time_ms = nullif($3, 0),
			raw = $4::jsonb
		WHERE id = $1`,
		id,
		status,
		completeTimeMs,
		[]byte(raw),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDepositByTxId fetches a raw deposit by its exchange transaction id
func (t *Tx) GetDepositByTxId(
	ctx context.Context,
	txId string,
) (*DepositRaw, error) {
	row := t.tx.QueryRow(
		ctx,
		`SELECT `+depositColumns+` FROM deposit_raw WHERE tx_id = $1`,
		txId,
	)
	return scanDeposit(row)
}

// MarkDepositProcessed flips the processed bit after a successful credit
func (t *Tx) MarkDepositProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(
		ctx,
		`UPDATE deposit_raw SET processed = true WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
