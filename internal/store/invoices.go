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
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const invoiceColumns = `id, merchant_id, publish_amount::text, currency,
	coalesce(network, ''), coalesce(address, ''), coalesce(address_tag, ''),
	status, publish_metadata, expiry, created_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var amount string
	var metadata []byte
	err := row.Scan(
		&inv.Id,
		&inv.MerchantId,
		&amount,
		&inv.Currency,
		&inv.Network,
		&inv.Address,
		&inv.AddressTag,
		&inv.Status,
		&metadata,
		&inv.Expiry,
		&inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	inv.PublishAmount, err = scanDecimal(amount)
	if err != nil {
		return nil, err
	}
	inv.Metadata = scanJson(metadata)
	return &inv, nil
}

// CreateInvoice inserts a new invoice. The partial unique index on
// (merchant_id, publish_amount, address) where address is not null may
// reject the insert; that surfaces as ErrConflict and the caller probes
// the next candidate id.
func (s *Store) CreateInvoice(ctx context.Context, inv *Invoice) error {
	return insertInvoice(ctx, s.pool, inv)
}

// InsertInvoice inserts an invoice within an open transaction
func (t *Tx) InsertInvoice(ctx context.Context, inv *Invoice) error {
	return insertInvoice(ctx, t.tx, inv)
}

func insertInvoice(ctx context.Context, db dbConn, inv *Invoice) error {
	metadata, err := jsonArg(inv.Metadata)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		ctx,
		`INSERT INTO invoices (
			id, merchant_id, publish_amount, currency, network, address,
			address_tag, status, publish_metadata, expiry
		) VALUES (
			$1, $2, $3::numeric, $4, nullif($5, ''), nullif($6, ''),
			nullif($7, ''), $8, $9::jsonb, $10
		)`,
		inv.Id,
		inv.MerchantId,
		inv.PublishAmount.String(),
		inv.Currency,
		inv.Network,
		inv.Address,
		inv.AddressTag,
		inv.Status,
		metadata,
		inv.Expiry,
	)
	return wrapConflict(err)
}

// CreateEscalatedInvoice inserts an invoice already flagged for manual
// resolution together with its audit trail, atomically
func (s *Store) CreateEscalatedInvoice(
	ctx context.Context,
	inv *Invoice,
	details map[string]any,
) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		if err := tx.InsertInvoice(ctx, inv); err != nil {
			return err
		}
		if err := tx.InsertAuditLog(
			ctx,
			"api",
			"invoice_collision_exhausted",
			details,
		); err != nil {
			return err
		}
		return tx.InsertSystemEvent(
			ctx,
			"api",
			"invoice_collision_exhausted",
			details,
		)
	})
}

// GetInvoice fetches a single invoice by id
func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := s.pool.QueryRow(
		ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`,
		id,
	)
	return scanInvoice(row)
}

// CandidateInvoices selects open invoices matching the deposit's
// destination, capped to avoid unbounded scans on shared addresses
func (t *Tx) CandidateInvoices(
	ctx context.Context,
	address string,
	network string,
	addressTag string,
	limit int,
) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE address = $1
		AND network IS NOT DISTINCT FROM nullif($2, '')
		AND status = $3`
	args := []any{address, network, InvoiceStatusPending}
	if addressTag != "" {
		query += ` AND address_tag = $4`
		args = append(args, addressTag)
	}
	query += fmt.Sprintf(` ORDER BY created_at LIMIT %d`, limit)
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []*Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, inv)
	}
	return ret, rows.Err()
}

// LockInvoice re-reads an invoice under an exclusive row lock. Only the
// lock holder may transition its status within the open transaction.
func (t *Tx) LockInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := t.tx.QueryRow(
		ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`,
		id,
	)
	return scanInvoice(row)
}

// SetInvoiceStatus transitions an invoice's status. Caller must hold the
// row lock.
func (t *Tx) SetInvoiceStatus(
	ctx context.Context,
	id uuid.UUID,
	status string,
) error {
	tag, err := t.tx.Exec(
		ctx,
		`UPDATE invoices SET status = $2 WHERE id = $1`,
		id,
		status,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
