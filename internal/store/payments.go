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

	"github.com/google/uuid"
)

// InsertPayment records a settled credit against an invoice. The unique
// (tx_id, invoice_id) index is the backstop against double-crediting and
// surfaces as ErrConflict.
func (t *Tx) InsertPayment(ctx context.Context, p *Payment) error {
	if p.Id == uuid.Nil {
		p.Id = uuid.New()
	}
	metadata, err := jsonArg(p.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(
		ctx,
		`INSERT INTO payments (
			id, invoice_id, deposit_raw_id, tx_id, amount, network, address,
			address_tag, status, metadata
		) VALUES (
			$1, $2, $3, $4, $5::numeric, nullif($6, ''), nullif($7, ''),
			nullif($8, ''), $9, $10::jsonb
		)`,
		p.Id,
		p.InvoiceId,
		p.DepositRawId,
		p.TxId,
		p.Amount.String(),
		p.Network,
		p.Address,
		p.AddressTag,
		p.Status,
		metadata,
	)
	return wrapConflict(err)
}

// InsertLedgerEntry appends a money movement. The table trigger rejects
// any later UPDATE or DELETE.
func (t *Tx) InsertLedgerEntry(ctx context.Context, e *LedgerEntry) error {
	if e.Id == uuid.Nil {
		e.Id = uuid.New()
	}
	metadata, err := jsonArg(e.Metadata)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(
		ctx,
		`INSERT INTO ledger_entries (
			id, merchant_id, change_amount, currency, entry_type,
			reference_id, metadata
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7::jsonb)`,
		e.Id,
		e.MerchantId,
		e.ChangeAmount.String(),
		e.Currency,
		e.EntryType,
		e.ReferenceId,
		metadata,
	)
	return err
}
