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

// Package matcher decides, inside a single transaction, whether a raw
// deposit credits an invoice, escalates an amount-diff collision, or is
// left unprocessed for a later poll.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/blinklabs-io/paygate/internal/amountdiff"
	"github.com/blinklabs-io/paygate/internal/logging"
	"github.com/blinklabs-io/paygate/internal/metrics"
	"github.com/blinklabs-io/paygate/internal/store"

	"github.com/google/uuid"
)

const (
	// Cap on open invoices considered per deposit
	maxCandidates = 50

	creditCurrency = "USDT"

	// Exchange status value for a credited deposit
	depositStatusSuccess = 1
)

// Required confirmations before a deposit may credit an invoice
var networkConfirmations = map[string]int{
	"ETH":   12,
	"ERC20": 12,
	"BEP20": 3,
	"TRC20": 20,
	"TRON":  20,
}

// Store is the transactional surface the matcher writes through. All
// calls happen on one open transaction; *store.Tx satisfies this.
type Store interface {
	CandidateInvoices(
		ctx context.Context,
		address string,
		network string,
		addressTag string,
		limit int,
	) ([]*store.Invoice, error)
	LockInvoice(ctx context.Context, id uuid.UUID) (*store.Invoice, error)
	SetInvoiceStatus(ctx context.Context, id uuid.UUID, status string) error
	InsertPayment(ctx context.Context, p *store.Payment) error
	InsertLedgerEntry(ctx context.Context, e *store.LedgerEntry) error
	MarkDepositProcessed(ctx context.Context, id uuid.UUID) error
	EnqueueWebhook(ctx context.Context, w *store.WebhookJob) error
	InsertAuditLog(
		ctx context.Context,
		actor string,
		action string,
		details map[string]any,
	) error
	InsertSystemEvent(
		ctx context.Context,
		source string,
		eventType string,
		payload map[string]any,
	) error
}

type Matcher struct {
	amountDiffK          int
	defaultConfirmations int
}

func New(amountDiffK int, defaultConfirmations int) *Matcher {
	return &Matcher{
		amountDiffK:          amountDiffK,
		defaultConfirmations: defaultConfirmations,
	}
}

// RequiredConfirmations returns the confirmation threshold for a network
func (m *Matcher) RequiredConfirmations(network string) int {
	if network == "" {
		return m.defaultConfirmations
	}
	if confs, ok := networkConfirmations[strings.ToUpper(network)]; ok {
		return confs
	}
	return m.defaultConfirmations
}

// TryMatchAndCredit attempts to match an ingested deposit to an open
// invoice. Returns true when the deposit credited an invoice. All
// writes happen on the caller's transaction, so an error rolls the
// whole unit back; the error metric is the caller's to count, once per
// failed unit.
func (m *Matcher) TryMatchAndCredit(
	ctx context.Context,
	tx Store,
	dep *store.DepositRaw,
) (credited bool, err error) {
	logger := logging.GetLogger()

	// Filter gate: only USDT deposits are handled
	if !strings.EqualFold(dep.Coin, creditCurrency) {
		logger.Info("ignoring non-USDT deposit", "txId", dep.TxId, "coin", dep.Coin)
		return false, nil
	}
	if dep.Status == depositStatusSuccess && dep.Confirmations == 0 {
		// The exchange reports success but no confirmations; the record's
		// confirmTimes may be missing or malformed
		logger.Warn(
			"deposit has success status but zero confirmations",
			"txId", dep.TxId,
		)
	}
	required := m.RequiredConfirmations(dep.Network)
	if dep.Status != depositStatusSuccess || dep.Confirmations < required {
		logger.Info(
			"deposit not ready",
			"txId", dep.TxId,
			"status", dep.Status,
			"confirmations", dep.Confirmations,
			"required", required,
		)
		return false, nil
	}

	candidates, err := tx.CandidateInvoices(
		ctx,
		dep.Address,
		dep.Network,
		dep.AddressTag,
		maxCandidates,
	)
	if err != nil {
		return false, fmt.Errorf("failed to select candidate invoices: %w", err)
	}
	if len(candidates) == 0 {
		logger.Info("no invoice candidates", "txId", dep.TxId)
		return false, nil
	}

	// First pass: exact amount match under row lock
	for _, candidate := range candidates {
		locked, err := tx.LockInvoice(ctx, candidate.Id)
		if err != nil {
			return false, fmt.Errorf("failed to lock invoice: %w", err)
		}
		if locked.Status != store.InvoiceStatusPending {
			continue
		}
		if locked.PublishAmount.Equal(dep.Amount) {
			if err := m.credit(ctx, tx, locked, dep, false); err != nil {
				return false, err
			}
			metrics.DepositsProcessed.Inc()
			return true, nil
		}
	}

	// Amount-differentiation fallback
	var matches []*store.Invoice
	for _, candidate := range candidates {
		adjusted, err := amountdiff.AdjustedAmount(
			candidate.PublishAmount,
			candidate.Id,
			candidate.Network,
			m.amountDiffK,
		)
		if err != nil {
			return false, fmt.Errorf("amount-diff failed: %w", err)
		}
		if adjusted.Equal(dep.Amount) {
			matches = append(matches, candidate)
		}
	}

	switch {
	case len(matches) == 1:
		locked, err := tx.LockInvoice(ctx, matches[0].Id)
		if err != nil {
			return false, fmt.Errorf("failed to lock invoice: %w", err)
		}
		if locked.Status != store.InvoiceStatusPending {
			logger.Info("matched invoice no longer pending", "txId", dep.TxId)
			return false, nil
		}
		if err := m.credit(ctx, tx, locked, dep, true); err != nil {
			return false, err
		}
		metrics.DepositsProcessed.Inc()
		return true, nil
	case len(matches) > 1:
		if err := m.escalateCollision(ctx, tx, dep, matches); err != nil {
			return false, err
		}
		return false, nil
	default:
		// No match; the deposit stays unprocessed so a later invoice may
		// still match it
		logger.Info("no amount-diff match", "txId", dep.TxId)
		return false, nil
	}
}

// escalateCollision moves every colliding invoice to manual resolution
// and records durable audit material. The deposit remains unprocessed.
func (m *Matcher) escalateCollision(
	ctx context.Context,
	tx Store,
	dep *store.DepositRaw,
	matches []*store.Invoice,
) error {
	logger := logging.GetLogger()
	metrics.Collisions.Inc()
	matchIds := make([]string, 0, len(matches))
	for _, inv := range matches {
		matchIds = append(matchIds, inv.Id.String())
	}
	logger.Warn(
		"amount-diff collision",
		"txId", dep.TxId,
		"matches", matchIds,
	)
	for _, inv := range matches {
		locked, err := tx.LockInvoice(ctx, inv.Id)
		if err != nil {
			return fmt.Errorf("failed to lock invoice: %w", err)
		}
		if err := tx.SetInvoiceStatus(
			ctx,
			locked.Id,
			store.InvoiceStatusPendingManualResolution,
		); err != nil {
			return fmt.Errorf("failed to escalate invoice: %w", err)
		}
	}
	details := map[string]any{
		"tx":      dep.TxId,
		"matches": matchIds,
	}
	if err := tx.InsertAuditLog(ctx, "poller", "collision_detected", details); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	if err := tx.InsertSystemEvent(ctx, "poller", "collision", details); err != nil {
		return fmt.Errorf("failed to write system event: %w", err)
	}
	return nil
}

// credit performs the atomic settlement writes. Caller holds the row
// lock on the invoice and an open transaction; all five writes commit
// together.
func (m *Matcher) credit(
	ctx context.Context,
	tx Store,
	inv *store.Invoice,
	dep *store.DepositRaw,
	usedAmountDiff bool,
) error {
	payment := &store.Payment{
		Id:           uuid.New(),
		InvoiceId:    inv.Id,
		DepositRawId: dep.Id,
		TxId:         dep.TxId,
		Amount:       dep.Amount,
		Network:      dep.Network,
		Address:      dep.Address,
		AddressTag:   dep.AddressTag,
		Status:       store.PaymentStatusSettled,
		Metadata: map[string]any{
			"used_amount_diff": usedAmountDiff,
		},
	}
	if err := tx.InsertPayment(ctx, payment); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	ledger := &store.LedgerEntry{
		MerchantId:   inv.MerchantId,
		ChangeAmount: dep.Amount,
		Currency:     creditCurrency,
		EntryType:    store.LedgerEntryTypeCreditInvoice,
		ReferenceId:  payment.Id,
		Metadata: map[string]any{
			"invoice_id":    inv.Id.String(),
			"tx_id":         dep.TxId,
			"confirmations": dep.Confirmations,
		},
	}
	if err := tx.InsertLedgerEntry(ctx, ledger); err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	if err := tx.SetInvoiceStatus(ctx, inv.Id, store.InvoiceStatusPaid); err != nil {
		return fmt.Errorf("failed to mark invoice paid: %w", err)
	}
	if err := tx.MarkDepositProcessed(ctx, dep.Id); err != nil {
		return fmt.Errorf("failed to mark deposit processed: %w", err)
	}
	webhook := &store.WebhookJob{
		MerchantId: inv.MerchantId,
		Payload: map[string]any{
			"invoiceId":     inv.Id.String(),
			"merchantId":    inv.MerchantId.String(),
			"status":        store.InvoiceStatusPaid,
			"amount":        dep.Amount.String(),
			"network":       dep.Network,
			"txHash":        dep.TxId,
			"confirmations": dep.Confirmations,
			"confirmedAt":   dep.CompleteTimeMs,
			"metadata": map[string]any{
				"used_amount_diff": usedAmountDiff,
			},
		},
		IdempotencyKey: payment.Id.String(),
	}
	if err := tx.EnqueueWebhook(ctx, webhook); err != nil {
		return fmt.Errorf("failed to enqueue webhook: %w", err)
	}
	logging.GetLogger().Info(
		"credited invoice",
		"invoiceId", inv.Id,
		"txId", dep.TxId,
		"amount", dep.Amount,
		"usedAmountDiff", usedAmountDiff,
	)
	return nil
}
