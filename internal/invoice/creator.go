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

// Package invoice creates invoices with amount-differentiated publish
// amounts, probing sequential candidate ids until the published amount
// is unique per (merchant, amount, address).
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/paygate/internal/amountdiff"
	"github.com/blinklabs-io/paygate/internal/logging"
	"github.com/blinklabs-io/paygate/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrCollisionExhausted means every candidate publish amount collided
// with an open invoice at the same (merchant, amount, address)
var ErrCollisionExhausted = errors.New(
	"invoice creation collided on every candidate amount",
)

// Store is the persistence surface the creator needs. *store.Store
// satisfies this.
type Store interface {
	CreateInvoice(ctx context.Context, inv *store.Invoice) error
	CreateEscalatedInvoice(
		ctx context.Context,
		inv *store.Invoice,
		details map[string]any,
	) error
}

// Params describes the invoice a merchant requested
type Params struct {
	MerchantId uuid.UUID
	BaseAmount decimal.Decimal
	Currency   string
	Network    string
	Address    string
	AddressTag string
	Expiry     *time.Time
	Metadata   map[string]any
}

type Creator struct {
	store       Store
	amountDiffK int
	maxAttempts int
}

func New(s Store, amountDiffK int, maxAttempts int) *Creator {
	return &Creator{
		store:       s,
		amountDiffK: amountDiffK,
		maxAttempts: maxAttempts,
	}
}

// Create probes sequential candidate ids starting from a random 128-bit
// base. Each increment lands on a different residue mod 10^k, so each
// candidate publishes a different adjusted amount. On exhaustion it
// records a manual-resolution invoice and returns it alongside
// ErrCollisionExhausted.
func (c *Creator) Create(
	ctx context.Context,
	params Params,
) (*store.Invoice, error) {
	logger := logging.GetLogger()
	base := uuid.New()
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		id := addToUuid(base, uint64(attempt))
		adjusted, err := amountdiff.AdjustedAmount(
			params.BaseAmount,
			id,
			params.Network,
			c.amountDiffK,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to derive publish amount: %w", err)
		}
		inv := &store.Invoice{
			Id:            id,
			MerchantId:    params.MerchantId,
			PublishAmount: adjusted,
			Currency:      params.Currency,
			Network:       params.Network,
			Address:       params.Address,
			AddressTag:    params.AddressTag,
			Status:        store.InvoiceStatusPending,
			Metadata:      params.Metadata,
			Expiry:        params.Expiry,
		}
		err = c.store.CreateInvoice(ctx, inv)
		if err == nil {
			logger.Info(
				"created invoice",
				"invoiceId", inv.Id,
				"merchantId", inv.MerchantId,
				"publishAmount", inv.PublishAmount,
				"attempt", attempt,
			)
			return inv, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("failed to create invoice: %w", err)
		}
		logger.Info(
			"publish amount collision, probing next candidate",
			"merchantId", params.MerchantId,
			"attempt", attempt,
		)
	}

	// Every probe collided. Record the request for manual resolution at
	// the unadjusted amount and surface a distinguishable failure.
	escalated := &store.Invoice{
		Id:            uuid.New(),
		MerchantId:    params.MerchantId,
		PublishAmount: params.BaseAmount,
		Currency:      params.Currency,
		Network:       params.Network,
		Address:       params.Address,
		AddressTag:    params.AddressTag,
		Status:        store.InvoiceStatusPendingManualResolution,
		Metadata:      params.Metadata,
		Expiry:        params.Expiry,
	}
	details := map[string]any{
		"merchant_id": params.MerchantId.String(),
		"base_amount": params.BaseAmount.String(),
		"address":     params.Address,
		"attempts":    c.maxAttempts,
		"invoice_id":  escalated.Id.String(),
	}
	if err := c.store.CreateEscalatedInvoice(ctx, escalated, details); err != nil {
		return nil, fmt.Errorf("failed to record exhausted invoice: %w", err)
	}
	logger.Warn(
		"invoice creation exhausted candidate amounts",
		"merchantId", params.MerchantId,
		"invoiceId", escalated.Id,
		"attempts", c.maxAttempts,
	)
	return escalated, ErrCollisionExhausted
}

// addToUuid adds n to a UUID interpreted as a big-endian 128-bit
// integer, wrapping on overflow
func addToUuid(u uuid.UUID, n uint64) uuid.UUID {
	carry := n
	for i := 15; i >= 0 && carry > 0; i-- {
		sum := uint64(u[i]) + (carry & 0xff)
		u[i] = byte(sum)
		carry = (carry >> 8) + (sum >> 8)
	}
	return u
}
