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

package invoice

import (
	"context"
	"errors"
	"testing"

	"github.com/blinklabs-io/paygate/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fakeStore struct {
	rejectFirst int
	created     []*store.Invoice
	escalated   []*store.Invoice
	details     []map[string]any
}

func (f *fakeStore) CreateInvoice(
	_ context.Context,
	inv *store.Invoice,
) error {
	if f.rejectFirst > 0 {
		f.rejectFirst--
		return store.ErrConflict
	}
	f.created = append(f.created, inv)
	return nil
}

func (f *fakeStore) CreateEscalatedInvoice(
	_ context.Context,
	inv *store.Invoice,
	details map[string]any,
) error {
	f.escalated = append(f.escalated, inv)
	f.details = append(f.details, details)
	return nil
}

func testParams() Params {
	return Params{
		MerchantId: uuid.New(),
		BaseAmount: decimal.RequireFromString("10.00"),
		Currency:   "USDT",
		Network:    "ERC20",
		Address:    "0xdeadbeef",
	}
}

func TestCreateFirstAttempt(t *testing.T) {
	fake := &fakeStore{}
	creator := New(fake, 3, 5)
	inv, err := creator.Create(context.Background(), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.Status != store.InvoiceStatusPending {
		t.Errorf("expected pending status, got %s", inv.Status)
	}
	if len(fake.created) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(fake.created))
	}
	base := decimal.RequireFromString("10.00")
	if inv.PublishAmount.LessThan(base) {
		t.Errorf(
			"publish amount %s below base %s",
			inv.PublishAmount,
			base,
		)
	}
	// Index range [0, 10^k) keeps the delta below one whole unit
	if inv.PublishAmount.Sub(base).
		GreaterThanOrEqual(decimal.NewFromInt(1)) {
		t.Errorf("delta too large: %s", inv.PublishAmount.Sub(base))
	}
}

func TestCreateRetriesOnConflict(t *testing.T) {
	fake := &fakeStore{rejectFirst: 3}
	creator := New(fake, 3, 5)
	inv, err := creator.Create(context.Background(), testParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.created) != 1 {
		t.Fatalf("expected 1 successful insert, got %d", len(fake.created))
	}
	if inv.Status != store.InvoiceStatusPending {
		t.Errorf("expected pending status, got %s", inv.Status)
	}
}

func TestCreateCollisionExhausted(t *testing.T) {
	fake := &fakeStore{rejectFirst: 5}
	creator := New(fake, 3, 5)
	inv, err := creator.Create(context.Background(), testParams())
	if !errors.Is(err, ErrCollisionExhausted) {
		t.Fatalf("expected ErrCollisionExhausted, got %v", err)
	}
	if len(fake.created) != 0 {
		t.Errorf("expected no pending invoice, got %d", len(fake.created))
	}
	if len(fake.escalated) != 1 {
		t.Fatalf("expected 1 escalated invoice, got %d", len(fake.escalated))
	}
	escalated := fake.escalated[0]
	if escalated.Status != store.InvoiceStatusPendingManualResolution {
		t.Errorf("expected manual resolution status, got %s", escalated.Status)
	}
	if !escalated.PublishAmount.Equal(decimal.RequireFromString("10.00")) {
		t.Errorf(
			"expected unadjusted publish amount, got %s",
			escalated.PublishAmount,
		)
	}
	if inv == nil || inv.Id != escalated.Id {
		t.Error("expected the escalated invoice to be returned")
	}
	if len(fake.details) != 1 {
		t.Fatalf("expected audit details, got %d", len(fake.details))
	}
	if fake.details[0]["attempts"] != 5 {
		t.Errorf("expected attempts=5 in details, got %v", fake.details[0]["attempts"])
	}
}

func TestCandidateAmountsDistinct(t *testing.T) {
	// Sequential candidate ids land on distinct residues mod 10^k, so
	// the adjusted amounts across one probe sequence never repeat
	fake := &fakeStore{}
	creator := New(fake, 3, 5)
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		fake.created = nil
		inv, err := creator.Create(context.Background(), testParams())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[inv.PublishAmount.String()] = true
	}
	if len(seen) < 2 {
		t.Error("expected varying publish amounts across random bases")
	}
}

func TestAddToUuidCarries(t *testing.T) {
	var u uuid.UUID
	for i := range u {
		u[i] = 0xff
	}
	// All-ones plus one wraps to zero
	if got := addToUuid(u, 1); got != (uuid.UUID{}) {
		t.Errorf("expected wraparound to zero uuid, got %s", got)
	}

	var base uuid.UUID
	base[15] = 0xff
	got := addToUuid(base, 1)
	if got[15] != 0x00 || got[14] != 0x01 {
		t.Errorf("expected carry into next byte, got %v", got)
	}
}
