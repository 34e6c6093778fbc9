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

package amountdiff

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestNetworkPrecision(t *testing.T) {
	testDefs := []struct {
		network  string
		expected int32
	}{
		{"ERC20", 6},
		{"erc20", 6},
		{"TRC20", 6},
		{"TRON", 6},
		{"BEP20", 18},
		{"BSC", 18},
		{"", 6},
		{"SOL", 6},
	}
	for _, testDef := range testDefs {
		if prec := NetworkPrecision(testDef.network); prec != testDef.expected {
			t.Errorf(
				"network %q: expected precision %d, got %d",
				testDef.network,
				testDef.expected,
				prec,
			)
		}
	}
}

func TestInvoiceIndex(t *testing.T) {
	invoiceId := uuid.MustParse("12345678-1234-5678-1234-567812345678")
	// 0x12345678123456781234567812345678 mod 1000
	if idx := InvoiceIndex(invoiceId, 3); idx != 104 {
		t.Errorf("expected index 104, got %d", idx)
	}
	invoiceId2 := uuid.MustParse("deadbeef-dead-beef-dead-beefdeadbeef")
	if idx := InvoiceIndex(invoiceId2, 3); idx != 191 {
		t.Errorf("expected index 191, got %d", idx)
	}
	if idx := InvoiceIndex(invoiceId2, 5); idx != 82191 {
		t.Errorf("expected index 82191, got %d", idx)
	}
	// k <= 0 collapses to zero
	if idx := InvoiceIndex(invoiceId, 0); idx != 0 {
		t.Errorf("expected index 0 for k=0, got %d", idx)
	}
}

func TestAdjustedAmountDeterministic(t *testing.T) {
	base := decimal.RequireFromString("10.000000")
	invoiceId := uuid.MustParse("12345678-1234-5678-1234-567812345678")
	adj1, err := AdjustedAmount(base, invoiceId, "ERC20", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	adj2, err := AdjustedAmount(base, invoiceId, "ERC20", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !adj1.Equal(adj2) {
		t.Errorf("expected identical results, got %s and %s", adj1, adj2)
	}
	// index 104 with k=3 gives delta 0.104
	expected := decimal.RequireFromString("10.104")
	if !adj1.Equal(expected) {
		t.Errorf("expected adjusted amount %s, got %s", expected, adj1)
	}
}

func TestAdjustedAmountBounds(t *testing.T) {
	base := decimal.RequireFromString("1.234567")
	k := 3
	// The index spans [0, 10^k), so the delta index*10^-k stays below 1
	maxDelta := decimal.NewFromInt(1)
	for i := 0; i < 50; i++ {
		invoiceId := uuid.New()
		adj, err := AdjustedAmount(base, invoiceId, "TRC20", k)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if adj.LessThan(base) {
			t.Fatalf(
				"adjusted amount %s below base %s (invoice %s)",
				adj,
				base,
				invoiceId,
			)
		}
		diff := adj.Sub(base)
		if diff.GreaterThanOrEqual(maxDelta) {
			t.Fatalf(
				"delta %s not below %s (invoice %s)",
				diff,
				maxDelta,
				invoiceId,
			)
		}
	}
}

func TestAdjustedAmountTruncatesTowardZero(t *testing.T) {
	// Base with more fractional digits than network precision
	base := decimal.RequireFromString("1.23456789")
	invoiceId := uuid.MustParse("00000000-0000-0000-0000-000000000000")
	adj, err := AdjustedAmount(base, invoiceId, "ERC20", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := decimal.RequireFromString("1.234567")
	if !adj.Equal(expected) {
		t.Errorf("expected %s, got %s", expected, adj)
	}
}

func TestAdjustedAmountPrecisionOutOfRange(t *testing.T) {
	base := decimal.RequireFromString("10")
	invoiceId := uuid.New()
	// ERC20 precision (6) cannot hold k=7 reserved digits
	if _, err := AdjustedAmount(base, invoiceId, "ERC20", 7); err == nil {
		t.Error("expected error for k exceeding network precision")
	}
	// BEP20 precision (18) can
	if _, err := AdjustedAmount(base, invoiceId, "BEP20", 7); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeltaZeroForNonPositiveK(t *testing.T) {
	invoiceId := uuid.New()
	if !Delta(invoiceId, 0).IsZero() {
		t.Error("expected zero delta for k=0")
	}
	if !Delta(invoiceId, -1).IsZero() {
		t.Error("expected zero delta for k=-1")
	}
}
