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

// Package amountdiff derives a unique published amount from a base amount
// and an invoice identifier by reserving the k least-significant fractional
// digits for a deterministic per-invoice index. The published amount is
// base + index*10^-k, truncated to the network's decimal precision.
package amountdiff

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Network decimal precisions for USDT
var networkPrecisions = map[string]int32{
	"ERC20": 6,
	"ETH":   6,
	"TRC20": 6,
	"TRON":  6,
	"BEP20": 18,
	"BSC":   18,
}

// DefaultPrecision is the conservative fallback for unknown networks
const DefaultPrecision = 6

// NetworkPrecision returns the number of meaningful fractional decimal
// digits for the given network
func NetworkPrecision(network string) int32 {
	if network == "" {
		return DefaultPrecision
	}
	if prec, ok := networkPrecisions[strings.ToUpper(network)]; ok {
		return prec
	}
	return DefaultPrecision
}

// InvoiceIndex deterministically derives an index in [0, 10^k) from the
// invoice UUID treated as a 128-bit unsigned integer
func InvoiceIndex(invoiceId uuid.UUID, k int) int64 {
	if k <= 0 {
		return 0
	}
	num := new(big.Int).SetBytes(invoiceId[:])
	modulus := new(big.Int).Exp(
		big.NewInt(10),
		big.NewInt(int64(k)),
		nil,
	)
	return new(big.Int).Mod(num, modulus).Int64()
}

// Delta returns the per-invoice amount delta, index * 10^-k
func Delta(invoiceId uuid.UUID, k int) decimal.Decimal {
	if k <= 0 {
		return decimal.Zero
	}
	return decimal.New(InvoiceIndex(invoiceId, k), int32(-k))
}

// AdjustedAmount returns base + delta truncated (toward zero) to the
// network precision. It fails when the network precision cannot represent
// the reserved k digits, since truncating the delta would silently
// collapse the index space.
func AdjustedAmount(
	base decimal.Decimal,
	invoiceId uuid.UUID,
	network string,
	k int,
) (decimal.Decimal, error) {
	prec := NetworkPrecision(network)
	if int32(k) > prec {
		return decimal.Zero, fmt.Errorf(
			"amount-diff k (%d) exceeds network precision (%d) for network %q",
			k,
			prec,
			network,
		)
	}
	raw := base.Add(Delta(invoiceId, k))
	return raw.RoundDown(prec), nil
}
