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
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice status values
const (
	InvoiceStatusPending                 = "pending"
	InvoiceStatusPaid                    = "paid"
	InvoiceStatusExpired                 = "expired"
	InvoiceStatusPendingManualResolution = "pending_manual_resolution"
)

// Webhook queue status values
const (
	WebhookStatusPending = "pending"
	WebhookStatusSuccess = "success"
	WebhookStatusFailed  = "failed"
)

// Payment status values
const (
	PaymentStatusSettled = "settled"
)

// Ledger entry types
const (
	LedgerEntryTypeCreditInvoice = "credit_invoice"
)

// Merchant is a registered merchant account
type Merchant struct {
	Id               uuid.UUID
	Name             string
	RiskTier         string
	OnboardingStatus string
	WebhookUrl       string
	CreatedAt        time.Time
}

// ApiKey is an opaque key id plus salted hash owned by a merchant
type ApiKey struct {
	Id         uuid.UUID
	MerchantId uuid.UUID
	KeyId      string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Invoice is a merchant payment request with a unique published amount
type Invoice struct {
	Id            uuid.UUID
	MerchantId    uuid.UUID
	PublishAmount decimal.Decimal
	Currency      string
	Network       string
	Address       string
	AddressTag    string
	Status        string
	Metadata      map[string]any
	Expiry        *time.Time
	CreatedAt     time.Time
}

// DepositAddress is a pooled deposit address, optionally allocated to an
// invoice
type DepositAddress struct {
	Id         uuid.UUID
	MerchantId uuid.UUID
	InvoiceId  uuid.UUID
	Address    string
	Network    string
	Allocated  bool
	Metadata   map[string]any
	CreatedAt  time.Time
}

// PollerCheckpoint is the durable high-water mark for a named poller
type PollerCheckpoint struct {
	Key              string
	LastInsertTimeMs int64
	LastTxId         string
	UpdatedAt        time.Time
}

// DepositRaw is the exchange's deposit record verbatim plus a processed bit
type DepositRaw struct {
	Id             uuid.UUID
	TxId           string
	Coin           string
	Network        string
	Amount         decimal.Decimal
	Status         int
	Address        string
	AddressTag     string
	InsertTimeMs   int64
	CompleteTimeMs int64
	Confirmations  int
	Raw            json.RawMessage
	Processed      bool
	CreatedAt      time.Time
}

// Payment is a settled credit against an invoice
type Payment struct {
	Id           uuid.UUID
	InvoiceId    uuid.UUID
	DepositRawId uuid.UUID
	TxId         string
	Amount       decimal.Decimal
	Network      string
	Address      string
	AddressTag   string
	Status       string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// LedgerEntry is an append-only money movement. The ledger_entries table
// carries a trigger rejecting UPDATE and DELETE; retractions are modelled
// as compensating entries.
type LedgerEntry struct {
	Id           uuid.UUID
	MerchantId   uuid.UUID
	ChangeAmount decimal.Decimal
	Currency     string
	EntryType    string
	ReferenceId  uuid.UUID
	Metadata     map[string]any
	CreatedAt    time.Time
}

// WebhookJob is a queued merchant notification. WebhookUrl is resolved
// from the owning merchant at selection time and is not a queue column.
type WebhookJob struct {
	Id             uuid.UUID
	MerchantId     uuid.UUID
	WebhookUrl     string
	Payload        map[string]any
	Attempts       int
	LastError      string
	Status         string
	IdempotencyKey string
	CreatedAt      time.Time
	NextAttemptAt  *time.Time
}

// AuditLog is an append-only operational record
type AuditLog struct {
	Id        uuid.UUID
	Actor     string
	Action    string
	Details   map[string]any
	CreatedAt time.Time
}

// SystemEvent is an operator-visible event record
type SystemEvent struct {
	Id        uuid.UUID
	Source    string
	EventType string
	Payload   map[string]any
	CreatedAt time.Time
}
