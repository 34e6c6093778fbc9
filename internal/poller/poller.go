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

// Package poller pulls the exchange's deposit history into deposit_raw
// in fixed-size windows behind a durable checkpoint, invoking the
// matcher on each newly ingested row.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/blinklabs-io/paygate/internal/binance"
	"github.com/blinklabs-io/paygate/internal/logging"
	"github.com/blinklabs-io/paygate/internal/matcher"
	"github.com/blinklabs-io/paygate/internal/metrics"
	"github.com/blinklabs-io/paygate/internal/store"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// Durable checkpoint row name for this poller
	checkpointKey = "binance_deposit"

	// Max records per window fetch, per the exchange's endpoint cap
	fetchLimit = 200

	// Ceiling for the outer-loop backoff after window failures
	maxBackoff = 300 * time.Second

	// How often to re-sync the exchange clock offset
	timeSyncInterval = 30 * time.Minute
)

// Exchange is the client surface the poller reads from. *binance.Client
// satisfies this.
type Exchange interface {
	SyncTime(ctx context.Context) (int64, error)
	NowMs() int64
	GetDepositHistory(
		ctx context.Context,
		startTimeMs int64,
		endTimeMs int64,
		limit int,
	) ([]binance.DepositRecord, error)
}

type Poller struct {
	client       Exchange
	store        *store.Store
	matcher      *matcher.Matcher
	pollInterval time.Duration
	windowMs     int64
	lookbackMs   int64
	lastTimeSync time.Time
}

func New(
	client Exchange,
	db *store.Store,
	m *matcher.Matcher,
	pollInterval time.Duration,
	windowMs int64,
	lookbackMs int64,
) *Poller {
	return &Poller{
		client:       client,
		store:        db,
		matcher:      m,
		pollInterval: pollInterval,
		windowMs:     windowMs,
		lookbackMs:   lookbackMs,
	}
}

// Run drives the poll loop until the context is cancelled. Window-level
// failures back off exponentially up to five minutes; successful cycles
// reset the backoff and advance the last-success gauge.
func (p *Poller) Run(ctx context.Context) error {
	logger := logging.GetLogger()
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = maxBackoff
	bo.MaxElapsedTime = 0
	for {
		if err := p.maybeSyncTime(ctx); err != nil {
			logger.Warn("exchange time sync failed", "error", err)
		}
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := bo.NextBackOff()
			logger.Error(
				"poll cycle failed",
				"error", err,
				"retryIn", wait.String(),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		metrics.PollerLastSuccess.Set(float64(time.Now().Unix()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}

func (p *Poller) maybeSyncTime(ctx context.Context) error {
	if time.Since(p.lastTimeSync) < timeSyncInterval {
		return nil
	}
	if _, err := p.client.SyncTime(ctx); err != nil {
		return err
	}
	p.lastTimeSync = time.Now()
	return nil
}

// pollOnce walks from the checkpoint to the current adjusted time in
// fixed windows. A window fetch failure aborts the cycle; per-deposit
// failures are logged and skipped so one bad record cannot wedge the
// poller.
func (p *Poller) pollOnce(ctx context.Context) error {
	logger := logging.GetLogger()
	now := p.client.NowMs()
	start, err := p.startTime(ctx, now)
	if err != nil {
		return err
	}
	for _, w := range windows(start, now, p.windowMs) {
		records, err := p.client.GetDepositHistory(
			ctx,
			w.startMs,
			w.endMs,
			fetchLimit,
		)
		if err != nil {
			return fmt.Errorf("failed to fetch deposit history: %w", err)
		}
		sort.Slice(records, func(i, j int) bool {
			return records[i].InsertTime < records[j].InsertTime
		})
		for _, rec := range records {
			if err := p.ingestRecord(ctx, rec); err != nil {
				metrics.DepositsErrors.Inc()
				logger.Error(
					"failed to ingest deposit",
					"txId", rec.TxId,
					"error", err,
				)
			}
		}
	}
	return nil
}

// startTime resolves the checkpoint, seeding it to now minus the
// initial lookback on first run
func (p *Poller) startTime(ctx context.Context, nowMs int64) (int64, error) {
	cp, err := p.store.LoadCheckpoint(ctx, checkpointKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nowMs - p.lookbackMs, nil
		}
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp.LastInsertTimeMs, nil
}

// ingestTx is the transactional surface one record needs. *store.Tx
// satisfies this.
type ingestTx interface {
	matcher.Store
	InsertDeposit(
		ctx context.Context,
		dep *store.DepositRaw,
	) (*store.DepositRaw, bool, error)
	RefreshDeposit(
		ctx context.Context,
		id uuid.UUID,
		status int,
		completeTimeMs int64,
		raw json.RawMessage,
	) error
	SaveCheckpoint(
		ctx context.Context,
		key string,
		lastInsertTimeMs int64,
		lastTxId string,
	) error
}

// ingestRecord stores one exchange record, runs the matcher, and
// advances the checkpoint, all in one transaction. An error rolls the
// whole unit back; the next poll re-ingests it idempotently.
func (p *Poller) ingestRecord(
	ctx context.Context,
	rec binance.DepositRecord,
) error {
	dep, err := convertRecord(rec)
	if err != nil {
		return err
	}
	return p.store.WithTx(ctx, func(tx *store.Tx) error {
		return p.processRecord(ctx, tx, rec, dep)
	})
}

// processRecord inserts the record or, when it was already seen but not
// yet credited, refreshes its exchange-reported fields so confirmation
// growth across polls reaches the matcher. Processed rows only advance
// the checkpoint.
func (p *Poller) processRecord(
	ctx context.Context,
	tx ingestTx,
	rec binance.DepositRecord,
	dep *store.DepositRaw,
) error {
	stored, inserted, err := tx.InsertDeposit(ctx, dep)
	if err != nil {
		return fmt.Errorf("failed to insert deposit: %w", err)
	}
	if !inserted && !stored.Processed {
		if err := tx.RefreshDeposit(
			ctx,
			stored.Id,
			dep.Status,
			dep.CompleteTimeMs,
			dep.Raw,
		); err != nil {
			return fmt.Errorf("failed to refresh deposit: %w", err)
		}
		dep.Id = stored.Id
		stored = dep
	}
	if !stored.Processed {
		if _, err := p.matcher.TryMatchAndCredit(ctx, tx, stored); err != nil {
			return err
		}
	}
	return tx.SaveCheckpoint(ctx, checkpointKey, rec.InsertTime, rec.TxId)
}

// convertRecord maps an exchange record onto a deposit row, keeping the
// verbatim record as the raw payload
func convertRecord(rec binance.DepositRecord) (*store.DepositRaw, error) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return nil, fmt.Errorf(
			"invalid deposit amount %q: %w",
			rec.Amount,
			err,
		)
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return &store.DepositRaw{
		TxId:           rec.TxId,
		Coin:           rec.Coin,
		Network:        rec.Network,
		Amount:         amount,
		Status:         rec.Status,
		Address:        rec.Address,
		AddressTag:     rec.AddressTag,
		InsertTimeMs:   rec.InsertTime,
		CompleteTimeMs: rec.CompleteTime,
		Confirmations:  rec.ConfirmTimes,
		Raw:            raw,
	}, nil
}

type window struct {
	startMs int64
	endMs   int64
}

// windows splits [startMs, endMs) into fixed-size windows, the last one
// truncated to the end time
func windows(startMs int64, endMs int64, windowMs int64) []window {
	var ret []window
	for cur := startMs; cur < endMs; {
		end := cur + windowMs
		if end > endMs {
			end = endMs
		}
		ret = append(ret, window{startMs: cur, endMs: end})
		cur = end
	}
	return ret
}
