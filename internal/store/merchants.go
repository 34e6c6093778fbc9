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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateMerchant registers a merchant account
func (s *Store) CreateMerchant(ctx context.Context, m *Merchant) error {
	if m.Id == uuid.Nil {
		m.Id = uuid.New()
	}
	if m.RiskTier == "" {
		m.RiskTier = "low"
	}
	if m.OnboardingStatus == "" {
		m.OnboardingStatus = "pending"
	}
	_, err := s.pool.Exec(
		ctx,
		`INSERT INTO merchants (id, name, risk_tier, onboarding_status, webhook_url)
		VALUES ($1, $2, $3, $4, nullif($5, ''))`,
		m.Id,
		m.Name,
		m.RiskTier,
		m.OnboardingStatus,
		m.WebhookUrl,
	)
	return wrapConflict(err)
}

// GetMerchant fetches a merchant by id
func (s *Store) GetMerchant(
	ctx context.Context,
	id uuid.UUID,
) (*Merchant, error) {
	var m Merchant
	err := s.pool.QueryRow(
		ctx,
		`SELECT id, name, risk_tier, onboarding_status,
			coalesce(webhook_url, ''), created_at
		FROM merchants WHERE id = $1`,
		id,
	).Scan(
		&m.Id,
		&m.Name,
		&m.RiskTier,
		&m.OnboardingStatus,
		&m.WebhookUrl,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
