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
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidApiKey indicates an unknown key id or secret mismatch
var ErrInvalidApiKey = errors.New("invalid API key")

// CreateApiKey stores a salted hash of the key secret for a merchant.
// The plaintext secret is never persisted.
func (s *Store) CreateApiKey(
	ctx context.Context,
	merchantId uuid.UUID,
	keyId string,
	secret string,
) error {
	hash, err := bcrypt.GenerateFromPassword(
		[]byte(secret),
		bcrypt.DefaultCost,
	)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}
	_, err = s.pool.Exec(
		ctx,
		`INSERT INTO api_keys (id, merchant_id, key_id, key_hash)
		VALUES ($1, $2, $3, $4)`,
		uuid.New(),
		merchantId,
		keyId,
		string(hash),
	)
	return wrapConflict(err)
}

// VerifyApiKey checks a presented secret against the stored hash and
// returns the owning merchant id, touching last_used_at on success
func (s *Store) VerifyApiKey(
	ctx context.Context,
	keyId string,
	secret string,
) (uuid.UUID, error) {
	var id uuid.UUID
	var merchantId uuid.UUID
	var keyHash string
	err := s.pool.QueryRow(
		ctx,
		`SELECT id, merchant_id, key_hash FROM api_keys WHERE key_id = $1`,
		keyId,
	).Scan(&id, &merchantId, &keyHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrInvalidApiKey
		}
		return uuid.Nil, err
	}
	if err := bcrypt.CompareHashAndPassword(
		[]byte(keyHash),
		[]byte(secret),
	); err != nil {
		return uuid.Nil, ErrInvalidApiKey
	}
	_, err = s.pool.Exec(
		ctx,
		`UPDATE api_keys SET last_used_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return uuid.Nil, err
	}
	return merchantId, nil
}
