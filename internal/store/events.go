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

// InsertAuditLog appends an audit record. The table trigger rejects any
// later UPDATE or DELETE.
func (t *Tx) InsertAuditLog(
	ctx context.Context,
	actor string,
	action string,
	details map[string]any,
) error {
	data, err := jsonArg(details)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(
		ctx,
		`INSERT INTO audit_logs (id, actor, action, details)
		VALUES ($1, $2, $3, $4::jsonb)`,
		uuid.New(),
		actor,
		action,
		data,
	)
	return err
}

// InsertSystemEvent appends an operator-visible event record
func (t *Tx) InsertSystemEvent(
	ctx context.Context,
	source string,
	eventType string,
	payload map[string]any,
) error {
	data, err := jsonArg(payload)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(
		ctx,
		`INSERT INTO system_events (id, source, event_type, payload)
		VALUES ($1, $2, $3, $4::jsonb)`,
		uuid.New(),
		source,
		eventType,
		data,
	)
	return err
}
