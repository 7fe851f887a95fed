/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package model

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Now is the clock used for audit columns. Always UTC.
var Now = func() time.Time { return time.Now().UTC() }

// UUIDPrimaryKey adds a client generated version 4 UUID primary key.
type UUIDPrimaryKey struct {
	ID uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
}

func (m *UUIDPrimaryKey) BeforeAppendModel(_ context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		m.ensureID()
	}
	return nil
}

func (m *UUIDPrimaryKey) ensureID() {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
}

// BigIntPrimaryKey adds a database generated bigint primary key.
type BigIntPrimaryKey struct {
	ID int64 `bun:"id,pk,autoincrement" json:"id"`
}

// AuditColumns tracks row creation and last update in UTC.
type AuditColumns struct {
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

func (m *AuditColumns) BeforeAppendModel(_ context.Context, query bun.Query) error {
	m.touch(query)
	return nil
}

func (m *AuditColumns) touch(query bun.Query) {
	now := Now()
	switch query.(type) {
	case *bun.InsertQuery:
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
	case *bun.UpdateQuery:
	default:
		return
	}
	if now.Before(m.CreatedAt) {
		now = m.CreatedAt
	}
	m.UpdatedAt = now
}

// UUIDBase is the base for entities keyed by a UUID.
type UUIDBase struct {
	UUIDPrimaryKey
}

// UUIDAuditBase is UUIDBase with audit columns.
type UUIDAuditBase struct {
	UUIDPrimaryKey
	AuditColumns
}

// BeforeAppendModel resolves the hook of both embedded mixins, which would
// otherwise cancel each other out.
func (m *UUIDAuditBase) BeforeAppendModel(_ context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		m.ensureID()
	}
	m.touch(query)
	return nil
}

// BigIntBase is the base for entities keyed by an auto incremented bigint.
type BigIntBase struct {
	BigIntPrimaryKey
}

// BigIntAuditBase is BigIntBase with audit columns.
type BigIntAuditBase struct {
	BigIntPrimaryKey
	AuditColumns
}

// AssociationBase is the base for many-to-many link tables. The surrogate key
// keeps link rows addressable by the generic repository.
type AssociationBase struct {
	BigIntPrimaryKey
}

// AssociationAuditBase is AssociationBase with audit columns.
type AssociationAuditBase struct {
	BigIntPrimaryKey
	AuditColumns
}

var (
	_ bun.BeforeAppendModelHook = (*UUIDPrimaryKey)(nil)
	_ bun.BeforeAppendModelHook = (*AuditColumns)(nil)
	_ bun.BeforeAppendModelHook = (*UUIDBase)(nil)
	_ bun.BeforeAppendModelHook = (*UUIDAuditBase)(nil)
	_ bun.BeforeAppendModelHook = (*BigIntAuditBase)(nil)
	_ bun.BeforeAppendModelHook = (*AssociationAuditBase)(nil)
)
