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

// Package dalkit is a data-access kit on top of Bun: audited base models,
// a generic repository, context-scoped sessions and endpoint settings.
//
// The usual entry point connects the process-wide database from the
// POSTGRES_* environment and runs work in a session:
//
//	err := dalkit.Session(ctx, func(ctx context.Context, tx bun.Tx) error {
//		_, err := users.Add(ctx, &User{Name: "ada"})
//		return err
//	})
package dalkit

import (
	"context"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/dalkit/database"
	"github.com/tomoncle/dalkit/settings"
)

var connectMu sync.Mutex

// Connect returns the process-wide database, initializing it from the
// POSTGRES_* settings on first use.
func Connect(ctx context.Context) (*bun.DB, error) {
	connectMu.Lock()
	defer connectMu.Unlock()
	if db := database.GetDB(); db != nil {
		return db, nil
	}
	s, err := settings.Load[settings.PostgresSettings]()
	if err != nil {
		return nil, err
	}
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig = *s.ConnectionConfig()
	return database.InitDB(ctx, cfg)
}

// Session connects and runs fn in a transaction that commits when fn returns
// nil. Repositories called with the context passed to fn join it.
func Session(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	db, err := Connect(ctx)
	if err != nil {
		return err
	}
	return database.Session(ctx, db, fn)
}

// Transactional wraps fn so that every call runs in its own session.
func Transactional[R any](fn func(ctx context.Context) (R, error)) func(ctx context.Context) (R, error) {
	return func(ctx context.Context) (R, error) {
		db, err := Connect(ctx)
		if err != nil {
			var zero R
			return zero, err
		}
		return database.WithSession(ctx, db, fn)
	}
}
