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

package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

type (
	txKey    struct{}
	hooksKey struct{}
)

type commitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

func (h *commitHooks) run(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// AfterCommit defers fn until the outermost Session of ctx commits. Rolled
// back sessions drop it. Without a Session fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if h, ok := ctx.Value(hooksKey{}).(*commitHooks); ok {
		h.mu.Lock()
		h.fns = append(h.fns, fn)
		h.mu.Unlock()
		return
	}
	fn(ctx)
}

// ContextWithTx stores tx so nested sessions and repositories join it.
func ContextWithTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction of the enclosing Session, if any.
func TxFromContext(ctx context.Context) (bun.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(bun.Tx)
	return tx, ok
}

// Conn returns the session transaction carried by ctx, or fallback.
func Conn(ctx context.Context, fallback bun.IDB) bun.IDB {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return fallback
}

// Session runs fn inside a transaction and commits when it returns nil.
// When fn fails or panics the transaction is rolled back; the error is
// logged and returned, a panic is re-raised. A Session started under another
// one joins the outer transaction and leaves commit to it.
func Session(ctx context.Context, db bun.IDB, fn func(ctx context.Context, tx bun.Tx) error) (err error) {
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	if IsNil(db) {
		return fmt.Errorf("session: %w", ErrNotInitialized)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			GetLogger().Error("Session rolled back after panic", "panic", p)
			panic(p)
		}
	}()

	hooks := &commitHooks{}
	txCtx := context.WithValue(ContextWithTx(ctx, tx), hooksKey{}, hooks)
	if err = fn(txCtx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			GetLogger().Error("Session rollback failed", "error", rbErr)
		}
		GetLogger().Error("Session rolled back", "error", err)
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	hooks.run(context.WithoutCancel(ctx))
	return nil
}

// WithSession is Session for functions that produce a value.
func WithSession[R any](ctx context.Context, db bun.IDB, fn func(ctx context.Context) (R, error)) (R, error) {
	var out R
	err := Session(ctx, db, func(ctx context.Context, _ bun.Tx) error {
		r, err := fn(ctx)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}
