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

package dalkit

import (
	"context"
	"sync"

	"github.com/uptrace/bun"

	"github.com/tomoncle/dalkit/database"
	"github.com/tomoncle/dalkit/repository"
	"github.com/tomoncle/dalkit/types"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filters.
	List(ctx context.Context, filters ...types.Filter) ([]*T, error)

	// Query returns entities matching a raw WHERE clause.
	Query(ctx context.Context, where string, args ...any) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Save inserts one or more new entities.
	Save(ctx context.Context, models ...*T) error

	// SaveOrUpdate upserts entities by their id.
	SaveOrUpdate(ctx context.Context, models ...*T) error

	GetOrCreate(ctx context.Context, fields map[string]any, opts ...repository.GetOrCreateOption) (*T, bool, error)

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) error

	// Transaction runs fn in a session. Service calls made with the context
	// handed to fn join it.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	SelectBuilder(ctx context.Context) (*bun.SelectQuery, error)
	InsertBuilder(ctx context.Context) (*bun.InsertQuery, error)
	UpdateBuilder(ctx context.Context) (*bun.UpdateQuery, error)
	DeleteBuilder(ctx context.Context) (*bun.DeleteQuery, error)

	// Repository exposes the underlying repository.
	Repository() (repository.Repository[T], error)
}

type baseServiceImpl[T any] struct {
	db   func() bun.IDB
	opts []repository.Option

	mu     sync.Mutex
	repo   repository.Repository[T]
	repoDB bun.IDB
}

// NewService returns a default Service implementation using the generic
// repository backed by the global database connection. The connection is
// looked up on every call, so a later InitDB is picked up; until InitDB runs
// every method fails with database.ErrNotInitialized.
func NewService[T any](opts ...repository.Option) Service[T] {
	return &baseServiceImpl[T]{
		db: func() bun.IDB {
			if db := database.GetDB(); db != nil {
				return db
			}
			return nil
		},
		opts: opts,
	}
}

// NewServiceWithDB is NewService over an explicit connection.
func NewServiceWithDB[T any](db bun.IDB, opts ...repository.Option) Service[T] {
	return &baseServiceImpl[T]{
		db:   func() bun.IDB { return db },
		opts: opts,
	}
}

func (s *baseServiceImpl[T]) baseRepo() (repository.Repository[T], error) {
	db := s.db()
	if database.IsNil(db) {
		return nil, database.ErrNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.repo == nil || s.repoDB != db {
		s.repo = repository.New[T](db, s.opts...)
		s.repoDB = db
	}
	return s.repo, nil
}

func (s *baseServiceImpl[T]) Repository() (repository.Repository[T], error) {
	return s.baseRepo()
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, models ...*T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	if len(models) == 1 {
		_, err = repo.Add(ctx, models[0])
	} else {
		_, err = repo.AddMany(ctx, models)
	}
	return err
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, models ...*T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	if len(models) == 1 {
		_, err = repo.Upsert(ctx, models[0])
	} else {
		_, err = repo.UpsertMany(ctx, models)
	}
	return err
}

func (s *baseServiceImpl[T]) GetOrCreate(ctx context.Context, fields map[string]any, opts ...repository.GetOrCreateOption) (*T, bool, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, false, err
	}
	return repo.GetOrCreate(ctx, fields, opts...)
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.List(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filters ...types.Filter) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.List(ctx, filters...)
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, where string, args ...any) ([]*T, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Query(ctx, where, args...)
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	_, err = repo.Update(ctx, model)
	return err
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) error {
	repo, err := s.baseRepo()
	if err != nil {
		return err
	}
	_, err = repo.Delete(ctx, id)
	return err
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Page(ctx, page)
}

func (s *baseServiceImpl[T]) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	db := s.db()
	if database.IsNil(db) {
		return database.ErrNotInitialized
	}
	return database.Session(ctx, db, func(ctx context.Context, _ bun.Tx) error {
		return fn(ctx)
	})
}

func (s *baseServiceImpl[T]) SelectBuilder(ctx context.Context) (*bun.SelectQuery, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.NewSelect(ctx), nil
}

func (s *baseServiceImpl[T]) InsertBuilder(ctx context.Context) (*bun.InsertQuery, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.NewInsert(ctx), nil
}

func (s *baseServiceImpl[T]) UpdateBuilder(ctx context.Context) (*bun.UpdateQuery, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.NewUpdate(ctx), nil
}

func (s *baseServiceImpl[T]) DeleteBuilder(ctx context.Context) (*bun.DeleteQuery, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.NewDelete(ctx), nil
}
