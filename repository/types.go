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

package repository

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/dalkit/types"
)

// CrudRepository defines the single and bulk entity operations.
type CrudRepository[T any] interface {
	Add(ctx context.Context, entity *T) (*T, error)
	AddMany(ctx context.Context, entities []*T) ([]*T, error)

	Get(ctx context.Context, id any) (*T, error)
	GetOne(ctx context.Context, filters ...types.Filter) (*T, error)
	GetOneOrNone(ctx context.Context, filters ...types.Filter) (*T, error)
	GetOrCreate(ctx context.Context, fields map[string]any, opts ...GetOrCreateOption) (*T, bool, error)

	Update(ctx context.Context, entity *T) (*T, error)
	UpdateMany(ctx context.Context, entities []*T) ([]*T, error)
	Upsert(ctx context.Context, entity *T) (*T, error)
	UpsertMany(ctx context.Context, entities []*T) ([]*T, error)

	Delete(ctx context.Context, id any) (*T, error)
	DeleteMany(ctx context.Context, ids []any) ([]*T, error)
}

// QueryRepository defines filtered reads.
type QueryRepository[T any] interface {
	Count(ctx context.Context, filters ...types.Filter) (int, error)
	Exists(ctx context.Context, filters ...types.Filter) (bool, error)
	List(ctx context.Context, filters ...types.Filter) ([]*T, error)
	ListAndCount(ctx context.Context, filters ...types.Filter) ([]*T, int, error)
	Query(ctx context.Context, where string, args ...any) ([]*T, error)
	FilterCollection(items []*T, fields map[string]any) []*T
}

// PageQueryRepository defines pagination.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// Repository combines the entity operations and exposes Bun query builders
// for everything else. Builders use the session transaction in ctx, if any.
type Repository[T any] interface {
	CrudRepository[T]
	QueryRepository[T]
	PageQueryRepository[T]

	CheckHealth(ctx context.Context) (bool, error)
	Table() *schema.Table
	IDAttribute() string
	Dialect() schema.Dialect
	NewSelect(ctx context.Context) *bun.SelectQuery
	NewInsert(ctx context.Context) *bun.InsertQuery
	NewUpdate(ctx context.Context) *bun.UpdateQuery
	NewDelete(ctx context.Context) *bun.DeleteQuery
}
