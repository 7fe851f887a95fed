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
	"fmt"

	"github.com/samber/lo"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
)

// AddMany inserts entities in chunks of the configured size.
func (r *baseRepository[T]) AddMany(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return entities, nil
	}
	err := r.write(ctx, "add_many", func(ctx context.Context, db bun.IDB) error {
		for _, chunk := range lo.Chunk(entities, r.opts.chunkSize) {
			q := db.NewInsert().Model(&chunk)
			if r.returning() {
				q = q.Returning("*")
			}
			if _, err := q.Exec(ctx); err != nil {
				return err
			}
			if err := r.reloadAll(ctx, db, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// DeleteMany removes the rows with ids and returns them. Dialects with
// RETURNING delete each chunk in one statement; the others select the chunk
// first.
func (r *baseRepository[T]) DeleteMany(ctx context.Context, ids []any) ([]*T, error) {
	deleted := make([]*T, 0, len(ids))
	if len(ids) == 0 {
		return deleted, nil
	}
	err := r.write(ctx, "delete_many", func(ctx context.Context, db bun.IDB) error {
		for _, chunk := range lo.Chunk(ids, r.opts.chunkSize) {
			var rows []*T
			del := db.NewDelete().Model((*T)(nil)).Where("? IN (?)", r.idIdent(), bun.In(chunk))
			if r.hasFeature(feature.Returning) {
				if _, err := del.Returning("*").Exec(ctx, &rows); err != nil {
					return err
				}
			} else {
				err := db.NewSelect().
					Model(&rows).
					Where("?TableAlias.? IN (?)", r.idIdent(), bun.In(chunk)).
					Scan(ctx)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					continue
				}
				if _, err := del.Exec(ctx); err != nil {
					return err
				}
			}
			deleted = append(deleted, rows...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// UpdateMany writes the updatable columns of entities. Postgres updates a
// chunk in one statement from a VALUES list; other dialects update row by row.
// Every row must exist; a chunk with an unknown id fails with ErrNotFound
// before it is written.
func (r *baseRepository[T]) UpdateMany(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return entities, nil
	}
	cols := r.updatableColumns()
	err := r.write(ctx, "update_many", func(ctx context.Context, db bun.IDB) error {
		for _, chunk := range lo.Chunk(entities, r.opts.chunkSize) {
			missing, err := r.missingIDs(ctx, db, chunk)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return notFound("update_many", r.table.Name, "no rows with %s in %v", r.opts.idAttribute, missing)
			}
			if r.dialectName() == dialect.PG {
				if _, err := db.NewUpdate().Model(&chunk).Column(cols...).Bulk().Exec(ctx); err != nil {
					return err
				}
				if r.opts.autoRefresh {
					if err := r.reloadEach(ctx, db, chunk); err != nil {
						return err
					}
				}
				continue
			}
			for _, e := range chunk {
				if err := r.updateColumns(ctx, db, e, cols); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// UpsertMany is Upsert applied per chunk.
func (r *baseRepository[T]) UpsertMany(ctx context.Context, entities []*T) ([]*T, error) {
	if len(entities) == 0 {
		return entities, nil
	}
	err := r.write(ctx, "upsert_many", func(ctx context.Context, db bun.IDB) error {
		for _, chunk := range lo.Chunk(entities, r.opts.chunkSize) {
			q := r.upsertQuery(db, &chunk)
			if q == nil {
				for _, e := range chunk {
					if err := r.upsertFallback(ctx, e); err != nil {
						return err
					}
				}
				continue
			}
			if r.returning() {
				q = q.Returning("*")
			}
			if _, err := q.Exec(ctx); err != nil {
				return err
			}
			if err := r.reloadAll(ctx, db, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// reloadAll refreshes rows written without RETURNING.
func (r *baseRepository[T]) reloadAll(ctx context.Context, db bun.IDB, rows []*T) error {
	if !r.reselect() {
		return nil
	}
	return r.reloadEach(ctx, db, rows)
}

func (r *baseRepository[T]) reloadEach(ctx context.Context, db bun.IDB, rows []*T) error {
	for _, e := range rows {
		if err := r.reload(ctx, db, e); err != nil {
			return err
		}
	}
	return nil
}

// missingIDs returns the ids of rows that are not stored.
func (r *baseRepository[T]) missingIDs(ctx context.Context, db bun.IDB, rows []*T) ([]any, error) {
	ids := make([]any, 0, len(rows))
	for _, e := range rows {
		id, err := r.idValue(e)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	var found []*T
	err := db.NewSelect().
		Model(&found).
		Column(r.opts.idAttribute).
		Where("?TableAlias.? IN (?)", r.idIdent(), bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(found))
	for _, e := range found {
		id, err := r.idValue(e)
		if err != nil {
			return nil, err
		}
		seen[fmt.Sprint(id)] = struct{}{}
	}
	var missing []any
	for _, id := range ids {
		if _, ok := seen[fmt.Sprint(id)]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
