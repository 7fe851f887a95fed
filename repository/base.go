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
	"reflect"
	"slices"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"

	"github.com/tomoncle/dalkit/database"
	"github.com/tomoncle/dalkit/model"
	"github.com/tomoncle/dalkit/types"
)

// immutableColumns are never overwritten by updates and upserts.
var immutableColumns = []string{"created_at"}

type baseRepository[T any] struct {
	db    bun.IDB
	table *schema.Table
	opts  options
}

// New returns a repository for the Bun model T. It panics when T is not a
// struct or the id attribute is not one of its columns.
func New[T any](db bun.IDB, opts ...Option) Repository[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	table, err := model.Table(db, (*T)(nil))
	if err != nil {
		panic(err)
	}
	r := &baseRepository[T]{db: db, table: table, opts: o}
	if _, err := r.column(o.idAttribute); err != nil {
		panic(err)
	}
	return r
}

func (r *baseRepository[T]) Table() *schema.Table    { return r.table }
func (r *baseRepository[T]) IDAttribute() string     { return r.opts.idAttribute }
func (r *baseRepository[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepository[T]) NewSelect(ctx context.Context) *bun.SelectQuery {
	return r.conn(ctx).NewSelect().Model((*T)(nil))
}

func (r *baseRepository[T]) NewInsert(ctx context.Context) *bun.InsertQuery {
	return r.conn(ctx).NewInsert()
}

func (r *baseRepository[T]) NewUpdate(ctx context.Context) *bun.UpdateQuery {
	return r.conn(ctx).NewUpdate().Model((*T)(nil))
}

func (r *baseRepository[T]) NewDelete(ctx context.Context) *bun.DeleteQuery {
	return r.conn(ctx).NewDelete().Model((*T)(nil))
}

func (r *baseRepository[T]) conn(ctx context.Context) bun.IDB {
	return database.Conn(ctx, r.db)
}

// write runs fn on the session connection, or in a fresh Session when auto
// commit is on and ctx carries none.
func (r *baseRepository[T]) write(ctx context.Context, op string, fn func(ctx context.Context, db bun.IDB) error) error {
	var err error
	if _, inTx := database.TxFromContext(ctx); r.opts.autoCommit && !inTx {
		err = database.Session(ctx, r.db, func(ctx context.Context, tx bun.Tx) error {
			return fn(ctx, tx)
		})
	} else {
		err = fn(ctx, r.conn(ctx))
	}
	return r.wrap(op, err)
}

func (r *baseRepository[T]) wrap(op string, err error) error {
	return wrapError(op, r.table.Name, err)
}

func (r *baseRepository[T]) column(name string) (bun.Ident, error) {
	for _, f := range r.table.Fields {
		if f.Name == name {
			return bun.Ident(name), nil
		}
	}
	return "", fmt.Errorf("%s has no column %q", r.table.Name, name)
}

func (r *baseRepository[T]) idIdent() bun.Ident { return bun.Ident(r.opts.idAttribute) }

func (r *baseRepository[T]) idValue(entity *T) (any, error) {
	return model.GetField(r.db, entity, r.opts.idAttribute)
}

func (r *baseRepository[T]) dialectName() dialect.Name { return r.db.Dialect().Name() }

func (r *baseRepository[T]) hasFeature(f feature.Feature) bool {
	return r.db.Dialect().Features().Has(f)
}

// returning reports whether writes refresh through RETURNING *.
func (r *baseRepository[T]) returning() bool {
	return r.opts.autoRefresh && r.hasFeature(feature.Returning)
}

// reselect reports whether writes refresh through a follow-up SELECT.
func (r *baseRepository[T]) reselect() bool {
	return r.opts.autoRefresh && !r.hasFeature(feature.Returning)
}

func (r *baseRepository[T]) reload(ctx context.Context, db bun.IDB, entity *T) error {
	id, err := r.idValue(entity)
	if err != nil {
		return err
	}
	return db.NewSelect().Model(entity).Where("?TableAlias.? = ?", r.idIdent(), id).Scan(ctx)
}

// updatableColumns are the SET targets of updates and upserts.
func (r *baseRepository[T]) updatableColumns() []string {
	cols := make([]string, 0, len(r.table.Fields))
	for _, f := range r.table.Fields {
		if f.IsPK || f.Name == r.opts.idAttribute || slices.Contains(immutableColumns, f.Name) {
			continue
		}
		cols = append(cols, f.Name)
	}
	return cols
}

// fromFields builds a T holding fields so values can be compared after the same
// conversions SetField applies.
func (r *baseRepository[T]) fromFields(fields map[string]any) (*T, error) {
	p := new(T)
	for k, v := range fields {
		if err := model.SetField(r.db, p, k, v); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *baseRepository[T]) Add(ctx context.Context, entity *T) (*T, error) {
	err := r.write(ctx, "add", func(ctx context.Context, db bun.IDB) error {
		q := db.NewInsert().Model(entity)
		if r.returning() {
			q = q.Returning("*")
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
		if r.reselect() {
			return r.reload(ctx, db, entity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepository[T]) Get(ctx context.Context, id any) (*T, error) {
	entity := new(T)
	err := r.conn(ctx).NewSelect().
		Model(entity).
		Where("?TableAlias.? = ?", r.idIdent(), id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, r.wrap("get", err)
	}
	return entity, nil
}

// GetOne returns the single row matching filters. No row is ErrNotFound and
// more than one is a repository error.
func (r *baseRepository[T]) GetOne(ctx context.Context, filters ...types.Filter) (*T, error) {
	entity, err := r.findOne(ctx, "get_one", filters)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, notFound("get_one", r.table.Name, "no row matches %d filters", len(filters))
	}
	return entity, nil
}

// GetOneOrNone is GetOne returning nil, nil when no row matches.
func (r *baseRepository[T]) GetOneOrNone(ctx context.Context, filters ...types.Filter) (*T, error) {
	return r.findOne(ctx, "get_one_or_none", filters)
}

func (r *baseRepository[T]) findOne(ctx context.Context, op string, filters []types.Filter) (*T, error) {
	var rows []*T
	q, err := r.applyFilters(r.conn(ctx).NewSelect().Model(&rows), true, filters...)
	if err != nil {
		return nil, r.wrap(op, err)
	}
	if err := q.Limit(2).Scan(ctx); err != nil {
		return nil, r.wrap(op, err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return rows[0], nil
	default:
		return nil, r.wrap(op, fmt.Errorf("multiple rows match"))
	}
}

// GetOrCreate looks a row up by the match fields present in fields, or by all
// of fields when no match fields are configured. A missing row is built from
// fields and added. An existing one is updated with the differing values
// unless WithUpsert(false) is passed.
func (r *baseRepository[T]) GetOrCreate(ctx context.Context, fields map[string]any, opts ...GetOrCreateOption) (*T, bool, error) {
	o := getOrCreateOptions{matchFields: r.opts.matchFields, upsert: true}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		entity  *T
		created bool
	)
	err := r.write(ctx, "get_or_create", func(ctx context.Context, db bun.IDB) error {
		want, err := r.fromFields(fields)
		if err != nil {
			return err
		}

		match := fields
		if len(o.matchFields) > 0 {
			match = make(map[string]any, len(o.matchFields))
			for _, name := range o.matchFields {
				if v, ok := fields[name]; ok && v != nil {
					match[name] = v
				}
			}
		}

		existing, err := r.GetOneOrNone(ctx, types.ByFields(match)...)
		if err != nil {
			return err
		}
		if existing == nil {
			entity, created = want, true
			_, err := r.Add(ctx, want)
			return err
		}

		entity = existing
		if !o.upsert {
			return nil
		}
		var changed []string
		for name := range fields {
			cur, _ := model.GetField(r.db, existing, name)
			next, _ := model.GetField(r.db, want, name)
			if !reflect.DeepEqual(cur, next) {
				if err := model.SetField(r.db, existing, name, next); err != nil {
					return err
				}
				changed = append(changed, name)
			}
		}
		if len(changed) == 0 {
			return nil
		}
		if _, err := r.column("updated_at"); err == nil && !slices.Contains(changed, "updated_at") {
			changed = append(changed, "updated_at")
		}
		return r.updateColumns(ctx, db, existing, changed)
	})
	if err != nil {
		return nil, false, err
	}
	return entity, created, nil
}

func (r *baseRepository[T]) updateColumns(ctx context.Context, db bun.IDB, entity *T, cols []string) error {
	id, err := r.idValue(entity)
	if err != nil {
		return err
	}
	q := db.NewUpdate().Model(entity).Column(cols...).Where("? = ?", r.idIdent(), id)
	if r.returning() {
		q = q.Returning("*")
	}
	if _, err := q.Exec(ctx); err != nil {
		return err
	}
	if r.reselect() {
		return r.reload(ctx, db, entity)
	}
	return nil
}

// Update writes every column of entity to the row with the same id. The row
// must exist. Immutable columns, and zero values of not-null columns the
// database fills in, are taken from the stored row.
func (r *baseRepository[T]) Update(ctx context.Context, entity *T) (*T, error) {
	err := r.write(ctx, "update", func(ctx context.Context, db bun.IDB) error {
		id, err := r.idValue(entity)
		if err != nil {
			return err
		}
		existing, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		r.keepStored(entity, existing)

		q := db.NewUpdate().Model(entity).Where("? = ?", r.idIdent(), id)
		if r.returning() {
			q = q.Returning("*")
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
		if r.reselect() {
			return r.reload(ctx, db, entity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepository[T]) keepStored(entity, stored *T) {
	ev := reflect.ValueOf(entity).Elem()
	sv := reflect.ValueOf(stored).Elem()
	for _, f := range r.table.Fields {
		if f.IsPK {
			continue
		}
		if slices.Contains(immutableColumns, f.Name) {
			f.Value(ev).Set(f.Value(sv))
			continue
		}
		if !f.NotNull || !f.NullZero {
			continue
		}
		if dst := f.Value(ev); dst.IsZero() {
			dst.Set(f.Value(sv))
		}
	}
}

// Upsert inserts entity or, when its id already exists, overwrites the
// updatable columns.
func (r *baseRepository[T]) Upsert(ctx context.Context, entity *T) (*T, error) {
	err := r.write(ctx, "upsert", func(ctx context.Context, db bun.IDB) error {
		q := r.upsertQuery(db, entity)
		if q == nil {
			return r.upsertFallback(ctx, entity)
		}
		if r.returning() {
			q = q.Returning("*")
		}
		if _, err := q.Exec(ctx); err != nil {
			return err
		}
		if r.reselect() {
			return r.reload(ctx, db, entity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// upsertQuery renders ON CONFLICT or ON DUPLICATE KEY for m, or returns nil
// when the dialect has neither.
func (r *baseRepository[T]) upsertQuery(db bun.IDB, m any) *bun.InsertQuery {
	cols := r.updatableColumns()
	q := db.NewInsert().Model(m)
	switch {
	case r.hasFeature(feature.InsertOnConflict):
		if len(cols) == 0 {
			return q.On("CONFLICT (?) DO NOTHING", r.idIdent())
		}
		q = q.On("CONFLICT (?) DO UPDATE", r.idIdent())
		for _, c := range cols {
			q = q.Set("? = EXCLUDED.?", bun.Ident(c), bun.Ident(c))
		}
	case r.hasFeature(feature.InsertOnDuplicateKey):
		q = q.On("DUPLICATE KEY UPDATE")
		for _, c := range cols {
			q = q.Set("? = VALUES(?)", bun.Ident(c), bun.Ident(c))
		}
		if len(cols) == 0 {
			q = q.Set("? = ?", r.idIdent(), r.idIdent())
		}
	default:
		return nil
	}
	return q
}

func (r *baseRepository[T]) upsertFallback(ctx context.Context, entity *T) error {
	id, err := r.idValue(entity)
	if err != nil {
		return err
	}
	if id != nil && !reflect.ValueOf(id).IsZero() {
		found, err := r.GetOneOrNone(ctx, types.Eq(r.opts.idAttribute, id))
		if err != nil {
			return err
		}
		if found != nil {
			_, err = r.Update(ctx, entity)
			return err
		}
	}
	_, err = r.Add(ctx, entity)
	return err
}

// Delete removes the row with id and returns it.
func (r *baseRepository[T]) Delete(ctx context.Context, id any) (*T, error) {
	var deleted *T
	err := r.write(ctx, "delete", func(ctx context.Context, db bun.IDB) error {
		entity, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, err := db.NewDelete().Model((*T)(nil)).Where("? = ?", r.idIdent(), id).Exec(ctx); err != nil {
			return err
		}
		deleted = entity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Count ignores LimitOffset and OrderBy filters.
func (r *baseRepository[T]) Count(ctx context.Context, filters ...types.Filter) (int, error) {
	q, err := r.applyFilters(r.conn(ctx).NewSelect().Model((*T)(nil)), false, filters...)
	if err != nil {
		return 0, r.wrap("count", err)
	}
	n, err := q.Count(ctx)
	return n, r.wrap("count", err)
}

func (r *baseRepository[T]) Exists(ctx context.Context, filters ...types.Filter) (bool, error) {
	n, err := r.Count(ctx, filters...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *baseRepository[T]) List(ctx context.Context, filters ...types.Filter) ([]*T, error) {
	rows := make([]*T, 0)
	q, err := r.applyFilters(r.conn(ctx).NewSelect().Model(&rows), true, filters...)
	if err != nil {
		return nil, r.wrap("list", err)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, r.wrap("list", err)
	}
	return rows, nil
}

// ListAndCount returns the page selected by filters and the total number of
// rows matching them without pagination.
func (r *baseRepository[T]) ListAndCount(ctx context.Context, filters ...types.Filter) ([]*T, int, error) {
	rows := make([]*T, 0)
	q, err := r.applyFilters(r.conn(ctx).NewSelect().Model(&rows), true, filters...)
	if err != nil {
		return nil, 0, r.wrap("list_and_count", err)
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, r.wrap("list_and_count", err)
	}
	return rows, total, nil
}

// Query lists rows matching a raw WHERE clause.
func (r *baseRepository[T]) Query(ctx context.Context, where string, args ...any) ([]*T, error) {
	return r.List(ctx, types.QueryFilter{Schema: where, Args: args})
}

func (r *baseRepository[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewDefaultPageRequest(types.DefaultPage, types.DefaultPageSize)
	}
	items, total, err := r.ListAndCount(ctx, page.Filters()...)
	if err != nil {
		return nil, err
	}
	p := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	p.Total = total
	p.Items = items
	return p, nil
}

// FilterCollection keeps the items whose columns equal fields. Unknown
// columns match nothing.
func (r *baseRepository[T]) FilterCollection(items []*T, fields map[string]any) []*T {
	want, err := r.fromFields(fields)
	if err != nil {
		return []*T{}
	}
	out := make([]*T, 0, len(items))
	for _, item := range items {
		keep := true
		for name := range fields {
			a, _ := model.GetField(r.db, item, name)
			b, _ := model.GetField(r.db, want, name)
			if !reflect.DeepEqual(a, b) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out
}

func (r *baseRepository[T]) CheckHealth(ctx context.Context) (bool, error) {
	return CheckHealth(ctx, r.conn(ctx))
}

// CheckHealth runs SELECT 1 on db.
func CheckHealth(ctx context.Context, db bun.IDB) (bool, error) {
	var one int
	if err := db.NewSelect().ColumnExpr("1").Scan(ctx, &one); err != nil {
		return false, wrapError("check_health", "", err)
	}
	return one == 1, nil
}
