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
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/tomoncle/dalkit/types"
)

// applyFilters narrows q in filter order. With paginate false, LimitOffset and
// OrderBy are skipped so the query can be counted.
func (r *baseRepository[T]) applyFilters(q *bun.SelectQuery, paginate bool, filters ...types.Filter) (*bun.SelectQuery, error) {
	for _, f := range filters {
		if f == nil {
			continue
		}
		if !paginate && types.IsPagination(f) {
			continue
		}
		var err error
		if q, err = r.applyFilter(q, f); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (r *baseRepository[T]) applyFilter(q *bun.SelectQuery, f types.Filter) (*bun.SelectQuery, error) {
	switch f := f.(type) {
	case *types.LimitOffset:
		if f == nil {
			return q, nil
		}
		return r.applyFilter(q, *f)
	case *types.OrderBy:
		if f == nil {
			return q, nil
		}
		return r.applyFilter(q, *f)
	case *types.QueryFilter:
		if f == nil {
			return q, nil
		}
		return r.applyFilter(q, *f)

	case types.LimitOffset:
		if f.Limit > 0 {
			q = q.Limit(f.Limit)
		}
		if f.Offset > 0 {
			q = q.Offset(f.Offset)
		}
	case types.OrderBy:
		col, err := r.column(f.Field)
		if err != nil {
			return nil, err
		}
		if !f.Order.IsValid() {
			return nil, fmt.Errorf("invalid sort order %d for %s", f.Order, f.Field)
		}
		q = q.OrderExpr("?TableAlias.? "+f.Order.SQL(), col)
	case types.BeforeAfter:
		col, err := r.column(f.Field)
		if err != nil {
			return nil, err
		}
		if f.Before != nil {
			q = q.Where("?TableAlias.? < ?", col, *f.Before)
		}
		if f.After != nil {
			q = q.Where("?TableAlias.? > ?", col, *f.After)
		}
	case types.OnBeforeAfter:
		col, err := r.column(f.Field)
		if err != nil {
			return nil, err
		}
		if f.OnOrBefore != nil {
			q = q.Where("?TableAlias.? <= ?", col, *f.OnOrBefore)
		}
		if f.OnOrAfter != nil {
			q = q.Where("?TableAlias.? >= ?", col, *f.OnOrAfter)
		}
	case types.CollectionFilter:
		col, err := r.column(f.Field)
		if err != nil {
			return nil, err
		}
		if len(f.Values) > 0 {
			q = q.Where("?TableAlias.? IN (?)", col, bun.In(f.Values))
		}
	case types.NotInCollectionFilter:
		col, err := r.column(f.Field)
		if err != nil {
			return nil, err
		}
		if len(f.Values) > 0 {
			q = q.Where("?TableAlias.? NOT IN (?)", col, bun.In(f.Values))
		}
	case types.SearchFilter:
		col, err := r.column(f.Field)
		if err != nil {
			return nil, err
		}
		q = q.Where(r.likeExpr(false, f.IgnoreCase), col, "%"+f.Value+"%")
	case types.NotInSearchFilter:
		col, err := r.column(f.Field)
		if err != nil {
			return nil, err
		}
		q = q.Where(r.likeExpr(true, f.IgnoreCase), col, "%"+f.Value+"%")
	case types.FieldEquals:
		col, err := r.column(f.Field)
		if err != nil {
			return nil, err
		}
		if f.Value == nil {
			q = q.Where("?TableAlias.? IS NULL", col)
		} else {
			q = q.Where("?TableAlias.? = ?", col, f.Value)
		}
	case types.QueryFilter:
		if f.Schema != "" {
			q = q.Where(f.Schema, f.Args...)
		}
	default:
		return nil, fmt.Errorf("unexpected filter %T", f)
	}
	return q, nil
}

// likeExpr uses ILIKE where Postgres offers it and lower-cases both sides
// elsewhere.
func (r *baseRepository[T]) likeExpr(negate, ignoreCase bool) string {
	not := ""
	if negate {
		not = "NOT "
	}
	switch {
	case !ignoreCase:
		return "?TableAlias.? " + not + "LIKE ?"
	case r.dialectName() == dialect.PG:
		return "?TableAlias.? " + not + "ILIKE ?"
	default:
		return "LOWER(?TableAlias.?) " + not + "LIKE LOWER(?)"
	}
}
