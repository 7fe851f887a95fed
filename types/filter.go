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

package types

import (
	"sort"
	"time"
)

// Filter narrows, orders or paginates a repository query. The set of filters is
// closed; repositories reject types they do not know.
type Filter interface {
	isFilter()
}

// BeforeAfter keeps rows whose Field is strictly before Before and strictly
// after After. Nil bounds are ignored.
type BeforeAfter struct {
	Field  string
	Before *time.Time
	After  *time.Time
}

// OnBeforeAfter is the inclusive variant of BeforeAfter.
type OnBeforeAfter struct {
	Field      string
	OnOrBefore *time.Time
	OnOrAfter  *time.Time
}

// CollectionFilter keeps rows whose Field is one of Values. An empty Values
// leaves the query untouched.
type CollectionFilter struct {
	Field  string
	Values []any
}

// NotInCollectionFilter drops rows whose Field is one of Values. An empty
// Values leaves the query untouched.
type NotInCollectionFilter struct {
	Field  string
	Values []any
}

// LimitOffset paginates. Count queries ignore it.
type LimitOffset struct {
	Limit  int
	Offset int
}

type OrderBy struct {
	Field string
	Order SortOrder
}

// SearchFilter matches Field against %Value% with LIKE, or ILIKE when
// IgnoreCase is set.
type SearchFilter struct {
	Field      string
	Value      string
	IgnoreCase bool
}

// NotInSearchFilter is the negation of SearchFilter.
type NotInSearchFilter struct {
	Field      string
	Value      string
	IgnoreCase bool
}

// FieldEquals keeps rows whose Field equals Value.
type FieldEquals struct {
	Field string
	Value any
}

func (BeforeAfter) isFilter()           {}
func (OnBeforeAfter) isFilter()         {}
func (CollectionFilter) isFilter()      {}
func (NotInCollectionFilter) isFilter() {}
func (LimitOffset) isFilter()           {}
func (OrderBy) isFilter()               {}
func (SearchFilter) isFilter()          {}
func (NotInSearchFilter) isFilter()     {}
func (FieldEquals) isFilter()           {}
func (QueryFilter) isFilter()           {}

// In builds a CollectionFilter from typed values.
func In[V any](field string, values ...V) CollectionFilter {
	return CollectionFilter{Field: field, Values: toAny(values)}
}

// NotIn builds a NotInCollectionFilter from typed values.
func NotIn[V any](field string, values ...V) NotInCollectionFilter {
	return NotInCollectionFilter{Field: field, Values: toAny(values)}
}

func Eq(field string, value any) FieldEquals {
	return FieldEquals{Field: field, Value: value}
}

// ByFields turns column/value pairs into equality filters ordered by column
// name.
func ByFields(fields map[string]any) []Filter {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Filter, 0, len(keys))
	for _, k := range keys {
		out = append(out, FieldEquals{Field: k, Value: fields[k]})
	}
	return out
}

// IsPagination reports whether f only shapes the result window, so count
// queries can skip it.
func IsPagination(f Filter) bool {
	switch f.(type) {
	case LimitOffset, *LimitOffset, OrderBy, *OrderBy:
		return true
	}
	return false
}

func toAny[V any](values []V) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
