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

const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// QueryFilter describes a raw WHERE clause and its argument values. It can be
// passed wherever a Filter is accepted.
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// PageRequest describes a page window, the filters narrowing it and its
// ordering.
type PageRequest struct {
	page     int
	pageSize int
	filters  []Filter
	orders   []OrderBy
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = DefaultPageSize
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = DefaultPage
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilters() []Filter {
	return p.filters
}

func (p *PageRequest) GetOrders() []OrderBy {
	return p.orders
}

// Filters expands the request into repository filters: narrowing filters,
// then ordering, then the LimitOffset window.
func (p *PageRequest) Filters() []Filter {
	out := make([]Filter, 0, len(p.filters)+len(p.orders)+1)
	out = append(out, p.filters...)
	for _, o := range p.orders {
		out = append(out, o)
	}
	return append(out, LimitOffset{Limit: p.GetPageSize(), Offset: p.GetOffset()})
}

// NewPageRequest constructs a PageRequest with filters and orders.
func NewPageRequest(page int, pageSize int, filters []Filter, orders []OrderBy) *PageRequest {
	return &PageRequest{page, pageSize, filters, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with filters only.
func NewPageRequestWithFilter(page int, pageSize int, filters ...Filter) *PageRequest {
	return NewPageRequest(page, pageSize, filters, nil)
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders ...OrderBy) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, nil)
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Total    int  `json:"total"`
	Items    []*T `json:"items"`
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}

// Pages returns the number of pages needed to hold Total items.
func (p *Pagination[T]) Pages() int {
	if p.PageSize < 1 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
