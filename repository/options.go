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

// DefaultChunkSize keeps bulk statements below the bind parameter limits of
// the supported drivers.
const DefaultChunkSize = 950

type options struct {
	idAttribute string
	matchFields []string
	autoRefresh bool
	autoCommit  bool
	chunkSize   int
}

func defaultOptions() options {
	return options{
		idAttribute: "id",
		autoRefresh: true,
		chunkSize:   DefaultChunkSize,
	}
}

type Option func(*options)

// WithIDAttribute selects the column used by Get, Update and Delete.
func WithIDAttribute(column string) Option {
	return func(o *options) {
		if column != "" {
			o.idAttribute = column
		}
	}
}

// WithMatchFields sets the default columns GetOrCreate matches on.
func WithMatchFields(columns ...string) Option {
	return func(o *options) { o.matchFields = columns }
}

// WithAutoRefresh reloads rows after writes so generated values are visible.
func WithAutoRefresh(b bool) Option {
	return func(o *options) { o.autoRefresh = b }
}

// WithAutoCommit runs each write in its own transaction when the context
// carries no session.
func WithAutoCommit(b bool) Option {
	return func(o *options) { o.autoCommit = b }
}

func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

type getOrCreateOptions struct {
	matchFields []string
	upsert      bool
}

type GetOrCreateOption func(*getOrCreateOptions)

// MatchOn overrides the repository match fields for one call.
func MatchOn(columns ...string) GetOrCreateOption {
	return func(o *getOrCreateOptions) { o.matchFields = columns }
}

// WithUpsert controls whether an existing row is updated with the differing
// values. It defaults to true.
func WithUpsert(b bool) GetOrCreateOption {
	return func(o *getOrCreateOptions) { o.upsert = b }
}
