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
	"database/sql"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/tomoncle/dalkit/database"
)

var (
	// ErrRepository marks every error returned by a repository.
	ErrRepository = errors.New("repository error")
	// ErrNotFound marks lookups that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks unique, not-null, foreign key and check violations.
	ErrConflict = errors.New("conflict")
)

// RepositoryError carries the failed operation and the entity table.
type RepositoryError struct {
	Op    string
	Table string
	Err   error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is marked ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is marked ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// wrapError classifies err once; errors that already went through it are
// returned untouched.
func wrapError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRepository) {
		return err
	}
	wrapped := errors.Mark(&RepositoryError{Op: op, Table: table, Err: err}, ErrRepository)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return errors.Mark(wrapped, ErrNotFound)
	case database.IsIntegrityError(err):
		return errors.Mark(wrapped, ErrConflict)
	}
	return wrapped
}

func notFound(op, table string, format string, args ...any) error {
	return errors.Mark(errors.Mark(&RepositoryError{Op: op, Table: table, Err: errors.Newf(format, args...)}, ErrRepository), ErrNotFound)
}
