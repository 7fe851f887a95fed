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

import "strings"

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by domain types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// SortOrder is the direction of an OrderBy filter.
type SortOrder int

const (
	Asc SortOrder = iota
	Desc
)

var _ BaseEnum = Asc

// ParseSortOrder accepts "asc" and "desc" in any case. Anything else yields an
// invalid SortOrder.
func ParseSortOrder(s string) SortOrder {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "":
		return Asc
	case "desc":
		return Desc
	default:
		return SortOrder(IllegalValue)
	}
}

func (o SortOrder) IsValid() bool { return o == Asc || o == Desc }

func (o SortOrder) Number() int { return int(o) }

func (o SortOrder) String() string { return o.Name() }

func (o SortOrder) Name() string {
	switch o {
	case Asc:
		return "asc"
	case Desc:
		return "desc"
	default:
		return IllegalName
	}
}

func (o SortOrder) Desc() string {
	switch o {
	case Asc:
		return "ascending"
	case Desc:
		return "descending"
	default:
		return IllegalDesc
	}
}

// SQL returns the keyword used in ORDER BY clauses.
func (o SortOrder) SQL() string {
	if o == Desc {
		return "DESC"
	}
	return "ASC"
}
