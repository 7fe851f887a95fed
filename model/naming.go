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

package model

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// NamingConvention holds the templates used to name constraints. The
// placeholders follow the column_0/table/referred_table vocabulary.
var NamingConvention = map[string]string{
	"ix": "ix_%(column_0_label)s",
	"uq": "uq_%(table_name)s_%(column_0_name)s",
	"ck": "ck_%(table_name)s_%(constraint_name)s",
	"fk": "fk_%(table_name)s_%(column_0_name)s_%(referred_table_name)s",
	"pk": "pk_%(table_name)s",
}

// IndexName names an index on column of table. The column label is the
// table-qualified column name.
func IndexName(table, column string) string {
	return expand("ix", map[string]string{"column_0_label": table + "_" + column})
}

func UniqueName(table, column string) string {
	return expand("uq", map[string]string{"table_name": table, "column_0_name": column})
}

func CheckName(table, constraint string) string {
	return expand("ck", map[string]string{"table_name": table, "constraint_name": constraint})
}

func ForeignKeyName(table, column, referredTable string) string {
	return expand("fk", map[string]string{
		"table_name":          table,
		"column_0_name":       column,
		"referred_table_name": referredTable,
	})
}

func PrimaryKeyName(table string) string {
	return expand("pk", map[string]string{"table_name": table})
}

func expand(kind string, values map[string]string) string {
	out := NamingConvention[kind]
	for k, v := range values {
		out = strings.ReplaceAll(out, fmt.Sprintf("%%(%s)s", k), v)
	}
	return out
}

// TableName derives the table name of an entity: its Go type name in
// snake_case, singular. HTTPRequestLog becomes http_request_log.
func TableName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return SnakeCase(t.Name())
}

// SnakeCase converts a Go identifier to snake_case, keeping acronyms together.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
