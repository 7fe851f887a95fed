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

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// Table returns the Bun table metadata of an entity type.
func Table(db bun.IDB, entity any) (*schema.Table, error) {
	t := reflect.TypeOf(entity)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model: %T is not a struct", entity)
	}
	return db.Dialect().Tables().Get(t), nil
}

// ToMap returns the column values of entity keyed by column name, leaving out
// the excluded columns.
func ToMap(db bun.IDB, entity any, exclude ...string) (map[string]any, error) {
	table, err := Table(db, entity)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	v := reflect.Indirect(reflect.ValueOf(entity))
	out := make(map[string]any, len(table.Fields))
	for _, f := range table.Fields {
		if _, ok := skip[f.Name]; ok {
			continue
		}
		out[f.Name] = f.Value(v).Interface()
	}
	return out, nil
}

// SetField assigns value to the column name of entity, converting between
// assignable or convertible types.
func SetField(db bun.IDB, entity any, column string, value any) error {
	f, err := field(db, entity, column)
	if err != nil {
		return err
	}
	dst := f.Value(reflect.Indirect(reflect.ValueOf(entity)))
	if value == nil {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	src := reflect.ValueOf(value)
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case dst.Kind() == reflect.Ptr && src.Type().AssignableTo(dst.Type().Elem()):
		p := reflect.New(dst.Type().Elem())
		p.Elem().Set(src)
		dst.Set(p)
	case src.Type().ConvertibleTo(dst.Type()):
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("model: cannot assign %T to column %q", value, column)
	}
	return nil
}

// GetField reads the value stored in column of entity.
func GetField(db bun.IDB, entity any, column string) (any, error) {
	f, err := field(db, entity, column)
	if err != nil {
		return nil, err
	}
	return f.Value(reflect.Indirect(reflect.ValueOf(entity))).Interface(), nil
}

// HasColumn reports whether the entity maps a column with that name.
func HasColumn(db bun.IDB, entity any, column string) bool {
	_, err := field(db, entity, column)
	return err == nil
}

func field(db bun.IDB, entity any, column string) (*schema.Field, error) {
	table, err := Table(db, entity)
	if err != nil {
		return nil, err
	}
	for _, f := range table.Fields {
		if f.Name == column {
			return f, nil
		}
	}
	return nil, fmt.Errorf("model: %s has no column %q", table.Type.Name(), column)
}
