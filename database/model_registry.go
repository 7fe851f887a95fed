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

package database

import (
	"reflect"
	"sort"
	"sync"
)

var defaultRegistry = NewModelRegistry()

// SQLModel is a table model known to the migration runner. Lower priorities
// are created first so referenced tables exist before their dependents.
type SQLModel interface {
	Instance() any
	Priority() int
}

// ModelRegistry stores SQL models and exposes them in a deterministic order.
type ModelRegistry interface {
	Register(model SQLModel)
	Models() []SQLModel
	Instances() []any
}

type modelRegistry struct {
	models []SQLModel
	seen   map[reflect.Type]struct{}
	mutex  sync.RWMutex
}

// NewModelRegistry returns an empty registry, mostly useful in tests.
func NewModelRegistry() ModelRegistry {
	return &modelRegistry{seen: make(map[reflect.Type]struct{})}
}

// Register ignores a second registration of the same model type.
func (r *modelRegistry) Register(model SQLModel) {
	t := reflect.TypeOf(model.Instance())
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.seen[t]; ok {
		return
	}
	r.seen[t] = struct{}{}
	r.models = append(r.models, model)
}

func (r *modelRegistry) Models() []SQLModel {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]SQLModel, len(r.models))
	copy(result, r.models)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

func (r *modelRegistry) Instances() []any {
	models := r.Models()
	out := make([]any, len(models))
	for i, m := range models {
		out[i] = m.Instance()
	}
	return out
}

type modelAdapter struct {
	instance any
	priority int
}

// NewModelAdapter wraps a struct pointer and priority into an SQLModel.
func NewModelAdapter(instance any, priority int) SQLModel {
	return &modelAdapter{instance: instance, priority: priority}
}

func (a *modelAdapter) Instance() any { return a.instance }
func (a *modelAdapter) Priority() int { return a.priority }

// RegisterModel adds T to the default registry.
//
//	func init() { database.RegisterModel[User](10) }
func RegisterModel[T any](priority int) {
	defaultRegistry.Register(NewModelAdapter((*T)(nil), priority))
}

// RegisteredModels returns the default registry sorted by priority.
func RegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

// DefaultRegistry exposes the process-wide registry used by RegisterModel.
func DefaultRegistry() ModelRegistry {
	return defaultRegistry
}
