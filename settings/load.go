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

package settings

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

// EnvFile is the file read when the environment alone does not yield valid
// settings.
var EnvFile = ".env"

var (
	mu       sync.Mutex
	cache    = make(map[reflect.Type]any)
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Load returns the settings of type T. The first successful load is cached
// and returned by later calls until Reset.
func Load[T any]() (*T, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	mu.Lock()
	defer mu.Unlock()
	if v, ok := cache[typ]; ok {
		return v.(*T), nil
	}
	s, err := read[T](EnvFile)
	if err != nil {
		return nil, fmt.Errorf("settings: load %s: %w", typ.Name(), err)
	}
	cache[typ] = s
	return s, nil
}

// MustLoad is Load that panics on error.
func MustLoad[T any]() *T {
	s, err := Load[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// Reset forgets every cached settings value.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	clear(cache)
}

func read[T any](envFile string) (*T, error) {
	s := new(T)
	envErr := cleanenv.ReadEnv(s)
	if envErr == nil {
		envErr = validate.Struct(s)
	}
	if envErr == nil {
		return s, nil
	}

	// ReadConfig exports the file's variables into the process environment
	// and then reads the environment.
	s = new(T)
	if err := cleanenv.ReadConfig(envFile, s); err != nil {
		return nil, errors.Join(envErr, err)
	}
	if err := validate.Struct(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Describe lists the environment variables T reads, for help output.
func Describe[T any]() (string, error) {
	return cleanenv.GetDescription(new(T), nil)
}
