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
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/uptrace/bun"
)

// ErrNotInitialized is returned when no database has been set up.
var ErrNotInitialized = errors.New("database not initialized")

var (
	globalMu      sync.RWMutex
	globalFactory *BaseDatabaseFactory
	globalConfig  *Config
)

// GetDB returns the process-wide database, or nil before InitDB.
func GetDB() *bun.DB {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory == nil {
		return nil
	}
	return globalFactory.GetDB()
}

func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory == nil {
		return nil
	}
	return globalFactory.GetManager()
}

// InitDB connects the process-wide database and runs migrations when the
// config enables them on startup. Seed data follows AutoInitOnStartup.
func InitDB(ctx context.Context, cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	factory := NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := factory.InitializeDatabase(ctx, cfg.DataMigrateConfig.EnableMigrateOnStartup); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.DataInitConfig.AutoInitOnStartup {
		if err := manager.InitData(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize data: %w", err)
		}
	}

	globalMu.Lock()
	old := globalFactory
	globalFactory, globalConfig = factory, cfg
	globalMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return manager.GetDB(), nil
}

// CloseDB closes the process-wide database.
func CloseDB() error {
	globalMu.Lock()
	f := globalFactory
	globalFactory, globalConfig = nil, nil
	globalMu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func GetHealthStatus(ctx context.Context) *HealthStatus {
	globalMu.RLock()
	f := globalFactory
	globalMu.RUnlock()
	if f == nil {
		return &HealthStatus{LastError: "Database not initialized"}
	}
	return f.GetHealthStatus(ctx)
}

func GetDatabaseStats() *DBStats {
	globalMu.RLock()
	f := globalFactory
	globalMu.RUnlock()
	if f == nil {
		return &DBStats{}
	}
	return f.GetStats()
}

// GetConfig returns the config passed to InitDB.
func GetConfig() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// RunMigrations applies pending migrations on the process-wide database.
func RunMigrations(ctx context.Context) error {
	m := GetDatabaseManager()
	if m == nil {
		return ErrNotInitialized
	}
	return m.RunMigrations(ctx)
}

// InitData seeds the process-wide database from the configured SQL files.
func InitData(ctx context.Context) error {
	m := GetDatabaseManager()
	if m == nil {
		return ErrNotInitialized
	}
	return m.InitData(ctx)
}

// IsNil reports whether db is nil or wraps a nil pointer, as GetDB does
// before InitDB.
func IsNil(db bun.IDB) bool {
	if db == nil {
		return true
	}
	v := reflect.ValueOf(db)
	return v.Kind() == reflect.Pointer && v.IsNil()
}
