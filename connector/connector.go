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

// Package connector opens clients for the endpoints described by package
// settings.
package connector

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tomoncle/dalkit/database"
	"github.com/tomoncle/dalkit/settings"
)

// Redis returns a client for s that has answered a PING.
func Redis(ctx context.Context, s settings.RedisSettings) (*redis.Client, error) {
	client := redis.NewClient(s.Options())
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", s.Addr(), err)
	}
	return client, nil
}

// RedisFromEnv is Redis with settings loaded from the environment.
func RedisFromEnv(ctx context.Context) (*redis.Client, error) {
	s, err := settings.Load[settings.RedisSettings]()
	if err != nil {
		return nil, err
	}
	return Redis(ctx, *s)
}

// Database connects a manager for cfg. Callers own it and must Close it.
func Database(ctx context.Context, cfg *database.ConnectionConfig) (database.AbstractDatabaseManager, error) {
	dbConfig := database.DefaultConfig()
	dbConfig.ConnectionConfig = *cfg
	manager := database.NewDatabaseManager(dbConfig)
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}
	return manager, nil
}

// Postgres connects to the server named by the POSTGRES_* settings.
func Postgres(ctx context.Context) (database.AbstractDatabaseManager, error) {
	s, err := settings.Load[settings.PostgresSettings]()
	if err != nil {
		return nil, err
	}
	return Database(ctx, s.ConnectionConfig())
}

// MariaDB connects to the server named by the MARIADB_* settings.
func MariaDB(ctx context.Context) (database.AbstractDatabaseManager, error) {
	s, err := settings.Load[settings.MariaDBSettings]()
	if err != nil {
		return nil, err
	}
	return Database(ctx, s.ConnectionConfig())
}
