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
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// Migration is a row of the version table.
type Migration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version     string    `bun:"version,pk"`
	Name        string    `bun:"name,notnull"`
	Description string    `bun:"description"`
	AppliedAt   time.Time `bun:"applied_at,notnull"`
}

// MigrationFunc runs inside the migration's transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

type MigrationItem struct {
	Version     string
	Name        string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// MigrationManager applies versioned migrations once each, recording them in
// schema_migrations. The built-in steps are 001 (tables of the registered
// models), 002 (foreign keys, when enabled) and 003 (seed data, when enabled).
type MigrationManager struct {
	db       bun.IDB
	config   *Config
	registry ModelRegistry
	logger   Logger
	extra    []MigrationItem
}

func NewMigrationManager(db bun.IDB, config *Config, logger Logger) *MigrationManager {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &MigrationManager{db: db, config: config, registry: defaultRegistry, logger: logger}
}

// WithRegistry replaces the model registry used by step 001.
func (mm *MigrationManager) WithRegistry(r ModelRegistry) *MigrationManager {
	mm.registry = r
	return mm
}

// AddMigration appends an application migration. Versions must not collide
// with the built-in 001..003.
func (mm *MigrationManager) AddMigration(item MigrationItem) {
	mm.extra = append(mm.extra, item)
}

// RunMigrations applies every pending migration in version order. Query
// logging is muted unless BUNDEBUG_MIGRATION is set.
func (mm *MigrationManager) RunMigrations(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, ok := os.LookupEnv("BUNDEBUG_MIGRATION"); !ok {
		EnableBunSqlSilent(true)
		defer EnableBunSqlSilent(false)
	}

	if err := mm.createMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	for _, m := range mm.Migrations() {
		if err := mm.apply(ctx, m); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}
	}
	mm.logger.Info("Database migrations completed")
	return nil
}

// Migrations returns the built-in steps enabled by the config plus the added
// ones, sorted by version.
func (mm *MigrationManager) Migrations() []MigrationItem {
	items := []MigrationItem{{
		Version:     "001",
		Name:        "create_base_tables",
		Description: "Create tables of registered models",
		Up:          mm.createTables,
		Down:        mm.dropTables,
	}}
	if mm.config.DataMigrateConfig.EnableForeignKey {
		items = append(items, MigrationItem{
			Version:     "002",
			Name:        "add_foreign_keys",
			Description: "Add foreign key constraints",
			Up:          mm.addForeignKeys,
			Down:        mm.dropForeignKeys,
		})
	}
	if mm.config.DataInitConfig.AutoInitOnMigration {
		items = append(items, MigrationItem{
			Version:     "003",
			Name:        "seed_initial_data",
			Description: "Seed initial data",
			Up: func(ctx context.Context, db bun.IDB) error {
				_, err := mm.seeder(db).Run(ctx)
				return err
			},
		})
	}
	items = append(items, mm.extra...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Version < items[j].Version })
	return items
}

func (mm *MigrationManager) createMigrationTable(ctx context.Context) error {
	_, err := mm.db.NewCreateTable().
		Model((*Migration)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (mm *MigrationManager) apply(ctx context.Context, m MigrationItem) error {
	exists, err := mm.db.NewSelect().
		Model((*Migration)(nil)).
		Where("version = ?", m.Version).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = Session(ctx, mm.db, func(ctx context.Context, tx bun.Tx) error {
		if err := m.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&Migration{
			Version:     m.Version,
			Name:        m.Name,
			Description: m.Description,
			AppliedAt:   time.Now().UTC(),
		}).Exec(ctx)
		return err
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration applied", "version", m.Version, "name", m.Name)
	return nil
}

// GetAppliedMigrations returns the recorded migrations by version.
func (mm *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]Migration, error) {
	var applied []Migration
	err := mm.db.NewSelect().
		Model(&applied).
		Order("version ASC").
		Scan(ctx)
	return applied, err
}

// RollbackMigration runs the Down step of an applied version and forgets it.
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version string) error {
	idx := slices.IndexFunc(mm.Migrations(), func(m MigrationItem) bool { return m.Version == version })
	if idx < 0 {
		return fmt.Errorf("unknown migration version %s", version)
	}
	m := mm.Migrations()[idx]
	if m.Down == nil {
		return fmt.Errorf("migration %s cannot be rolled back", version)
	}

	err := Session(ctx, mm.db, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*Migration)(nil)).
			Where("version = ?", version).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("migration %s is not applied", version)
		}
		return m.Down(ctx, tx)
	})
	if err != nil {
		return err
	}
	mm.logger.Info("Migration rolled back", "version", version, "name", m.Name)
	return nil
}

// InitData runs the seeder outside the migration bookkeeping.
func (mm *MigrationManager) InitData(ctx context.Context) error {
	if mm.db == nil {
		return fmt.Errorf("database not initialized")
	}
	_, err := mm.seeder(mm.db).Run(ctx)
	return err
}

func (mm *MigrationManager) seeder(db bun.IDB) *Seeder {
	c := mm.config.DataInitConfig
	return NewSeeder(db, c.Filepath, c.Environment, mm.logger)
}

func (mm *MigrationManager) createTables(ctx context.Context, db bun.IDB) error {
	for _, m := range mm.registry.Instances() {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table %T: %w", m, err)
		}
	}
	return nil
}

func (mm *MigrationManager) dropTables(ctx context.Context, db bun.IDB) error {
	models := mm.registry.Instances()
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to drop table %T: %w", models[i], err)
		}
	}
	return nil
}

func (mm *MigrationManager) foreignKeys() (*ForeignKeyManager, error) {
	path := mm.config.DataMigrateConfig.ForeignKeyFile
	if path == "" {
		return NewForeignKeyManager(mm.logger), nil
	}
	fkm, err := LoadForeignKeyManager(mm.logger, path)
	if err != nil {
		return nil, err
	}
	if errs := fkm.Validate(); len(errs) > 0 {
		for _, e := range errs {
			mm.logger.Debug("Foreign key constraint validation failed", "error", e)
		}
		return nil, fmt.Errorf("foreign key constraint validation failed, %d errors in total", len(errs))
	}
	return fkm, nil
}

func (mm *MigrationManager) addForeignKeys(ctx context.Context, db bun.IDB) error {
	fkm, err := mm.foreignKeys()
	if err != nil {
		return err
	}
	return fkm.AddAll(ctx, db)
}

func (mm *MigrationManager) dropForeignKeys(ctx context.Context, db bun.IDB) error {
	fkm, err := mm.foreignKeys()
	if err != nil {
		return err
	}
	for _, c := range fkm.Constraints() {
		if err := fkm.Drop(ctx, db, c.Table, c.Name()); err != nil {
			mm.logger.Debug("Failed to drop foreign key constraint", "constraint", c.Name(), "error", err)
		}
	}
	return nil
}
