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
	"path/filepath"
	"slices"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/dalkit/model"
)

var referentialActions = []string{"CASCADE", "RESTRICT", "SET NULL", "SET DEFAULT", "NO ACTION"}

// ForeignKeyConstraint describes a foreign key between two tables.
type ForeignKeyConstraint struct {
	Table           string `yaml:"table"`
	Column          string `yaml:"column"`
	ReferenceTable  string `yaml:"reference_table"`
	ReferenceColumn string `yaml:"reference_column"`
	OnDelete        string `yaml:"on_delete,omitempty"`
	OnUpdate        string `yaml:"on_update,omitempty"`
	ConstraintName  string `yaml:"constraint_name,omitempty"`
	Description     string `yaml:"description,omitempty"`
}

// ForeignKeyConfig is the YAML document read from DataMigrateConfig.ForeignKeyFile.
//
//	foreign_keys:
//	  - table: order_line
//	    column: order_id
//	    reference_table: orders
//	    reference_column: id
//	    on_delete: CASCADE
type ForeignKeyConfig struct {
	ForeignKeys []ForeignKeyConstraint `yaml:"foreign_keys"`
}

// Name is the explicit constraint name or fk_<table>_<column>_<reference_table>.
func (fk *ForeignKeyConstraint) Name() string {
	if fk.ConstraintName != "" {
		return fk.ConstraintName
	}
	return model.ForeignKeyName(fk.Table, fk.Column, fk.ReferenceTable)
}

// AddSQL renders the ALTER TABLE statement adding the constraint.
func (fk *ForeignKeyConstraint) AddSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		fk.Table, fk.Name(), fk.Column, fk.ReferenceTable, fk.ReferenceColumn)
	if fk.OnDelete != "" {
		fmt.Fprintf(&b, " ON DELETE %s", strings.ToUpper(fk.OnDelete))
	}
	if fk.OnUpdate != "" {
		fmt.Fprintf(&b, " ON UPDATE %s", strings.ToUpper(fk.OnUpdate))
	}
	return b.String()
}

func (fk *ForeignKeyConstraint) validate() []error {
	var errs []error
	if fk.Table == "" {
		errs = append(errs, fmt.Errorf("table name cannot be empty"))
	}
	if fk.Column == "" {
		errs = append(errs, fmt.Errorf("column name cannot be empty: %s", fk.Table))
	}
	if fk.ReferenceTable == "" {
		errs = append(errs, fmt.Errorf("reference table cannot be empty: %s.%s", fk.Table, fk.Column))
	}
	if fk.ReferenceColumn == "" {
		errs = append(errs, fmt.Errorf("reference column cannot be empty: %s.%s -> %s", fk.Table, fk.Column, fk.ReferenceTable))
	}
	for _, action := range []string{fk.OnDelete, fk.OnUpdate} {
		if action != "" && !slices.Contains(referentialActions, strings.ToUpper(action)) {
			errs = append(errs, fmt.Errorf("invalid referential action %q on %s", action, fk.Name()))
		}
	}
	return errs
}

// ForeignKeyManager adds and drops a set of constraints.
type ForeignKeyManager struct {
	constraints []ForeignKeyConstraint
	configPath  string
	logger      Logger
}

func NewForeignKeyManager(logger Logger, constraints ...ForeignKeyConstraint) *ForeignKeyManager {
	return &ForeignKeyManager{constraints: constraints, logger: logger}
}

// LoadForeignKeyManager reads constraints from a YAML file.
func LoadForeignKeyManager(logger Logger, path string) (*ForeignKeyManager, error) {
	fkm := &ForeignKeyManager{configPath: path, logger: logger}
	if err := fkm.Reload(); err != nil {
		return nil, err
	}
	return fkm, nil
}

// Reload re-reads the YAML file the manager was loaded from.
func (fkm *ForeignKeyManager) Reload() error {
	if fkm.configPath == "" {
		return fmt.Errorf("foreign key manager has no config file")
	}
	data, err := os.ReadFile(fkm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read foreign key config: %w", err)
	}
	var cfg ForeignKeyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse foreign key config: %w", err)
	}
	fkm.constraints = cfg.ForeignKeys
	return nil
}

// Export writes the current constraints as YAML, creating parent directories.
func (fkm *ForeignKeyManager) Export(path string) error {
	out := ForeignKeyConfig{ForeignKeys: make([]ForeignKeyConstraint, len(fkm.constraints))}
	for i, c := range fkm.constraints {
		if c.Description == "" {
			c.Description = fmt.Sprintf("%s.%s -> %s.%s", c.Table, c.Column, c.ReferenceTable, c.ReferenceColumn)
		}
		out.ForeignKeys[i] = c
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to serialize foreign key config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AddAll adds every constraint. Constraints that already exist are logged and
// skipped; SQLite cannot alter constraints so it is a no-op there.
func (fkm *ForeignKeyManager) AddAll(ctx context.Context, db bun.IDB) error {
	if db.Dialect().Name() == dialect.SQLite {
		fkm.debug("Skipping foreign keys on sqlite", "count", len(fkm.constraints))
		return nil
	}
	_, inTx := db.(bun.Tx)
	savepoint := inTx && db.Dialect().Name() == dialect.PG
	for _, c := range fkm.constraints {
		if err := fkm.add(ctx, db, c, savepoint); err != nil {
			fkm.debug("Failed to add foreign key constraint", "constraint", c.Name(), "error", err)
			continue
		}
		fkm.debug("Added foreign key constraint", "constraint", c.Name())
	}
	return nil
}

// add guards the statement with a savepoint when a failure would otherwise
// abort the surrounding Postgres transaction.
func (fkm *ForeignKeyManager) add(ctx context.Context, db bun.IDB, c ForeignKeyConstraint, savepoint bool) error {
	if !savepoint {
		_, err := db.ExecContext(ctx, c.AddSQL())
		return err
	}
	if _, err := db.ExecContext(ctx, "SAVEPOINT dalkit_fk"); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, c.AddSQL()); err != nil {
		_, _ = db.ExecContext(ctx, "ROLLBACK TO SAVEPOINT dalkit_fk")
		return err
	}
	_, err := db.ExecContext(ctx, "RELEASE SAVEPOINT dalkit_fk")
	return err
}

// Drop removes a named constraint from table.
func (fkm *ForeignKeyManager) Drop(ctx context.Context, db bun.IDB, table, name string) error {
	stmt := "ALTER TABLE %s DROP CONSTRAINT %s"
	if db.Dialect().Name() == dialect.MySQL {
		stmt = "ALTER TABLE %s DROP FOREIGN KEY %s"
	}
	_, err := db.ExecContext(ctx, fmt.Sprintf(stmt, table, name))
	return err
}

func (fkm *ForeignKeyManager) ByTable(table string) []ForeignKeyConstraint {
	var out []ForeignKeyConstraint
	for _, c := range fkm.constraints {
		if strings.EqualFold(c.Table, table) {
			out = append(out, c)
		}
	}
	return out
}

func (fkm *ForeignKeyManager) Constraints() []ForeignKeyConstraint {
	return fkm.constraints
}

func (fkm *ForeignKeyManager) Validate() []error {
	var errs []error
	for i := range fkm.constraints {
		errs = append(errs, fkm.constraints[i].validate()...)
	}
	return errs
}

func (fkm *ForeignKeyManager) debug(msg string, kv ...any) {
	if fkm.logger != nil {
		fkm.logger.Debug(msg, kv...)
	}
}
