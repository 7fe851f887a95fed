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
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/uptrace/bun"
)

const commonSeedDir = "common"

var seedOrderRe = regexp.MustCompile(`^(\d+)_`)

// SeedFile is one SQL file picked up by the Seeder.
type SeedFile struct {
	Path        string
	Name        string
	Order       int
	Environment string
}

// SeedResult reports one executed file.
type SeedResult struct {
	File         string
	Statements   int
	RowsAffected int64
	Duration     time.Duration
	Err          error
}

// Seeder executes the SQL files under <root>/common and then
// <root>/environments/<env>, ordered by their numeric NNN_ prefix. Files
// containing "{{" are rendered with text/template over the process environment
// plus ENVIRONMENT and TIMESTAMP. Each file runs in its own Session.
type Seeder struct {
	db          bun.IDB
	root        string
	environment string
	logger      Logger
}

func NewSeeder(db bun.IDB, root, environment string, logger Logger) *Seeder {
	if root == "" {
		root = "configs/sql"
	}
	if environment == "" {
		environment = "prod"
	}
	if logger == nil {
		logger = GetLogger()
	}
	return &Seeder{db: db, root: root, environment: environment, logger: logger}
}

// Run executes every file and stops at the first failure.
func (s *Seeder) Run(ctx context.Context) ([]SeedResult, error) {
	s.logger.Info("Starting SQL initialization", "environment", s.environment, "sql_path", s.root)

	files, err := s.Files()
	if err != nil {
		return nil, fmt.Errorf("failed to list SQL files: %w", err)
	}
	if len(files) == 0 {
		s.logger.Info("No SQL files found to execute")
		return nil, nil
	}

	results := make([]SeedResult, 0, len(files))
	for _, f := range files {
		r := s.execFile(ctx, f)
		results = append(results, r)
		if r.Err != nil {
			s.logger.Error("SQL file execution failed", "file", r.File, "error", r.Err)
			return results, fmt.Errorf("SQL file %s: %w", r.File, r.Err)
		}
		s.logger.Info("SQL file executed", "file", r.File, "statements", r.Statements,
			"rows_affected", r.RowsAffected, "duration", r.Duration.String())
	}
	s.logger.Info("SQL initialization completed", "total_files", len(results), "environment", s.environment)
	return results, nil
}

// Files lists common files first, then the environment's, each by order and name.
func (s *Seeder) Files() ([]SeedFile, error) {
	files, err := collectSeedFiles(filepath.Join(s.root, commonSeedDir), commonSeedDir)
	if err != nil {
		return nil, err
	}
	envFiles, err := collectSeedFiles(filepath.Join(s.root, "environments", s.environment), s.environment)
	if err != nil {
		return nil, err
	}
	files = append(files, envFiles...)

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Environment != b.Environment {
			return a.Environment == commonSeedDir
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Name < b.Name
	})
	return files, nil
}

func collectSeedFiles(dir, env string) ([]SeedFile, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []SeedFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".sql") {
			return nil
		}
		files = append(files, SeedFile{
			Path:        path,
			Name:        d.Name(),
			Order:       seedOrder(d.Name()),
			Environment: env,
		})
		return nil
	})
	return files, err
}

// seedOrder reads the NNN_ prefix; unnumbered files sort last.
func seedOrder(name string) int {
	if m := seedOrderRe.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 999
}

func (s *Seeder) execFile(ctx context.Context, f SeedFile) SeedResult {
	start := time.Now()
	res := SeedResult{File: f.Path}
	defer func() { res.Duration = time.Since(start) }()

	raw, err := os.ReadFile(f.Path)
	if err != nil {
		res.Err = err
		return res
	}
	content := string(raw)
	if strings.Contains(content, "{{") {
		if content, err = s.render(f.Name, content); err != nil {
			res.Err = err
			return res
		}
	}

	stmts := SplitStatements(content)
	res.Statements = len(stmts)
	if len(stmts) == 0 {
		return res
	}

	res.Err = Session(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		for _, stmt := range stmts {
			r, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("statement %q: %w", stmt, err)
			}
			n, _ := r.RowsAffected()
			res.RowsAffected += n
		}
		return nil
	})
	return res
}

func (s *Seeder) render(name, content string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	vars["ENVIRONMENT"] = s.environment
	vars["TIMESTAMP"] = time.Now().UTC().Format("2006-01-02 15:04:05")

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// SplitStatements splits a SQL script on semicolons outside quotes and drops
// "--" line comments and empty statements.
func SplitStatements(script string) []string {
	var (
		out     []string
		cur     strings.Builder
		quote   rune
		comment bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	runes := []rune(script)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case comment:
			if r == '\n' {
				comment = false
				cur.WriteRune(' ')
			}
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				if i+1 < len(runes) && runes[i+1] == quote {
					cur.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
			i++
		case r == '\'' || r == '"' || r == '`':
			quote = r
			cur.WriteRune(r)
		case r == ';':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
