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

// Command dalkit runs migrations and seed files, checks database health and
// shows the endpoint settings read from the environment.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tomoncle/dalkit/database"
	"github.com/tomoncle/dalkit/settings"
	"github.com/tomoncle/dalkit/utils"
)

var (
	version = "dev"
	commit  = "none"
)

var log = utils.GetLogger("DALKIT")

type rootOptions struct {
	configFile string
	envFile    string
	source     string
	logLevel   string
	logFormat  string
	logDir     string
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "dalkit",
		Short:         "Database toolkit: migrations, seed data, health and settings",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logLevel != "" {
				utils.ConfigureLogLevel(opts.logLevel)
			}
			if opts.logFormat != "" {
				utils.ConfigureConsoleLogFormat(opts.logFormat)
			}
			if opts.logDir != "" {
				utils.ConfigureFileLog(opts.logDir, 10, 5)
			}
			if opts.envFile == "" {
				_ = godotenv.Load()
				return nil
			}
			settings.EnvFile = opts.envFile
			settings.Reset()
			if err := godotenv.Load(opts.envFile); err != nil {
				return fmt.Errorf("load %s: %w", opts.envFile, err)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "database YAML config; DB_* variables override it")
	flags.StringVar(&opts.envFile, "env-file", "", "dotenv file to load (default .env when present)")
	flags.StringVar(&opts.source, "from", "postgres", "settings used without --config: postgres, mariadb or database")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "console log format: text or json")
	flags.StringVar(&opts.logDir, "log-dir", "", "also write per-level log files to this directory")

	rootCmd.AddCommand(NewMigrateCommand(opts))
	rootCmd.AddCommand(NewSeedCommand(opts))
	rootCmd.AddCommand(NewHealthCommand(opts))
	rootCmd.AddCommand(NewSettingsCommand())
	return rootCmd
}

// loadConfig reads --config when given, else builds the connection from the
// endpoint settings named by --from.
func (o *rootOptions) loadConfig() (*database.Config, error) {
	if o.configFile != "" {
		return database.LoadConfig(o.configFile)
	}

	var conn *database.ConnectionConfig
	switch o.source {
	case "postgres":
		s, err := settings.Load[settings.PostgresSettings]()
		if err != nil {
			return nil, err
		}
		conn = s.ConnectionConfig()
	case "mariadb":
		s, err := settings.Load[settings.MariaDBSettings]()
		if err != nil {
			return nil, err
		}
		conn = s.ConnectionConfig()
	case "database":
		s, err := settings.Load[settings.DatabaseSettings]()
		if err != nil {
			return nil, err
		}
		conn = s.ConnectionConfig()
	default:
		return nil, fmt.Errorf("unknown settings source %q", o.source)
	}
	cfg := database.DefaultConfig()
	cfg.ConnectionConfig = *conn
	return cfg, nil
}

// connect opens the process-wide database without startup migrations or
// seeding; the subcommands run those explicitly.
func (o *rootOptions) connect(ctx context.Context) (*database.Config, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.DataMigrateConfig.EnableMigrateOnStartup = false
	cfg.DataInitConfig.AutoInitOnStartup = false
	cfg.ConnectionConfig.HealthCheckInterval = 0
	if _, err := database.InitDB(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
