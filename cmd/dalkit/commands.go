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

package main

import (
	"fmt"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/tomoncle/dalkit/connector"
	"github.com/tomoncle/dalkit/database"
	"github.com/tomoncle/dalkit/settings"
	"github.com/tomoncle/dalkit/utils"
)

func NewMigrateCommand(opts *rootOptions) *cobra.Command {
	var (
		rollback string
		status   bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations, roll one back or list applied ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer utils.IgnoreError(log, database.CloseDB)

			defer utils.TimeIt(log, "migrate")()

			mm := database.NewMigrationManager(database.GetDB(), cfg, database.GetLogger())
			switch {
			case status:
				applied, err := mm.GetAppliedMigrations(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
				for _, m := range applied {
					fmt.Fprintf(w, "%s\t%s\t%s\n", m.Version, m.Name, m.AppliedAt.Format(time.RFC3339))
				}
				return w.Flush()
			case rollback != "":
				if err := mm.RollbackMigration(ctx, rollback); err != nil {
					return err
				}
				log.WithField("version", rollback).Info("migration rolled back")
				return nil
			default:
				if err := mm.RunMigrations(ctx); err != nil {
					return err
				}
				log.Info("migrations applied")
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&rollback, "rollback", "", "roll back the migration with this version")
	cmd.Flags().BoolVar(&status, "status", false, "list applied migrations")
	return cmd
}

func NewSeedCommand(opts *rootOptions) *cobra.Command {
	var dir, env string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Run the SQL seed files for an environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := opts.connect(ctx)
			if err != nil {
				return err
			}
			defer utils.IgnoreError(log, database.CloseDB)

			defer utils.TimeIt(log, "seed", dir, env)()

			if dir == "" {
				dir = cfg.DataInitConfig.Filepath
			}
			if env == "" {
				env = cfg.DataInitConfig.Environment
			}
			results, runErr := database.NewSeeder(database.GetDB(), dir, env, database.GetLogger()).Run(ctx)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FILE\tSTATEMENTS\tROWS\tDURATION\tERROR")
			for _, r := range results {
				msg := ""
				if r.Err != nil {
					msg = r.Err.Error()
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n", r.File, r.Statements, r.RowsAffected, r.Duration.Round(time.Millisecond), msg)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "seed root holding common/ and environments/ (default from config)")
	cmd.Flags().StringVar(&env, "env", "", "environment directory to run after common/ (default from config)")
	return cmd
}

type healthReport struct {
	Database *database.HealthStatus `json:"database"`
	Stats    *database.DBStats      `json:"stats"`
	Redis    string                 `json:"redis,omitempty"`
}

func NewHealthCommand(opts *rootOptions) *cobra.Command {
	var withRedis bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the database, and optionally Redis, and print a JSON report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := opts.connect(ctx); err != nil {
				return err
			}
			defer utils.IgnoreError(log, database.CloseDB)

			report := healthReport{
				Database: database.GetHealthStatus(ctx),
				Stats:    database.GetDatabaseStats(),
			}
			healthy := report.Database.Healthy
			if withRedis {
				client, err := connector.RedisFromEnv(ctx)
				if err != nil {
					report.Redis = err.Error()
					healthy = false
				} else {
					report.Redis = "ok"
					_ = client.Close()
				}
			}

			out, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if !healthy {
				return fmt.Errorf("unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withRedis, "redis", false, "also ping Redis using the REDIS_* settings")
	return cmd
}

func NewSettingsCommand() *cobra.Command {
	var describe bool
	cmd := &cobra.Command{
		Use:       "settings [postgres|mariadb|database|redis|rabbitmq|telegram]",
		Short:     "Show endpoint settings with passwords redacted",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"postgres", "mariadb", "database", "redis", "rabbitmq", "telegram"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				text string
				err  error
			)
			if describe {
				text, err = describeSettings(args[0])
			} else {
				text, err = showSettings(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&describe, "describe", false, "list the environment variables instead of the values")
	return cmd
}

func showSettings(kind string) (string, error) {
	switch kind {
	case "postgres":
		return redactedURL[settings.PostgresSettings]()
	case "mariadb":
		return redactedURL[settings.MariaDBSettings]()
	case "database":
		return redactedURL[settings.DatabaseSettings]()
	case "redis":
		return redactedURL[settings.RedisSettings]()
	case "rabbitmq":
		return redactedURL[settings.RabbitMQSettings]()
	case "telegram":
		s, err := settings.Load[settings.TelegramSettings]()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("chat_id=%s bot_token=%s", s.ChatID, mask(s.BotToken)), nil
	}
	return "", fmt.Errorf("unknown settings %q", kind)
}

func describeSettings(kind string) (string, error) {
	switch kind {
	case "postgres":
		return settings.Describe[settings.PostgresSettings]()
	case "mariadb":
		return settings.Describe[settings.MariaDBSettings]()
	case "database":
		return settings.Describe[settings.DatabaseSettings]()
	case "redis":
		return settings.Describe[settings.RedisSettings]()
	case "rabbitmq":
		return settings.Describe[settings.RabbitMQSettings]()
	case "telegram":
		return settings.Describe[settings.TelegramSettings]()
	}
	return "", fmt.Errorf("unknown settings %q", kind)
}

type urlSettings interface {
	URL() string
}

func redactedURL[T any, PT interface {
	*T
	urlSettings
}]() (string, error) {
	s, err := settings.Load[T]()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(PT(s).URL())
	if err != nil {
		return "", err
	}
	return u.Redacted(), nil
}

func mask(s string) string {
	if len(s) <= 4 {
		return "xxxxx"
	}
	return s[:4] + "xxxxx"
}
