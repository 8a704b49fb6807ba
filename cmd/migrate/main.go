// Command migrate applies the remote backend's PostgreSQL schema.
package main

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/cobra"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/sentio/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

const envDSN = "SENTIO_DB_DSN"

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var dsn string
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the sentio PostgreSQL schema",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "Database URL (default: $"+envDSN+", then the database section of config.toml)")

	// run opens a migrator for the resolved DSN and hands it to fn.
	run := func(fn func(*migrate.Migrate) error) error {
		resolved, err := resolveDSN(dsn)
		if err != nil {
			return err
		}

		source, err := iofs.New(migrations, "migrations")
		if err != nil {
			return fmt.Errorf("migration source: %w", err)
		}
		m, err := migrate.NewWithSourceInstance("iofs", source, resolved)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer m.Close()

		if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		return nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(m *migrate.Migrate) error {
					if err := m.Up(); err != nil {
						return err
					}
					logger.Info("migrations applied")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(m *migrate.Migrate) error {
					if err := m.Down(); err != nil {
						return err
					}
					logger.Info("migrations reverted")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations, or revert when n is negative",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil || n == 0 {
					return fmt.Errorf("steps must be a non-zero integer: %q", args[0])
				}
				return run(func(m *migrate.Migrate) error {
					if err := m.Steps(n); err != nil {
						return err
					}
					logger.Info("migration steps applied", "steps", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(m *migrate.Migrate) error {
					v, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Fprintln(cmd.OutOrStdout(), "version: none")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version: %d, dirty: %v\n", v, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the schema version without running migrations",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return run(func(m *migrate.Migrate) error {
					if err := m.Force(v); err != nil {
						return err
					}
					logger.Warn("schema version forced", "version", v)
					return nil
				})
			},
		},
	)

	return root
}

// resolveDSN prefers the flag, then the environment, then the sentio
// database config with its SENTIO_DB_* overrides.
func resolveDSN(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if v := os.Getenv(envDSN); v != "" {
		return v, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Database.Validate(); err != nil {
		return "", fmt.Errorf("database config: %w", err)
	}
	return cfg.Database.URL(), nil
}
