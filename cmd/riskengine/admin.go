package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/digital-twin-risk-engine/internal/auth"
	"github.com/digital-twin-risk-engine/internal/config"
	"github.com/digital-twin-risk-engine/internal/database"
	"github.com/digital-twin-risk-engine/internal/domain"
	"github.com/digital-twin-risk-engine/internal/service"
	"github.com/digital-twin-risk-engine/internal/setup"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the whole history as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			return withHistory(cmd, func(ctx context.Context, a *app, svc *service.HistoryService) error {
				var w io.Writer = cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("creating export file: %w", err)
					}
					defer f.Close()
					w = f
				}
				return svc.Export(ctx, w)
			})
		},
	}
	cmd.Flags().StringP("out", "o", "-", "Output file, or - for stdout")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import records from a JSON export, skipping ones already present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening import file: %w", err)
			}
			defer f.Close()

			return withHistory(cmd, func(ctx context.Context, a *app, svc *service.HistoryService) error {
				imported, skipped, err := svc.Import(ctx, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d record(s), skipped %d already present.\n", imported, skipped)
				return nil
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL history schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd, func(r *database.MigrationRunner) error {
				if err := r.Up(); err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				return printVersion(cmd, r)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd, func(r *database.MigrationRunner) error {
				if err := r.Down(); err != nil {
					return fmt.Errorf("rollback failed: %w", err)
				}
				return printVersion(cmd, r)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd, func(r *database.MigrationRunner) error {
				return printVersion(cmd, r)
			})
		},
	})

	return cmd
}

// withMigrations runs fn with a migration runner for the configured
// PostgreSQL database.
func withMigrations(cmd *cobra.Command, fn func(r *database.MigrationRunner) error) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Storage.Driver != "postgres" {
		return domain.NewConfigurationError("storage.driver", "", fmt.Errorf("migrations apply to the postgres driver, configured driver is %q", a.cfg.Storage.Driver))
	}
	r, err := database.NewMigrationRunner(database.URL(a.cfg.Storage.Postgres), a.logger)
	if err != nil {
		return err
	}
	defer r.Close()
	return fn(r)
}

func printVersion(cmd *cobra.Command, r *database.MigrationRunner) error {
	version, dirty, err := r.Version()
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Schema version: none")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version: %d (dirty: %t)\n", version, dirty)
	return nil
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter riskengine.yaml and create the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("path")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			modelsDir, _ := cmd.Flags().GetString("models-dir")
			force, _ := cmd.Flags().GetBool("force")

			if err := setup.WriteConfig(path, dataDir, modelsDir, force); err != nil {
				return err
			}
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Data directory %s\n", dataDir)
			return nil
		},
	}
	cmd.Flags().String("path", "riskengine.yaml", "Config file to write")
	cmd.Flags().String("data-dir", config.DefaultDataDir(), "Data directory for history and reports")
	cmd.Flags().String("models-dir", "./models", "Directory holding the model artifacts")
	cmd.Flags().Bool("force", false, "Overwrite an existing config file")
	return cmd
}

// loadConfigOnly reads configuration without validating it, for diagnostics.
func loadConfigOnly(cmd *cobra.Command) (*config.Manager, error) {
	var opts []config.Option
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	return config.NewManager(opts...)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, store and model status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadConfigOnly(cmd)
			if err != nil {
				return err
			}
			setup.PrintStatus(cmd.OutOrStdout(), setup.GetStatus(m.GetConfig(), m.ConfigFileUsed()))
			return nil
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and model artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadConfigOnly(cmd)
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return err
			}

			valid, issues := setup.Validate(m.GetConfig())
			for _, issue := range issues {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", issue)
			}
			if !valid {
				return domain.NewConfigurationError("setup", m.ConfigFileUsed(), fmt.Errorf("%d issue(s) found", len(issues)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid!")
			return nil
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print the bcrypt hash of a password for auth.users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptFor(cmd).ask("Password: ")
			if err != nil {
				return err
			}
			if password == "" {
				return domain.NewInputError("password", "", "password must not be empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
