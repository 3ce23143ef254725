package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/digital-twin-risk-engine/internal/config"
	"github.com/digital-twin-risk-engine/internal/database"
	"github.com/digital-twin-risk-engine/internal/domain"
	"github.com/digital-twin-risk-engine/internal/history"
	"github.com/digital-twin-risk-engine/internal/logging"
	"github.com/digital-twin-risk-engine/internal/predictor"
	"github.com/digital-twin-risk-engine/internal/service"
)

// app holds the wiring shared by every command
type app struct {
	manager *config.Manager
	cfg     *domain.Config
	logger  *logrus.Logger
	logOut  io.Closer
}

// Close releases the log output.
func (a *app) Close() error {
	return a.logOut.Close()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "riskengine",
		Short:         "Digital twin risk assessment and longitudinal reporting",
		Long:          "riskengine scores heart disease, diabetes and hypertension risk from intake observations, keeps each patient's assessment history and renders reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: riskengine.yaml in ., ./config, /etc/riskengine)")

	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(patientsCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(trendCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(deleteAllCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(hashPasswordCmd())

	return rootCmd
}

// loadApp reads and validates configuration and builds the logger.
func loadApp(cmd *cobra.Command) (*app, error) {
	var opts []config.Option
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}

	manager, err := config.NewManager(opts...)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, err
	}
	cfg := manager.GetConfig()

	logger, logOut, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDirs(cfg); err != nil {
		logOut.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"config_file": manager.ConfigFileUsed(),
		"storage":     cfg.Storage.Driver,
	}).Debug("Configuration loaded")

	return &app{manager: manager, cfg: cfg, logger: logger, logOut: logOut}, nil
}

// openStore opens the configured history store. PostgreSQL schemas are
// migrated to the latest version first.
func (a *app) openStore(ctx context.Context) (domain.HistoryStore, error) {
	switch a.cfg.Storage.Driver {
	case "sqlite":
		return history.NewSQLiteStore(a.cfg.Storage.SQLitePath, a.logger)
	case "postgres":
		pg := a.cfg.Storage.Postgres
		if err := a.migrateUp(); err != nil {
			return nil, err
		}
		db, err := database.NewConnection(ctx, pg, a.logger)
		if err != nil {
			return nil, domain.NewStorageError("open", err)
		}
		store, err := history.NewPostgresStore(db.Pool, a.logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, domain.NewConfigurationError("storage.driver", "", fmt.Errorf("unsupported driver %q", a.cfg.Storage.Driver))
	}
}

func (a *app) migrateUp() error {
	runner, err := database.NewMigrationRunner(database.URL(a.cfg.Storage.Postgres), a.logger)
	if err != nil {
		return domain.NewStorageError("migrate", err)
	}
	defer runner.Close()
	if err := runner.Up(); err != nil {
		return domain.NewStorageError("migrate", err)
	}
	return nil
}

// openService loads the three model artifacts and wires them to the store.
func (a *app) openService(store domain.HistoryStore) (*service.AssessmentService, error) {
	loader, err := predictor.NewLoader(a.cfg.Models.CacheSize, a.logger)
	if err != nil {
		return nil, err
	}
	adapters, err := loader.LoadAll(a.cfg.Models)
	if err != nil {
		return nil, err
	}

	predictors := make([]domain.Predictor, 0, len(adapters))
	for _, c := range domain.Conditions() {
		predictors = append(predictors, adapters[c])
	}
	return service.NewAssessmentService(predictors, store, a.logger)
}

// withStore runs fn against an opened store after the operator gate.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, a *app, store domain.HistoryStore) error) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.authorize(ctx, cmd); err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, a, store)
}

// withHistory runs fn with a history service; no model artifacts are loaded.
func withHistory(cmd *cobra.Command, fn func(ctx context.Context, a *app, svc *service.HistoryService) error) error {
	return withStore(cmd, func(ctx context.Context, a *app, store domain.HistoryStore) error {
		svc, err := service.NewHistoryService(store, a.logger)
		if err != nil {
			return err
		}
		return fn(ctx, a, svc)
	})
}

// withAssessment runs fn with the full assessment service.
func withAssessment(cmd *cobra.Command, fn func(ctx context.Context, a *app, svc *service.AssessmentService) error) error {
	return withStore(cmd, func(ctx context.Context, a *app, store domain.HistoryStore) error {
		svc, err := a.openService(store)
		if err != nil {
			return err
		}
		return fn(ctx, a, svc)
	})
}
