// Package application wires the framework together: configuration in,
// connected services out. The command layer talks to Application instead of
// assembling collaborators itself.
package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"mysql-migrate/internal/backup"
	"mysql-migrate/internal/config"
	"mysql-migrate/internal/database"
	"mysql-migrate/internal/display"
	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/executor"
	"mysql-migrate/internal/history"
	"mysql-migrate/internal/logging"
	"mysql-migrate/internal/migration"
	"mysql-migrate/internal/validation"
)

// Application owns the assembled service graph for one CLI invocation
type Application struct {
	config  *config.Config
	logger  *logging.Logger
	display *display.Service

	dbService *database.Service
	db        *sql.DB

	executor  executor.StatementExecutor
	ledger    *history.Ledger
	registry  *migration.Registry
	planner   *migration.Planner
	runner    *migration.Runner
	rollback  *migration.RollbackCoordinator
	backups   *backup.Manager
	validator *validation.Engine

	shutdown *errors.GracefulShutdownHandler
}

// New builds an application from configuration. No connections are opened
// yet; call Connect before running operations that touch the target store.
func New(cfg *config.Config, disp *display.Service) (*Application, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfiguration, err.Error(), nil)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:   cfg.EffectiveLogLevel(),
		Format:  cfg.Logging.Format,
		LogFile: cfg.Logging.LogFile,
	})
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfiguration, "failed to initialize logger", err)
	}

	if disp == nil {
		disp = display.NewService(display.Options{})
	}

	return &Application{
		config:   cfg,
		logger:   logger,
		display:  disp,
		shutdown: errors.NewGracefulShutdownHandler(),
	}, nil
}

// Connect opens the target database and assembles every service that needs
// it. Loaded migration definitions are registered immediately, so a corrupt
// or tampered definition fails the whole invocation up front.
func (a *Application) Connect(ctx context.Context) error {
	a.dbService = database.NewService(a.logger)

	db, err := a.dbService.Connect(ctx, a.config.Target)
	if err != nil {
		return err
	}
	a.db = db
	a.shutdown.RegisterShutdownFunc(func() error {
		return a.dbService.Close(a.db)
	})

	sqlExecutor := executor.NewSQLExecutor(db, a.logger)
	sqlExecutor.SetQueryTimeout(a.config.Timeout)
	a.executor = sqlExecutor

	ledger, err := history.Open(a.config.LedgerPath, a.logger)
	if err != nil {
		return err
	}
	a.ledger = ledger

	a.registry = migration.NewRegistry(ledger, a.logger)
	if err := a.registerMigrations(); err != nil {
		return err
	}
	a.planner = migration.NewPlanner(a.registry, a.logger)

	storage, err := backup.NewStorageProvider(ctx, a.config.Backup.Storage)
	if err != nil {
		return err
	}
	snapshotter := backup.NewSQLSnapshotter(a.executor, a.config.Backup.DumpQueries, a.config.Backup.StatementQuery)
	a.backups = backup.NewManager(ledger, a.executor, snapshotter, storage, a.logger, backup.ManagerConfig{
		Compression:    a.config.Backup.Compression,
		Encryption:     a.config.Backup.Encryption,
		RestoreTimeout: a.config.Backup.RestoreTimeout,
	})

	a.runner = migration.NewRunner(a.registry, ledger, a.executor, a.backups, a.logger, migration.RunnerConfig{})
	a.rollback = migration.NewRollbackCoordinator(a.registry, ledger, a.executor, a.backups, a.logger)
	a.validator = validation.NewEngine(a.executor, a.logger)

	a.shutdown.Start()
	return nil
}

// registerMigrations loads the migrations directory and registers every set.
// Registration is multi-pass because directory order need not be dependency
// order; a pass that makes no progress means a genuinely unresolvable set.
func (a *Application) registerMigrations() error {
	if _, err := os.Stat(a.config.MigrationsDir); os.IsNotExist(err) {
		a.logger.WithField("dir", a.config.MigrationsDir).Debug("Migrations directory does not exist, nothing to register")
		return nil
	}

	sets, err := migration.LoadDir(a.config.MigrationsDir)
	if err != nil {
		return err
	}

	pending := sets
	for len(pending) > 0 {
		var deferred []*migration.MigrationSet
		var lastErr error

		for _, set := range pending {
			if err := a.registry.Register(set); err != nil {
				if errors.IsType(err, errors.ErrorTypeDependencyNotFound) {
					deferred = append(deferred, set)
					lastErr = err
					continue
				}
				return err
			}
		}

		if len(deferred) == len(pending) {
			return lastErr
		}
		pending = deferred
	}

	a.logger.WithField("count", a.registry.Count()).Info("Migration definitions registered")
	return nil
}

// Close releases held resources
func (a *Application) Close() {
	a.shutdown.Stop()
	if a.db != nil {
		a.dbService.Close(a.db)
		a.db = nil
	}
}

// Logger exposes the configured logger
func (a *Application) Logger() *logging.Logger {
	return a.logger
}

// Display exposes the display service
func (a *Application) Display() *display.Service {
	return a.display
}

// Registry exposes the migration registry
func (a *Application) Registry() *migration.Registry {
	return a.registry
}

// Plan computes the dependency-resolved execution plan for a target version
func (a *Application) Plan(target string) (*migration.ExecutionPlan, error) {
	return a.planner.Plan(target)
}

// Migrate applies every unapplied migration in the plan for the target
// version, in order. The first failing set stops the run; sets after it are
// not attempted.
func (a *Application) Migrate(ctx context.Context, target string, opts migration.ExecuteOptions) ([]*migration.ExecutionResult, error) {
	plan, err := a.planner.Plan(target)
	if err != nil {
		return nil, err
	}

	var results []*migration.ExecutionResult
	for _, set := range plan.Migrations {
		if a.ledger.HasSucceeded(set.Version) && !opts.Force {
			a.logger.WithField("version", set.Version).Debug("Migration already applied, skipping")
			continue
		}

		result, err := a.runner.Execute(ctx, set.Version, opts)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		if !result.Success {
			return results, nil
		}
	}

	return results, nil
}

// Rollback reverses a single applied migration set
func (a *Application) Rollback(ctx context.Context, version, reason string) (*migration.ExecutionResult, error) {
	return a.rollback.Rollback(ctx, version, reason)
}

// CreateBackup captures a backup outside any migration
func (a *Application) CreateBackup(ctx context.Context, opts backup.CreateOptions) (*backup.Record, error) {
	return a.backups.Create(ctx, opts)
}

// ListBackups returns the backup catalog, oldest first
func (a *Application) ListBackups() []backup.Record {
	return a.backups.List()
}

// VerifyBackup re-checks a stored artifact against its cataloged checksum
func (a *Application) VerifyBackup(ctx context.Context, backupID string) error {
	return a.backups.Verify(ctx, backupID)
}

// PruneBackups removes backups past their retention window
func (a *Application) PruneBackups(ctx context.Context) ([]string, error) {
	return a.backups.PruneExpired(ctx, time.Now().UTC())
}

// Restore replays a stored backup into the target store
func (a *Application) Restore(ctx context.Context, backupID string) (*migration.ExecutionResult, error) {
	return a.backups.Restore(ctx, backupID)
}

// Validate runs rules loaded from a YAML file against the target store
func (a *Application) Validate(ctx context.Context, rulesPath string) (*validation.Summary, error) {
	rules, err := validation.LoadRules(rulesPath)
	if err != nil {
		return nil, err
	}
	return a.validator.RunRules(ctx, rules)
}

// Status describes where the target store stands relative to the registry
type Status struct {
	Registered int             `json:"registered"`
	Applied    []string        `json:"applied"`
	Pending    []string        `json:"pending"`
	Ledger     history.Summary `json:"ledger"`
	Backups    int             `json:"backups"`
}

// Status summarizes registered, applied, and pending migrations
func (a *Application) Status() Status {
	status := Status{
		Registered: a.registry.Count(),
		Ledger:     a.ledger.Summarize(),
		Backups:    len(a.backups.List()),
	}
	for _, set := range a.registry.ListApplied() {
		status.Applied = append(status.Applied, set.Version)
	}
	for _, set := range a.registry.ListPending() {
		status.Pending = append(status.Pending, set.Version)
	}
	return status
}

// Export writes the full ledger document as JSON to path, or to stdout when
// path is empty
func (a *Application) Export(path string) error {
	doc := a.ledger.Export()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewAppError(errors.ErrorTypeStorage, "failed to serialize ledger export", err)
	}

	if path == "" {
		a.display.Println(string(data))
		return nil
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.NewAppError(errors.ErrorTypeStorage,
			fmt.Sprintf("failed to write ledger export to %s", path), err)
	}
	return nil
}
