package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"mysql-migrate/internal/errors"
	"mysql-migrate/internal/logging"
)

// Service manages connections to the target database. Connection attempts go
// through the retry handler because transient network failures are the common
// failure mode here.
type Service struct {
	connectionTimeout time.Duration
	logger            *logging.Logger
	retryHandler      *errors.RetryHandler
}

// NewService creates a database service with default settings
func NewService(logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Service{
		connectionTimeout: 30 * time.Second,
		logger:            logger,
		retryHandler:      errors.NewDefaultRetryHandler(),
	}
}

// NewServiceWithOptions creates a database service with custom retry settings
func NewServiceWithOptions(logger *logging.Logger, timeout time.Duration, maxRetries int, retryDelay time.Duration) *Service {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	retryConfig := errors.RetryConfig{
		MaxAttempts: maxRetries,
		BaseDelay:   retryDelay,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
	return &Service{
		connectionTimeout: timeout,
		logger:            logger,
		retryHandler:      errors.NewRetryHandler(retryConfig),
	}
}

// Connect establishes a connection to the target database with retry logic
func (s *Service) Connect(ctx context.Context, config Config) (*sql.DB, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeConfiguration, err.Error(), nil)
	}

	s.logger.WithFields(map[string]interface{}{
		"host":     config.Host,
		"database": config.Database,
		"port":     config.Port,
	}).Info("Attempting database connection")

	finish := s.logger.LogOperationStart("database_connect", map[string]interface{}{
		"host":     config.Host,
		"database": config.Database,
	})

	var db *sql.DB
	err := s.retryHandler.Retry(ctx, func() error {
		var connectErr error

		db, connectErr = sql.Open("mysql", config.DSN())
		if connectErr != nil {
			return errors.WrapError(connectErr, "failed to open database connection")
		}

		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if testErr := s.TestConnection(ctx, db); testErr != nil {
			db.Close()
			return testErr
		}

		return nil
	})

	finish(err)
	if err != nil {
		return nil, err
	}

	return db, nil
}

// TestConnection verifies that the database connection is working
func (s *Service) TestConnection(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return errors.WrapError(err, "failed to ping database")
	}

	s.logger.Debug("Database connection test successful")
	return nil
}

// Close gracefully closes the database connection
func (s *Service) Close(db *sql.DB) error {
	if db == nil {
		return nil
	}

	if err := db.Close(); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to close database connection")
		return errors.WrapError(err, "failed to close database connection")
	}

	s.logger.Debug("Database connection closed")
	return nil
}

// Version retrieves the MySQL server version
func (s *Service) Version(ctx context.Context, db *sql.DB) (string, error) {
	if db == nil {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	var version string
	if err := db.QueryRowContext(queryCtx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", errors.WrapError(err, "failed to get database version")
	}

	s.logger.WithField("version", version).Debug("Retrieved database version")
	return version, nil
}
