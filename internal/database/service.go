package database

import (
	"context"
	"database/sql"
	"time"

	"mysql-hotbackup/internal/errors"
	"mysql-hotbackup/internal/logging"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

// DatabaseService defines the interface for database operations
type DatabaseService interface {
	Connect(ctx context.Context, config DatabaseConfig) (*sql.DB, error)
	TestConnection(ctx context.Context, db *sql.DB) error
	Close(db *sql.DB) error
	GetVersion(ctx context.Context, db *sql.DB) (string, error)
}

// Service implements the DatabaseService interface
type Service struct {
	connectionTimeout time.Duration
	maxRetries        int
	retryDelay        time.Duration
	logger            *logging.Logger
	retryHandler      *errors.RetryHandler
}

// NewService creates a new database service with default settings
func NewService() *Service {
	return NewServiceWithLogger(logging.NewDefaultLogger())
}

// NewServiceWithOptions creates a new database service with custom options
func NewServiceWithOptions(timeout time.Duration, maxRetries int, retryDelay time.Duration) *Service {
	return &Service{
		connectionTimeout: timeout,
		maxRetries:        maxRetries,
		retryDelay:        retryDelay,
		logger:            logging.NewDefaultLogger(),
		retryHandler: errors.NewRetryHandler(errors.RetryConfig{
			MaxAttempts: maxRetries,
			BaseDelay:   retryDelay,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
		}),
	}
}

// NewServiceWithLogger creates a new database service with a custom logger
func NewServiceWithLogger(logger *logging.Logger) *Service {
	return &Service{
		connectionTimeout: 30 * time.Second,
		maxRetries:        3,
		retryDelay:        2 * time.Second,
		logger:            logger,
		retryHandler:      errors.NewDefaultRetryHandler(),
	}
}

// Connect establishes a connection to the MySQL server with retry logic.
// Only connection failures are retried; access denied is returned at once.
func (s *Service) Connect(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	startTime := time.Now()

	s.logger.WithFields(map[string]interface{}{
		"address":  config.Address(),
		"username": config.Username,
	}).Info("Attempting database connection")

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	var db *sql.DB
	err := s.retryHandler.Retry(ctx, func() error {
		var connectErr error

		db, connectErr = sql.Open("mysql", config.DSN())
		if connectErr != nil {
			return errors.WrapError(connectErr, "failed to open database connection")
		}

		// a backup needs a single session
		db.SetMaxOpenConns(2)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(5 * time.Minute)

		if testErr := s.TestConnection(ctx, db); testErr != nil {
			db.Close()
			return testErr
		}

		return nil
	})

	s.logger.LogDatabaseConnection(config.Address(), config.Port, err == nil, time.Since(startTime), err)

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

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, "failed to ping database")
	}

	s.logger.Debug("Database connection test successful")
	return nil
}

// Close gracefully closes the database connection
func (s *Service) Close(db *sql.DB) error {
	if db == nil {
		s.logger.Debug("Database connection is nil, nothing to close")
		return nil
	}

	if err := db.Close(); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to close database connection")
		return errors.WrapError(err, "failed to close database connection")
	}

	s.logger.Debug("Database connection closed successfully")
	return nil
}

// GetVersion retrieves the MySQL server version
func (s *Service) GetVersion(ctx context.Context, db *sql.DB) (string, error) {
	if db == nil {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&version); err != nil {
		return "", errors.WrapError(err, "failed to get database version")
	}

	s.logger.WithField("version", version).Debug("Retrieved database version")
	return version, nil
}
