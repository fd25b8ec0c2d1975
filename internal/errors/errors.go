package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeConnection represents database connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeConfiguration represents missing or unusable server settings
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeFilesystem represents source or destination filesystem errors
	ErrorTypeFilesystem ErrorType = "filesystem"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePermission represents permission/access errors
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeStorage represents remote storage errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
	UserMessage string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// IsRecoverable returns whether the error is recoverable
func (e *AppError) IsRecoverable() bool {
	return e.Recoverable
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets the message shown to the operator
func (e *AppError) WithUserMessage(message string) *AppError {
	e.UserMessage = message
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// newRecoverableError marks failures that a retry may get past
func newRecoverableError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:        errorType,
		Message:     message,
		Cause:       cause,
		Context:     make(map[string]interface{}),
		Recoverable: true,
	}
}

// ErrorClassifier provides methods to classify and handle different types of errors
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns an AppError with appropriate classification
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if mysqlErr := ec.classifyMySQLError(err); mysqlErr != nil {
		return mysqlErr
	}

	if netErr := ec.classifyNetworkError(err); netErr != nil {
		return netErr
	}

	if ctxErr := ec.classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	if fsErr := ec.classifyFileSystemError(err); fsErr != nil {
		return fsErr
	}

	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

// classifyMySQLError classifies MySQL-specific errors
func (ec *ErrorClassifier) classifyMySQLError(err error) *AppError {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1045: // Access denied
			return NewAppError(ErrorTypePermission,
				"Database access denied - check username and password", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1227: // Specific privilege required
			return NewAppError(ErrorTypePermission,
				"Backup user lacks a required privilege", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1193: // Unknown system variable
			return NewAppError(ErrorTypeConfiguration,
				"Server does not know the requested variable", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 1152: // Aborted connection
			return NewAppError(ErrorTypeInterruption,
				"Backup was aborted", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 2003: // Can't connect to MySQL server
			return newRecoverableError(ErrorTypeConnection,
				"Cannot connect to MySQL server - server may be down or unreachable", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		case 2006, 2013: // Server has gone away, lost connection during query
			return newRecoverableError(ErrorTypeConnection,
				"MySQL server connection lost - attempting to reconnect", err).
				WithContext("mysql_error_code", mysqlErr.Number)
		default:
			return NewAppError(ErrorTypeConnection,
				fmt.Sprintf("MySQL error: %s", mysqlErr.Message), err).
				WithContext("mysql_error_code", mysqlErr.Number)
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return NewAppError(ErrorTypeConfiguration, "Server variable not found", err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return newRecoverableError(ErrorTypeConnection, "Database connection is closed", err)
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return newRecoverableError(ErrorTypeConnection, "Database connection is invalid", err)
	}

	return nil
}

// classifyNetworkError classifies network-related errors
func (ec *ErrorClassifier) classifyNetworkError(err error) *AppError {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return newRecoverableError(ErrorTypeTimeout,
				"Network operation timed out", err)
		}
		switch opErr.Op {
		case "dial":
			return newRecoverableError(ErrorTypeConnection,
				"Failed to establish network connection", err)
		case "read", "write":
			return newRecoverableError(ErrorTypeConnection,
				"Network I/O error", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newRecoverableError(ErrorTypeTimeout,
			"Network operation timed out", err)
	}

	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return newRecoverableError(ErrorTypeTimeout,
			"Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption,
			"Operation was canceled", err)
	}

	return nil
}

// classifyFileSystemError classifies file system errors
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch pathErr.Err {
		case syscall.ENOENT:
			return NewAppError(ErrorTypeFilesystem,
				fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
		case syscall.EEXIST:
			return NewAppError(ErrorTypeFilesystem,
				fmt.Sprintf("Destination already exists: %s", pathErr.Path), err).
				WithUserMessage("Backup target is not empty - choose a fresh directory")
		case syscall.EACCES, syscall.EPERM:
			return NewAppError(ErrorTypePermission,
				fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
		case syscall.ENOSPC:
			return NewAppError(ErrorTypeFilesystem,
				"No space left on device", err)
		}
	}

	return nil
}

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryHandler provides retry functionality for operations
type RetryHandler struct {
	config     RetryConfig
	classifier *ErrorClassifier
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(config RetryConfig) *RetryHandler {
	return &RetryHandler{
		config:     config,
		classifier: NewErrorClassifier(),
	}
}

// NewDefaultRetryHandler creates a retry handler with default configuration
func NewDefaultRetryHandler() *RetryHandler {
	return NewRetryHandler(DefaultRetryConfig())
}

// Retry executes a function with retry logic for recoverable errors
func (rh *RetryHandler) Retry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= rh.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return NewAppError(ErrorTypeInterruption, "Operation canceled", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err
		appErr := rh.classifier.ClassifyError(err)

		if !appErr.IsRecoverable() {
			return appErr
		}

		if attempt == rh.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return NewAppError(ErrorTypeInterruption, "Operation canceled during retry", ctx.Err())
		case <-time.After(rh.calculateDelay(attempt)):
		}
	}

	return rh.classifier.ClassifyError(lastErr).
		WithContext("attempts", rh.config.MaxAttempts)
}

// calculateDelay calculates the delay for a given attempt using exponential backoff
func (rh *RetryHandler) calculateDelay(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= rh.config.Multiplier
	}

	delay := time.Duration(float64(rh.config.BaseDelay) * multiplier)
	if delay > rh.config.MaxDelay {
		delay = rh.config.MaxDelay
	}
	return delay
}

// GracefulShutdownHandler cancels the running backup and runs cleanup
// functions when SIGINT or SIGTERM arrives
type GracefulShutdownHandler struct {
	mu            sync.Mutex
	shutdownFuncs []func() error
	cancel        context.CancelFunc
	signalChan    chan os.Signal
	done          chan struct{}
	once          sync.Once
}

// NewGracefulShutdownHandler creates a new graceful shutdown handler
func NewGracefulShutdownHandler() *GracefulShutdownHandler {
	return &GracefulShutdownHandler{
		signalChan: make(chan os.Signal, 1),
		done:       make(chan struct{}),
	}
}

// Context returns a child of parent that is canceled as soon as a shutdown
// signal is received, before any registered function runs
func (gsh *GracefulShutdownHandler) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	gsh.mu.Lock()
	gsh.cancel = cancel
	gsh.mu.Unlock()
	return ctx
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (gsh *GracefulShutdownHandler) RegisterShutdownFunc(fn func() error) {
	gsh.mu.Lock()
	defer gsh.mu.Unlock()
	gsh.shutdownFuncs = append(gsh.shutdownFuncs, fn)
}

// Start starts listening for shutdown signals
func (gsh *GracefulShutdownHandler) Start() {
	signal.Notify(gsh.signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if _, ok := <-gsh.signalChan; ok {
			gsh.Trigger()
		}
	}()
}

// Trigger runs the shutdown sequence as if a signal had been received
func (gsh *GracefulShutdownHandler) Trigger() {
	gsh.once.Do(gsh.shutdown)
}

// Stop stops listening for signals. Registered functions are not run.
func (gsh *GracefulShutdownHandler) Stop() {
	signal.Stop(gsh.signalChan)
	close(gsh.signalChan)
}

// WaitForShutdown waits for shutdown to complete
func (gsh *GracefulShutdownHandler) WaitForShutdown() {
	<-gsh.done
}

// shutdown cancels the context and executes all registered shutdown
// functions in reverse order
func (gsh *GracefulShutdownHandler) shutdown() {
	defer close(gsh.done)

	gsh.mu.Lock()
	cancel := gsh.cancel
	funcs := append([]func() error(nil), gsh.shutdownFuncs...)
	gsh.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}
}

// FormatUserError formats an error for display to users
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.GetUserMessage()
	}

	return "An unexpected error occurred. Please check the logs for more details."
}

// WrapError wraps an existing error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped := NewAppError(appErr.Type, message, err)
		wrapped.Recoverable = appErr.Recoverable
		return wrapped
	}

	classifiedErr := NewErrorClassifier().ClassifyError(err)
	classifiedErr.Message = message
	return classifiedErr
}
