package database

import (
	"context"
	"testing"
	"time"

	"mysql-hotbackup/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNewService(t *testing.T) {
	service := NewService()
	if service == nil {
		t.Fatal("Expected service to be created")
	}
	if service.connectionTimeout != 30*time.Second {
		t.Errorf("Expected default timeout to be 30s, got %v", service.connectionTimeout)
	}
	if service.maxRetries != 3 {
		t.Errorf("Expected default max retries to be 3, got %d", service.maxRetries)
	}
}

func TestNewServiceWithOptions(t *testing.T) {
	timeout := 10 * time.Second
	maxRetries := 5
	retryDelay := 1 * time.Second

	service := NewServiceWithOptions(timeout, maxRetries, retryDelay)
	if service.connectionTimeout != timeout {
		t.Errorf("Expected timeout to be %v, got %v", timeout, service.connectionTimeout)
	}
	if service.maxRetries != maxRetries {
		t.Errorf("Expected max retries to be %d, got %d", maxRetries, service.maxRetries)
	}
	if service.retryDelay != retryDelay {
		t.Errorf("Expected retry delay to be %v, got %v", retryDelay, service.retryDelay)
	}
}

func TestNewServiceWithLogger(t *testing.T) {
	logger := logging.NewDiscardLogger()
	service := NewServiceWithLogger(logger)
	if service.logger != logger {
		t.Error("Expected custom logger to be set")
	}
}

func TestConnect_Refused(t *testing.T) {
	service := NewServiceWithOptions(2*time.Second, 1, 10*time.Millisecond)
	service.logger = logging.NewDiscardLogger()

	config := DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     1,
		Username: "backup",
		Timeout:  time.Second,
	}

	db, err := service.Connect(context.Background(), config)
	if err == nil {
		t.Error("Expected error for a closed port")
	}
	if db != nil {
		t.Error("Expected no connection on failure")
	}
}

func TestConnect_Canceled(t *testing.T) {
	service := NewServiceWithOptions(2*time.Second, 3, 10*time.Millisecond)
	service.logger = logging.NewDiscardLogger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.Connect(ctx, DatabaseConfig{Host: "127.0.0.1", Port: 1, Username: "backup"})
	if err == nil {
		t.Error("Expected error for a canceled context")
	}
}

func TestTestConnection(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()

	service := NewServiceWithLogger(logging.NewDiscardLogger())
	if err := service.TestConnection(context.Background(), db); err != nil {
		t.Errorf("Expected ping to succeed, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestTestConnection_NilDB(t *testing.T) {
	service := NewServiceWithLogger(logging.NewDiscardLogger())
	if err := service.TestConnection(context.Background(), nil); err == nil {
		t.Error("Expected error for nil connection")
	}
}

func TestGetVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT VERSION\\(\\)").
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()"}).AddRow("8.0.36"))

	service := NewServiceWithLogger(logging.NewDiscardLogger())
	version, err := service.GetVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if version != "8.0.36" {
		t.Errorf("Expected version 8.0.36, got %s", version)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestGetVersion_NilDB(t *testing.T) {
	service := NewServiceWithLogger(logging.NewDiscardLogger())
	if _, err := service.GetVersion(context.Background(), nil); err == nil {
		t.Error("Expected error for nil connection")
	}
}

func TestClose(t *testing.T) {
	service := NewServiceWithLogger(logging.NewDiscardLogger())

	if err := service.Close(nil); err != nil {
		t.Errorf("Expected no error closing nil connection, got %v", err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	mock.ExpectClose()

	if err := service.Close(db); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}
