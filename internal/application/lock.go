package application

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"mysql-hotbackup/internal/backup"
	"mysql-hotbackup/internal/logging"
)

// runLock keeps a second backup from starting on the same host while one
// is running
type runLock struct {
	fl     *flock.Flock
	logger *logging.Logger
}

// acquireLock takes the lock at path without waiting
func acquireLock(path string, logger *logging.Logger) (*runLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, backup.NewLockError("failed to create lock directory", err).WithContext("lock_file", path)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, backup.NewLockError("failed to lock "+path, err).WithContext("lock_file", path)
	}
	if !locked {
		return nil, backup.NewLockError(fmt.Sprintf("another backup holds %s", path), nil).
			WithContext("lock_file", path)
	}

	logger.WithField("lock_file", path).Debug("Backup lock acquired")
	return &runLock{fl: fl, logger: logger}, nil
}

func (l *runLock) release() {
	if err := l.fl.Unlock(); err != nil {
		l.logger.WithField("error", err.Error()).Warn("Failed to release backup lock")
		return
	}
	l.logger.WithField("lock_file", l.fl.Path()).Debug("Backup lock released")
}
