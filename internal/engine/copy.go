// Package engine provides a backup engine that copies directory trees on the
// local filesystem.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"mysql-hotbackup/internal/backup"

	"golang.org/x/time/rate"
)

// Version of the copy engine reported in manifests
const Version = "1.0.0"

// DefaultChunkSize is how much is copied between two polls. A throttle
// slower than this per second shrinks the chunk to one second's worth.
const DefaultChunkSize = 1 << 20

var errAborted = errors.New("backup aborted")

// CopyEngine copies every source tree into its destination file by file.
// It takes no locks on the server, so files written during the copy may be
// captured mid-write.
type CopyEngine struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	chunkSize int
}

// NewCopyEngine creates a new CopyEngine
func NewCopyEngine() *CopyEngine {
	return &CopyEngine{chunkSize: DefaultChunkSize}
}

// Version implements backup.Versioner
func (e *CopyEngine) Version() string {
	return "copy-engine " + Version
}

// Throttle implements backup.Throttler. Zero removes the limit.
func (e *CopyEngine) Throttle(bytesPerSecond uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if bytesPerSecond == 0 {
		e.limiter = nil
		return
	}
	burst := e.chunkSize
	if bytesPerSecond < uint64(burst) {
		burst = int(bytesPerSecond)
	}
	e.limiter = rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
}

// copyRun is the state of one BeginBackup call
type copyRun struct {
	poll    backup.PollFunc
	limiter *rate.Limiter
	buf     []byte
	total   int64
	copied  int64
}

// BeginBackup implements backup.Engine
func (e *CopyEngine) BeginBackup(sources, destinations []string, poll backup.PollFunc, report backup.ErrorFunc) int {
	if len(sources) != len(destinations) {
		msg := fmt.Sprintf("%d sources but %d destinations", len(sources), len(destinations))
		report(int(syscall.EINVAL), msg)
		return int(syscall.EINVAL)
	}

	e.mu.Lock()
	run := &copyRun{
		poll:    poll,
		limiter: e.limiter,
		buf:     make([]byte, e.chunkSize),
	}
	e.mu.Unlock()

	if err := run.measure(sources); err != nil {
		return fail(err, report)
	}

	if err := run.progress("starting"); err != nil {
		return fail(err, report)
	}

	for i, src := range sources {
		if err := run.copyTree(src, destinations[i]); err != nil {
			return fail(err, report)
		}
	}

	if err := run.progress("completed"); err != nil {
		return fail(err, report)
	}
	return 0
}

// fail reports err and returns its code
func fail(err error, report backup.ErrorFunc) int {
	if errors.Is(err, errAborted) {
		report(backup.AbortCode, errAborted.Error())
		return backup.AbortCode
	}
	code := errnoOf(err)
	report(code, err.Error())
	return code
}

func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return int(errno)
	}
	return int(syscall.EIO)
}

func (r *copyRun) measure(sources []string) error {
	for _, src := range sources {
		err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) && path != src {
					return nil
				}
				return err
			}
			if info.Mode().IsRegular() {
				r.total += info.Size()
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("scan %s: %w", src, err)
		}
	}
	return nil
}

func (r *copyRun) progress(message string) error {
	fraction := 1.0
	if r.total > 0 {
		fraction = float64(r.copied) / float64(r.total)
		if fraction > 1 {
			fraction = 1
		}
	}
	if r.poll(fraction, message) != 0 {
		return errAborted
	}
	return nil
}

func (r *copyRun) copyTree(src, dst string) error {
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// tables dropped while the copy runs
			if os.IsNotExist(err) && path != src {
				return nil
			}
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		dstPath := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return copyDir(dstPath, info)
		case info.Mode()&os.ModeSymlink != 0:
			return copySymlink(path, dstPath)
		case info.Mode().IsRegular():
			return r.copyFile(path, dstPath, info)
		default:
			// sockets, pipes and devices
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, errAborted) {
			return err
		}
		return fmt.Errorf("copy %s: %w", src, err)
	}

	return syncDir(dst)
}

func copyDir(dst string, info os.FileInfo) error {
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("mkdir %s: %w", dst, err)
	}
	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", src, err)
	}
	return os.Symlink(target, dst)
}

func (r *copyRun) copyFile(src, dst string, info os.FileInfo) error {
	if err := r.progress("copying " + src); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open src %s: %w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create dst %s: %w", dst, err)
	}
	defer dstFile.Close()

	buf := r.slice()
	for {
		n, readErr := srcFile.Read(buf)
		if n > 0 {
			if err := r.wait(n); err != nil {
				return err
			}
			if _, err := dstFile.Write(buf[:n]); err != nil {
				return fmt.Errorf("write %s: %w", dst, err)
			}
			r.copied += int64(n)
			if n == len(buf) {
				if err := r.progress("copying " + src); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read %s: %w", src, readErr)
		}
	}

	if err := dstFile.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", dst, err)
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// slice returns the buffer one read may fill. Under a throttle it is capped
// at the limiter burst so that no wait outlasts a second and polls keep
// coming at a slow rate.
func (r *copyRun) slice() []byte {
	if r.limiter != nil {
		if burst := r.limiter.Burst(); burst > 0 && burst < len(r.buf) {
			return r.buf[:burst]
		}
	}
	return r.buf
}

// wait blocks until the limiter allows n more bytes. n never exceeds the
// burst because reads are capped by slice.
func (r *copyRun) wait(n int) error {
	if r.limiter == nil {
		return nil
	}
	if err := r.limiter.WaitN(context.Background(), n); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("fsync dir %s: %w", dir, err)
	}
	return nil
}
