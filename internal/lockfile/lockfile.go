// Package lockfile provides named flock-based locks inside the Shanbot state directory.
//
// The dispatcher holds dispatcher.lock so only one process ever delivers scheduled
// replies; the export command holds export.lock while it rewrites the analytics file.
// Locks are released by the kernel when the process exits, gracefully or not.
package lockfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Well-known lock names.
const (
	DispatcherLock = "dispatcher.lock"
	ExportLock     = "export.lock"
)

// Lock represents an acquired named lock.
type Lock struct {
	file *os.File
	path string
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// AcquireLock takes the exclusive lock called name in stateDir without blocking.
// If another process holds it, a *LockError describes the holder.
func AcquireLock(stateDir, name string) (*Lock, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return nil, fmt.Errorf("invalid lock name %q", name)
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("lockfile.AcquireLock: failed to create state directory", "error", err, "stateDir", stateDir)
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	lockPath := filepath.Join(stateDir, name)
	file, err := lockFile(name, lockPath)
	if err != nil {
		return nil, err
	}

	info := fmt.Sprintf("pid=%d\nacquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err = file.Truncate(0); err == nil {
		_, err = file.WriteAt([]byte(info), 0)
	}
	if err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}
	if err := file.Sync(); err != nil {
		slog.Warn("lockfile.AcquireLock: sync failed", "error", err, "lockPath", lockPath)
	}

	slog.Info("lockfile.AcquireLock: acquired", "lockPath", lockPath, "pid", os.Getpid())
	return &Lock{file: file, path: lockPath}, nil
}

// maxLockAttempts bounds how often AcquireLock retries after losing a race with Release.
const maxLockAttempts = 5

// lockFile opens lockPath and flocks it. Release unlinks the file before unlocking, so a
// contender may lock an inode that is no longer at lockPath; that lock protects nothing
// and the open is retried.
func lockFile(name, lockPath string) (*os.File, error) {
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		// No O_TRUNC: a losing contender must not wipe the holder's pid line.
		file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			slog.Error("lockfile.AcquireLock: open failed", "error", err, "lockPath", lockPath)
			return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
		}

		if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			file.Close()
			holder := describeHolder(lockPath)
			slog.Error("lockfile.AcquireLock: lock is held", "lockPath", lockPath, "holder", holder, "error", err)
			return nil, &LockError{Name: name, LockPath: lockPath, Holder: holder, Cause: err}
		}

		if sameInode(file, lockPath) {
			return file, nil
		}
		slog.Debug("lockfile.AcquireLock: lock file replaced while locking, retrying", "lockPath", lockPath, "attempt", attempt+1)
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
	}
	return nil, fmt.Errorf("failed to lock %s: lock file kept changing", lockPath)
}

// sameInode reports whether file is still the file at path.
func sameInode(file *os.File, path string) bool {
	held, err := file.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

// Release unlocks and removes the lock file. It is safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a new holder never has its file deleted from under it.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: failed to remove lock file", "error", err, "lockPath", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Error("Lock.Release: unlock failed", "error", err, "lockPath", l.path)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("Lock.Release: released", "lockPath", l.path)
	return err
}

// LockError reports that another process holds a lock.
type LockError struct {
	Name     string
	LockPath string
	Holder   string
	Cause    error
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("lock %s is held by another Shanbot process (lock file: %s", e.Name, e.LockPath)
	if e.Holder != "" {
		msg += ", holder: " + e.Holder
	}
	return msg + "); remove the file only if that process is gone"
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// describeHolder reads the pid line of an existing lock file for error messages.
func describeHolder(lockPath string) string {
	data, err := os.ReadFile(lockPath)
	if err != nil || len(data) == 0 {
		return ""
	}
	pid := extractPID(string(data))
	if pid <= 0 {
		return strings.TrimSpace(string(data))
	}
	if isProcessRunning(pid) {
		return fmt.Sprintf("PID %d (running)", pid)
	}
	return fmt.Sprintf("PID %d (not running)", pid)
}

func extractPID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		v, ok := strings.CutPrefix(strings.TrimSpace(line), "pid=")
		if !ok {
			continue
		}
		if pid, err := strconv.Atoi(v); err == nil {
			return pid
		}
	}
	return 0
}

// isProcessRunning sends signal 0, which only checks that the process exists.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
