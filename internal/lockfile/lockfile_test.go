package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestAcquireLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, DispatcherLock)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, DispatcherLock) {
		t.Errorf("Path() = %q", lock.Path())
	}
	content, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("Failed to read lock file: %v", err)
	}
	if !strings.HasPrefix(string(content), fmt.Sprintf("pid=%d\n", os.Getpid())) {
		t.Errorf("Lock file content = %q", content)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()
	lock1, err := AcquireLock(dir, DispatcherLock)
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer lock1.Release()

	lock2, err := AcquireLock(dir, DispatcherLock)
	if err == nil {
		lock2.Release()
		t.Fatal("Second lock acquisition should have failed")
	}
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected *LockError, got %T", err)
	}
	if !strings.Contains(lockErr.Holder, fmt.Sprintf("PID %d (running)", os.Getpid())) {
		t.Errorf("Holder = %q", lockErr.Holder)
	}
	if !strings.Contains(err.Error(), DispatcherLock) {
		t.Errorf("error should name the lock: %s", err)
	}

	// The failed attempt must not have clobbered the holder's pid line.
	content, _ := os.ReadFile(lock1.Path())
	if extractPID(string(content)) != os.Getpid() {
		t.Errorf("holder info lost: %q", content)
	}
}

func TestDifferentNamesDoNotConflict(t *testing.T) {
	dir := t.TempDir()
	a, err := AcquireLock(dir, DispatcherLock)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()
	b, err := AcquireLock(dir, ExportLock)
	if err != nil {
		t.Fatalf("independent lock failed: %v", err)
	}
	defer b.Release()
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, DispatcherLock)
	if err != nil {
		t.Fatal(err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("Release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after release")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op: %v", err)
	}

	again, err := AcquireLock(dir, DispatcherLock)
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	again.Release()
}

func TestStaleHandleAfterReleaseIsDetected(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir, ExportLock)
	if err != nil {
		t.Fatal(err)
	}
	// A contender that opened the file just before the holder released it.
	stale, err := os.OpenFile(first.Path(), os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer stale.Close()
	if err := first.Release(); err != nil {
		t.Fatal(err)
	}

	second, err := AcquireLock(dir, ExportLock)
	if err != nil {
		t.Fatalf("AcquireLock after release failed: %v", err)
	}
	defer second.Release()

	// The unlinked inode can still be flocked, but it is not the lock anymore.
	if err := syscall.Flock(int(stale.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		t.Fatalf("flock on unlinked inode: %v", err)
	}
	if sameInode(stale, second.Path()) {
		t.Error("stale handle must not match the current lock file")
	}
	if !sameInode(second.file, second.Path()) {
		t.Error("holder's handle should match the current lock file")
	}

	if _, err := AcquireLock(dir, ExportLock); err == nil {
		t.Error("lock should still be held by the second holder")
	}
}

func TestSameInodeMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.lock")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !sameInode(f, path) {
		t.Error("fresh file should match its path")
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if sameInode(f, path) {
		t.Error("removed file should not match")
	}
}

func TestAcquireLockCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state", "nested")
	lock, err := AcquireLock(dir, ExportLock)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state dir not created: %v", err)
	}
}

func TestAcquireLockRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "../escape.lock"} {
		if _, err := AcquireLock(t.TempDir(), name); err == nil {
			t.Errorf("AcquireLock(%q) should fail", name)
		}
	}
}

func TestExtractPID(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"pid=12345\n", 12345},
		{"pid=67890\nacquired=2024-01-01T00:00:00Z\n", 67890},
		{"acquired=x\npid=42", 42},
		{"other=info", 0},
		{"", 0},
		{"pid=abc", 0},
	}
	for _, tt := range tests {
		if got := extractPID(tt.content); got != tt.want {
			t.Errorf("extractPID(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
