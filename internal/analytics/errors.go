package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistenceIO is matched by every *PersistenceError.
	ErrPersistenceIO = errors.New("analytics persistence I/O failure")
	// ErrCorruptState means the analytics file exists but is not valid JSON.
	ErrCorruptState = errors.New("analytics state file is corrupt")
)

// PersistenceError wraps a failure to read or write the analytics file.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("analytics %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPersistenceIO) match.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistenceIO
}
