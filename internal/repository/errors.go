package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a unique constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrLockTimeout indicates a row lock could not be obtained in time.
	ErrLockTimeout = errors.New("repository: lock timeout")
)
