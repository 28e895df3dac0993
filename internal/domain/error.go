package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context passed to repository")

	// Import queue errors
	ErrEmptyPayload    = errors.New("item payload is empty")
	ErrJobNotPending   = errors.New("job has no pending items")
	ErrLockUnavailable = errors.New("could not acquire lock")
)
