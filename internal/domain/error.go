package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidTransition = errors.New("invalid message processing transition")
	ErrTerminalRetry     = errors.New("cannot retry terminal message processing")
	ErrRateLimited       = errors.New("rate limited")

	// Storage / queue errors
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrQueueUnavailable   = errors.New("job queue unavailable")
)
