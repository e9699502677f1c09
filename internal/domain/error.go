package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrDuplicateInvoice   = errors.New("duplicate invoice detected")
	ErrNotProcessing      = errors.New("invoice is not processing")
	ErrNotTerminal        = errors.New("invoice is not in a terminal state")
	ErrScanInProgress     = errors.New("a scan is already running")
	ErrMissingSourceFile  = errors.New("invoice has no source file reference")
	ErrInvalidExecContext = errors.New("invalid query execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrRateLimited        = errors.New("rate limit exceeded")
)
