package errors

import "errors"

var (
	ErrNotFound = errors.New("external record not found")

	ErrInvalidID = errors.New("invalid external record ID format")

	ErrRunNotFound = errors.New("import run not found")

	ErrLockHeld = errors.New("import already in progress for source")
)
