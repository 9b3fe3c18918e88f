package errors

import "errors"

var (
	ErrNotFound = errors.New("alias link not found")
)
