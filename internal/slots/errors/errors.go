package errors

import "errors"

var (
	ErrAssignmentNotFound = errors.New("occupant assignment not found")

	ErrDuplicateOccupant = errors.New("occupant already attached to booking")
)
