package utils

import (
	"errors"
	"fmt"
)

// These errors classify store failures for callers; backing-store errors are
// wrapped with WrapStoreErr so the cause stays inspectable.
var (
	ErrNotFound        = errors.New("session not found")
	ErrConflict        = errors.New("optimistic transaction conflict")
	ErrInvalidArgument = errors.New("invalid argument")
)

// WrapStoreErr marks err as a backing-store failure for the given operation.
func WrapStoreErr(op string, err error) error {
	return fmt.Errorf("store %s: %w", op, err)
}
