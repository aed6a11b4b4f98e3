package app

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable means the bucket listing failed; no group list exists and nothing was deleted.
var ErrStorageUnavailable = errors.New("storage unavailable")

// DeletionFailedError reports a group whose prefix delete failed. Objects counts what the storage
// reported as removed before the failure, so the group may be partially deleted.
type DeletionFailedError struct {
	Prefix  string
	Objects int
	Cause   error
}

func (e *DeletionFailedError) Error() string {
	return fmt.Sprintf("deletion failed for %s (%d objects removed): %v", e.Prefix, e.Objects, e.Cause)
}

func (e *DeletionFailedError) Unwrap() error { return e.Cause }

func storageUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
