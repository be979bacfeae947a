package treasure

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("transfer amount must be a positive integer")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownBalance    = errors.New("unknown balance key")
	ErrStoreUnavailable  = errors.New("balance store unavailable")
	ErrLockUnavailable   = errors.New("transfer lock unavailable")
)

// PartialWriteError reports a transfer whose first balance write landed and
// whose second did not. The store is left inconsistent and nothing is rolled
// back; callers see both keys so the damage can be inspected.
type PartialWriteError struct {
	Written string
	Failed  string
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial transfer write: %s updated, %s not updated: %v", e.Written, e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func storeError(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, op, key, err)
}
