package domain

import (
	"errors"
	"fmt"
)

// Submit-time rejections. All of these happen before a job row exists and
// are surfaced synchronously to the caller.
var (
	ErrInvalidInput      = errors.New("store url is empty")
	ErrHarvestInProgress = errors.New("a harvest for this store is already running")
)

type InsufficientCreditsError struct {
	Required int
	Balance  int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Required, e.Balance)
}

func (e *InsufficientCreditsError) Shortfall() int {
	return e.Required - e.Balance
}

type InvalidStoreError struct {
	Reason FailureReason
}

func (e *InvalidStoreError) Error() string {
	return fmt.Sprintf("store validation failed: %s", e.Reason)
}
