package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrRateLimited      = errors.New("rate limited")
	ErrLockHeld         = errors.New("lock already held")
	ErrTooEarly         = errors.New("scheduled before pool deadline")
	ErrTxSuperseded     = errors.New("transaction superseded by higher-priority transaction")
	ErrUnsupportedToken = errors.New("token not yet handled")
)

// InvariantError marks a data-shape violation that retrying will not fix on
// its own. It is still returned like any other error so the job scheduler
// keeps its bounded retry policy.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: invariant violated: %s", e.Op, e.Detail)
}

// Invariant builds an InvariantError with a formatted detail.
func Invariant(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err wraps an InvariantError or an unsupported token.
func IsFatal(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie) || errors.Is(err, ErrUnsupportedToken)
}
