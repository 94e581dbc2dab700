package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalid          = errors.New("invalid or missing parameters")
	ErrDowngrade        = errors.New("downgrade rejected")
	ErrIdentityMismatch = errors.New("identity mismatch")
)

// DowngradeError is returned when an incoming version is older than the stored one.
type DowngradeError struct {
	Existing time.Time
	Incoming time.Time
}

func (e *DowngradeError) Error() string {
	return fmt.Sprintf("downgrade rejected: incoming last_updated %s is older than stored %s",
		e.Incoming.UTC().Format(time.RFC3339), e.Existing.UTC().Format(time.RFC3339))
}

func (e *DowngradeError) Is(target error) bool {
	return target == ErrDowngrade
}

// Invalid wraps ErrInvalid with a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
