package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Feed errors. Each one ends the current poll cycle without touching the store.
var (
	ErrFeedTransport = errors.New("feed transport error")
	ErrFeedStatus    = errors.New("feed returned non-success status")
	ErrFeedMalformed = errors.New("feed body is not valid JSON")
	ErrFeedShape     = errors.New("feed is missing the marker set areas")
)

// ErrTransientValidation marks store rejections that are logged and skipped
// rather than treated as failures.
var ErrTransientValidation = errors.New("transient validation error")

// PersistenceError wraps a repository failure for one town.
type PersistenceError struct {
	Town string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist town %q: %v", e.Town, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransientPersistence reports whether a persistence failure belongs to the
// transient validation class. The message check keeps compatibility with
// stores that report "ValidationException" without a typed error.
func IsTransientPersistence(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTransientValidation) || strings.Contains(err.Error(), "ValidationException")
}
