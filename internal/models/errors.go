package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound unknown hostname, unknown or unpublished slug
	ErrNotFound = errors.New("not found")
	// ErrDomainNotFound hostname has no active domain record
	ErrDomainNotFound = fmt.Errorf("domain %w", ErrNotFound)
	// ErrContentInsufficient merged corpus is below the configured minimum
	ErrContentInsufficient = errors.New("content insufficient")
	// ErrStorage persistence failure during regeneration
	ErrStorage = errors.New("storage error")
	// ErrDuplicatePrimary a parent site already has a primary alias
	ErrDuplicatePrimary = errors.New("parent site already has a primary domain")
	// ErrRegenerationInProgress another regeneration holds the domain lock
	ErrRegenerationInProgress = errors.New("regeneration already in progress")
	// ErrInvalidArgument bad input from the caller
	ErrInvalidArgument = errors.New("invalid argument")
)

// StorageError a regeneration aborted by a persistence failure.
// Written counts pages staged before the failure; none of them are served.
type StorageError struct {
	Domain  string
	Written int
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error for %s after %d pages: %v", e.Domain, e.Written, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}
