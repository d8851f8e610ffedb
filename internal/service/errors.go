package service

import (
	"errors"
	"fmt"

	"invoice-service/internal/store"
	"invoice-service/internal/validation"
)

// ErrInvalidCredentials is returned by Login for an unknown user or a wrong password
var ErrInvalidCredentials = errors.New("incorrect username or password")

// ValidationError carries every rule the request failed
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Violations.Error())
}

// First returns the first violation message
func (e *ValidationError) First() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	return e.Violations[0].Message
}

// ReferenceError reports a reference to an entity that does not exist.
// UserID, when set, is the user the failing order was placed for.
type ReferenceError struct {
	Entity string
	ID     int64
	UserID int64
}

func (e *ReferenceError) Error() string {
	if e.UserID != 0 && e.Entity != "user" {
		return fmt.Sprintf("%s %d does not exist or is inactive (user %d)", e.Entity, e.ID, e.UserID)
	}
	return fmt.Sprintf("%s %d does not exist", e.Entity, e.ID)
}

// InsufficientStockError reports the stock observed when a line could not be filled
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// ConflictError is a concurrent-update race that outlived the retries
type ConflictError struct {
	Op  string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: concurrent update conflict: %v", e.Op, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// StoreError wraps an unexpected persistence failure
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

type DuplicateError struct {
	Entity string
	Field  string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s with this %s already exists", e.Entity, e.Field)
}

// storeErr maps store sentinels to service errors for single-entity operations
func storeErr(op, entity string, id int64, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{Entity: entity, ID: id}
	case errors.Is(err, store.ErrSerialization):
		return &ConflictError{Op: op, Err: err}
	default:
		return &StoreError{Op: op, Err: err}
	}
}
