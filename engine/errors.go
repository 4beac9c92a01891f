/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every operation fails fast with one of six kinds; the API layer maps
  kinds to transport status codes and nothing else.

ERROR KINDS:
  validation   - missing/malformed input (400)
  not_found    - referenced entity absent (404)
  conflict     - overlapping nights, duplicate review/wishlist entry (409)
  state        - invalid lifecycle transition (400)
  unauthorized - actor may not perform the operation (403)
  internal     - storage/transaction failure (500)

USAGE:
  Structured errors unwrap to a sentinel, so callers can branch on kind:

    if errors.Is(err, engine.ErrConflict) {
        var conflict *engine.ConflictError
        errors.As(err, &conflict) // which nights?
    }

  Stores return the wrapped sentinels below (ErrNightTaken, ...) so a
  constraint violation detected by the database surfaces with the same
  kind as one detected by a pre-check.

SEE ALSO:
  - api/handlers.go: writeError maps kinds to HTTP statuses
*/
package engine

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrState        = errors.New("invalid state transition")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

// Store-level sentinels. Each carries its kind.
var (
	// ErrNightTaken is returned by stores when a night is already held by a
	// non-cancelled booking of the same property.
	ErrNightTaken = fmt.Errorf("%w: night already booked", ErrConflict)

	// ErrDuplicateIdempotencyKey is returned when a ledger entry with the same
	// idempotency key already exists.
	ErrDuplicateIdempotencyKey = fmt.Errorf("%w: duplicate idempotency key", ErrConflict)

	ErrDuplicateReview   = fmt.Errorf("%w: review already exists for booking", ErrConflict)
	ErrDuplicateWishlist = fmt.Errorf("%w: already in wishlist", ErrConflict)
)

// =============================================================================
// KINDS
// =============================================================================

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindState        ErrorKind = "state"
	KindUnauthorized ErrorKind = "unauthorized"
	KindInternal     ErrorKind = "internal"
)

// KindOf classifies any error. Unknown errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrState):
		return KindState
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	default:
		return KindInternal
	}
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "property", "booking", "review", "wishlist item"
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a uniqueness violation. Nights is set for booking overlaps.
type ConflictError struct {
	Reason string
	Nights []Night
	Err    error
}

func (e *ConflictError) Error() string {
	if len(e.Nights) > 0 {
		return fmt.Sprintf("%s: %s", e.Reason, strings.Join(NightStrings(e.Nights), ", "))
	}
	return e.Reason
}

func (e *ConflictError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConflict, e.Err}
	}
	return []error{ErrConflict}
}

// StateError reports an operation that the booking's current status forbids.
type StateError struct {
	Op      string
	ID      string
	Current string
	Message string
}

func (e *StateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("cannot %s %s: current status %s", e.Op, e.ID, e.Current)
}

func (e *StateError) Unwrap() error { return ErrState }

// UnauthorizedError reports an actor mismatch.
type UnauthorizedError struct {
	Actor ActorID
	Op    string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("actor %q is not allowed to %s", e.Actor, e.Op)
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

// InternalError wraps a storage or transaction failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *InternalError) Unwrap() []error { return []error{ErrInternal, e.Err} }

// internal wraps err unless it already carries a client-facing kind.
func internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindInternal {
		return err
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is caused by the caller's input or identity.
func IsClientError(err error) bool {
	k := KindOf(err)
	return k != KindInternal
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
