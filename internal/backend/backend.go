// Package backend provides the storage operators that persist secret
// records across the supported backend kinds.
package backend

import (
	"context"
	"fmt"

	"github.com/credself/credstore/internal/models"
)

// Operator is the uniform contract every storage backend implements for
// one record type. Read returns (nil, nil) when the backend holds no
// record for the user; absence is a normal outcome, not an error.
// Connectivity and protocol failures are returned as *OperationalError.
//
// Operators are long-lived, shared between request goroutines, and hold
// no per-call mutable state.
type Operator[R any] interface {
	// Kind identifies which backend this operator serves.
	Kind() models.BackendKind
	// NeedsGUID reports whether Read/Write/Clear require the user's
	// surrogate identifier. Operators indexing by user handle return false.
	NeedsGUID() bool
	// Read fetches the user's record, or (nil, nil) when none is stored.
	Read(ctx context.Context, user, guid string) (*R, error)
	// Write stores the record, replacing any previous one.
	Write(ctx context.Context, user, guid string, record R) error
	// Clear removes the user's record. Clearing an empty backend succeeds.
	Clear(ctx context.Context, user, guid string) error
}

// Sourced is implemented by records that track which backend they were
// read from.
type Sourced interface {
	SetSource(kind models.BackendKind)
}

// OperationalError marks a backend connectivity or protocol failure, as
// opposed to absence (nil record) or caller-input problems. The
// orchestrator logs these and keeps scanning or accounting.
type OperationalError struct {
	// Backend is the failing backend kind.
	Backend models.BackendKind
	// Op names the failed operation ("read", "write", "clear", "resolve guid").
	Op string
	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *OperationalError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying failure.
func (e *OperationalError) Unwrap() error { return e.Err }

// operational wraps err as an OperationalError for the given backend and op.
func operational(kind models.BackendKind, op string, err error) error {
	return &OperationalError{Backend: kind, Op: op, Err: err}
}
