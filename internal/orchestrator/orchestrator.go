// Package orchestrator routes secret record reads and writes across the
// configured storage backends: ordered fallback on read, full fan-out
// with success accounting on write and clear.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/credself/credstore/internal/backend"
	"github.com/credself/credstore/internal/models"
	"go.uber.org/zap"
)

// ErrNoBackendConfigured is returned when a write or clear is requested
// but the write-preference list is empty. This is a configuration fault,
// not a partial failure.
var ErrNoBackendConfigured = errors.New("no secret storage backend is configured")

// PartialWriteError reports a fan-out write or clear where some but not
// all configured backends succeeded. The stored copies diverge until the
// failed backends are written again.
type PartialWriteError struct {
	// Op is "write" or "clear".
	Op string
	// Succeeded and Failed list the backends by outcome, in attempt order.
	Succeeded []models.BackendKind
	Failed    []models.BackendKind
	// Errors holds the failure detail per failed backend.
	Errors map[models.BackendKind]error
}

// Error implements the error interface.
func (e *PartialWriteError) Error() string {
	failed := make([]string, 0, len(e.Failed))
	for _, k := range e.Failed {
		failed = append(failed, string(k))
	}
	return fmt.Sprintf("partial %s: %d of %d backends succeeded, failed: %s",
		e.Op, len(e.Succeeded), len(e.Succeeded)+len(e.Failed), strings.Join(failed, ", "))
}

// GuidResolver resolves a user's surrogate identifier. Implemented by
// backend.DirectoryGuidResolver in production.
type GuidResolver interface {
	Resolve(ctx context.Context, user string) (string, error)
}

// Orchestrator coordinates one record type across its configured
// backends. It is safe for concurrent use; per-call state (the resolved
// surrogate identifier) is kept on the stack, never on the receiver.
type Orchestrator[R any] struct {
	operators map[models.BackendKind]backend.Operator[R]
	readPref  []models.BackendKind
	writePref []models.BackendKind
	guids     GuidResolver
	log       *zap.Logger
}

// New builds an Orchestrator from the operator registry and the
// configured preference lists. Preference entries with no registered
// operator are rejected: a typo in configuration must not silently
// shrink the backend set.
func New[R any](
	operators map[models.BackendKind]backend.Operator[R],
	readPref, writePref []models.BackendKind,
	guids GuidResolver,
	log *zap.Logger,
) (*Orchestrator[R], error) {
	for _, k := range append(append([]models.BackendKind{}, readPref...), writePref...) {
		if _, ok := operators[k]; !ok {
			return nil, fmt.Errorf("preference list names backend %q but no operator is registered for it", k)
		}
	}
	return &Orchestrator[R]{
		operators: operators,
		readPref:  append([]models.BackendKind(nil), readPref...),
		writePref: append([]models.BackendKind(nil), writePref...),
		guids:     guids,
		log:       log,
	}, nil
}

// Read tries each read-preference backend in order and returns the first
// record found. Absence in one backend moves on to the next; an
// operational error is logged and also moves on. When every backend is
// absent or failing, Read returns (nil, nil).
func (o *Orchestrator[R]) Read(ctx context.Context, user string) (*R, error) {
	guid, err := o.resolveGUID(ctx, user, o.readPref)
	if err != nil {
		return nil, err
	}

	for _, kind := range o.readPref {
		op := o.operators[kind]
		record, err := op.Read(ctx, user, guid)
		if err != nil {
			o.log.Warn("backend read failed, trying next",
				zap.String("backend", string(kind)),
				zap.String("user", user),
				zap.Error(err))
			continue
		}
		if record == nil {
			continue
		}
		if s, ok := any(record).(backend.Sourced); ok {
			s.SetSource(kind)
		}
		return record, nil
	}
	return nil, nil
}

// backendResult is one backend's outcome within a fan-out.
type backendResult struct {
	kind models.BackendKind
	err  error
}

// Write stores the record in every write-preference backend. All
// backends are attempted regardless of individual failures; the call
// succeeds only when every backend succeeded.
func (o *Orchestrator[R]) Write(ctx context.Context, user string, record R) error {
	return o.fanOut(ctx, user, "write", func(op backend.Operator[R], guid string) error {
		return op.Write(ctx, user, guid, record)
	})
}

// Clear removes the record from every write-preference backend, with
// the same accounting as Write.
func (o *Orchestrator[R]) Clear(ctx context.Context, user string) error {
	return o.fanOut(ctx, user, "clear", func(op backend.Operator[R], guid string) error {
		return op.Clear(ctx, user, guid)
	})
}

func (o *Orchestrator[R]) fanOut(ctx context.Context, user, opName string, apply func(backend.Operator[R], string) error) error {
	if len(o.writePref) == 0 {
		return ErrNoBackendConfigured
	}

	guid, err := o.resolveGUID(ctx, user, o.writePref)
	if err != nil {
		return err
	}

	results := make([]backendResult, 0, len(o.writePref))
	for _, kind := range o.writePref {
		err := apply(o.operators[kind], guid)
		if err != nil {
			o.log.Error("backend "+opName+" failed",
				zap.String("backend", string(kind)),
				zap.String("user", user),
				zap.Error(err))
		}
		results = append(results, backendResult{kind: kind, err: err})
	}

	var succeeded, failed []models.BackendKind
	errsByKind := make(map[models.BackendKind]error)
	for _, r := range results {
		if r.err == nil {
			succeeded = append(succeeded, r.kind)
		} else {
			failed = append(failed, r.kind)
			errsByKind[r.kind] = r.err
		}
	}

	if len(failed) == 0 {
		return nil
	}
	if len(succeeded) == 0 {
		// Total failure: surface the first backend's error directly.
		return fmt.Errorf("%s failed on all %d configured backends: %w", opName, len(failed), errsByKind[failed[0]])
	}
	return &PartialWriteError{
		Op:        opName,
		Succeeded: succeeded,
		Failed:    failed,
		Errors:    errsByKind,
	}
}

// resolveGUID resolves the user's surrogate identifier once per call,
// and only when some backend in the list needs it.
func (o *Orchestrator[R]) resolveGUID(ctx context.Context, user string, prefs []models.BackendKind) (string, error) {
	needed := false
	for _, kind := range prefs {
		if o.operators[kind].NeedsGUID() {
			needed = true
			break
		}
	}
	if !needed {
		return "", nil
	}
	if o.guids == nil {
		return "", errors.New("a configured backend requires a surrogate identifier but no resolver is configured")
	}
	guid, err := o.guids.Resolve(ctx, user)
	if err != nil {
		return "", fmt.Errorf("resolve surrogate identifier for %q: %w", user, err)
	}
	return guid, nil
}
