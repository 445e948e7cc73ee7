package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/logging"
)

// NotFoundError is returned when a referenced call, unit, call type or
// workflow does not exist
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// ValidationError aggregates every problem found in a request
type ValidationError struct {
	err error
}

// NewValidationError wraps one or more problems combined with multierr.
// It returns nil when err is nil.
func NewValidationError(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{err: err}
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems(), "; ")
}

// Problems lists each individual problem
func (e *ValidationError) Problems() []string {
	errs := multierr.Errors(e.err)
	problems := make([]string, 0, len(errs))
	for _, err := range errs {
		problems = append(problems, err.Error())
	}
	return problems
}

// ConflictError is returned when a request is inconsistent with the current
// state of a call or unit
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return e.Reason
}

// PersistenceError hides a data access failure from callers. The wrapped
// error is only reachable through Unwrap.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return "operation failed"
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func conflictf(format string, args ...interface{}) error {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

// persistenceFailure logs err with its context and returns the generic failure
func persistenceFailure(ctx context.Context, op string, err error, keysAndValues ...interface{}) error {
	if isTyped(err) {
		return err
	}
	logging.FromContext(ctx).Errorw("persistence failure",
		append([]interface{}{"op", op, "error", err}, keysAndValues...)...,
	)
	return &PersistenceError{Op: op, Err: err}
}

// Classify passes typed errors through and turns anything else into a
// persistence failure
func Classify(ctx context.Context, op string, err error) error {
	if err == nil || isTyped(err) {
		return err
	}
	return persistenceFailure(ctx, op, err)
}

func isTyped(err error) bool {
	var (
		nf *NotFoundError
		ve *ValidationError
		ce *ConflictError
		pe *PersistenceError
	)
	return errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &pe)
}

// LookupErr maps a store lookup failure on entity id
func LookupErr(ctx context.Context, entity, id string, err error) error {
	if errors.Is(err, databases.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return persistenceFailure(ctx, "load "+entity, err, "id", id)
}
