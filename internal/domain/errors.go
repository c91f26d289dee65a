package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrInputSchema         = errors.New("input schema")
	ErrImputationUndefined = errors.New("imputation undefined")
	ErrConsistency         = errors.New("consistency fault")
	ErrPersistence         = errors.New("persistence")
)

// InputSchemaError rejects a batch whose shape or content cannot be processed.
type InputSchemaError struct {
	Column string
	Reason string
}

func (e *InputSchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("input schema: %s", e.Reason)
	}
	return fmt.Sprintf("input schema: column %q: %s", e.Column, e.Reason)
}

func (e *InputSchemaError) Is(target error) bool { return target == ErrInputSchema }

// ImputationUndefinedError reports a numeric column with no values to average.
type ImputationUndefinedError struct {
	Column string
}

func (e *ImputationUndefinedError) Error() string {
	return fmt.Sprintf("imputation undefined: column %q has no values in batch", e.Column)
}

func (e *ImputationUndefinedError) Is(target error) bool { return target == ErrImputationUndefined }

// ConsistencyError is raised when a cleaned row's key is absent from its
// dimension lookup. It always indicates a bug, never bad input.
type ConsistencyError struct {
	Dimension string
	Key       string
	Row       int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency fault: row %d: %s key %s not in dimension lookup", e.Row, e.Dimension, e.Key)
}

func (e *ConsistencyError) Is(target error) bool { return target == ErrConsistency }

// PersistenceError wraps a sink failure with the table being written.
type PersistenceError struct {
	Sink  string
	Table string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist table %s to %s: %v", e.Table, e.Sink, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// StageError names the pipeline stage an error originated in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
