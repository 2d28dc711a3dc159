package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSessionNotFound is returned by admin lookups when a session ID is unknown to the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrEmptySequence is returned when a Sequence is built with fewer than two units.
var ErrEmptySequence = errors.New("sequence requires at least two units")

// ErrStreamClosed is returned by Recv after the consumer closed the stream.
var ErrStreamClosed = errors.New("stream closed")

// ErrorKind classifies failures for callers that only care about the category.
type ErrorKind string

const (
	KindUnknown   ErrorKind = "unknown"
	KindInput     ErrorKind = "input"
	KindConfig    ErrorKind = "config"
	KindExecution ErrorKind = "execution"
	KindPartial   ErrorKind = "partial"
)

type kinded interface {
	Kind() ErrorKind
}

// KindOf returns the category of err, looking through wrapping.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// IsClassified reports whether err already belongs to the taxonomy.
func IsClassified(err error) bool {
	var k kinded
	return errors.As(err, &k)
}

// InputError means the caller handed a unit something it cannot accept.
type InputError struct {
	Unit   string
	Key    string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid input")
	if e.Unit != "" {
		fmt.Fprintf(&sb, " for %s", e.Unit)
	}
	if e.Key != "" {
		fmt.Fprintf(&sb, " (key %q)", e.Key)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	return sb.String()
}

func (e *InputError) Unwrap() error   { return e.Err }
func (e *InputError) Kind() ErrorKind { return KindInput }

// ConfigError means required configuration was missing or malformed.
type ConfigError struct {
	Unit   string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid configuration")
	if e.Unit != "" {
		fmt.Fprintf(&sb, " for %s", e.Unit)
	}
	if e.Field != "" {
		fmt.Fprintf(&sb, " (field %q)", e.Field)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	return sb.String()
}

func (e *ConfigError) Unwrap() error   { return e.Err }
func (e *ConfigError) Kind() ErrorKind { return KindConfig }

// ExecutionError wraps a failure raised while a unit (or its collaborator) ran.
type ExecutionError struct {
	Unit string
	Err  error
}

func (e *ExecutionError) Error() string {
	if e.Unit == "" {
		return fmt.Sprintf("execution failed: %v", e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Unit, e.Err)
}

func (e *ExecutionError) Unwrap() error   { return e.Err }
func (e *ExecutionError) Kind() ErrorKind { return KindExecution }

// Retryable reports whether running the unit again could succeed.
// Cancellation and deadline errors are final.
func (e *ExecutionError) Retryable() bool {
	return !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
}

// BranchFailure names one failed ParallelMap branch.
type BranchFailure struct {
	Key string
	Err error
}

// PartialFailure reports that one or more ParallelMap branches failed.
type PartialFailure struct {
	Unit     string
	Failures []BranchFailure
}

func (e *PartialFailure) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Key, f.Err)
	}
	prefix := "parallel"
	if e.Unit != "" {
		prefix = e.Unit
	}
	return fmt.Sprintf("%s: %d branch(es) failed: %s", prefix, len(e.Failures), strings.Join(parts, "; "))
}

func (e *PartialFailure) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

func (e *PartialFailure) Kind() ErrorKind { return KindPartial }

// Keys returns the names of the failed branches in configuration order.
func (e *PartialFailure) Keys() []string {
	keys := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		keys[i] = f.Key
	}
	return keys
}

// StageError locates a failure inside a Sequence. Its kind is the kind of the
// failure it wraps.
type StageError struct {
	Unit  string
	Stage string
	Index int
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %d (%s): %v", e.Unit, e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Kind() ErrorKind {
	if k := KindOf(e.Err); k != KindUnknown {
		return k
	}
	return KindExecution
}

// ItemFailure names one failed batch element.
type ItemFailure struct {
	Index int
	Err   error
}

// BatchError reports the elements of a batch that failed. Successful
// elements keep their outputs in the result slice.
type BatchError struct {
	Unit     string
	Total    int
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("[%d] %v", f.Index, f.Err)
	}
	return fmt.Sprintf("%s: %d of %d batch item(s) failed: %s", e.Unit, len(e.Failures), e.Total, strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

func (e *BatchError) Kind() ErrorKind { return KindPartial }

// Failed reports whether the element at index i failed.
func (e *BatchError) Failed(i int) error {
	for _, f := range e.Failures {
		if f.Index == i {
			return f.Err
		}
	}
	return nil
}
