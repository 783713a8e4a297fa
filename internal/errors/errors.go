// Package errors provides centralized error definitions and error handling
// utilities for the phyloflow codebase. It defines domain-specific errors,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures from specific subsystems:
//   - StageError: an external tool invocation failed or produced no output
//   - LayoutError: the on-disk stage layout does not match expectations
//   - ValidationError: invalid run parameters
//
// Sentinel errors represent common error conditions and can be matched with
// errors.Is:
//
//	if errors.Is(err, errors.ErrMissingOutput) { ... }
//
//	var stageErr *errors.StageError
//	if errors.As(err, &stageErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Pipeline-related sentinel errors
var (
	// ErrMissingTool indicates that a required external tool is not installed.
	ErrMissingTool = New("required tool not found")
	// ErrInvalidParameters indicates that run parameters failed validation.
	ErrInvalidParameters = New("invalid parameters")
	// ErrStageFailed indicates that an external tool exited non-zero.
	ErrStageFailed = New("stage execution failed")
	// ErrMissingOutput indicates that a tool exited cleanly but its expected
	// output file is absent.
	ErrMissingOutput = New("expected output missing")
	// ErrLayoutMismatch indicates that a prior stage's output directory or
	// filename pattern was not found where the layout requires it.
	ErrLayoutMismatch = New("output layout mismatch")
	// ErrUnitTimeout indicates that a unit of work exceeded its time budget
	// and was killed.
	ErrUnitTimeout = New("unit timed out")
	// ErrNoSharedLoci indicates that no locus met the shared threshold.
	ErrNoSharedLoci = New("no loci meet the shared threshold")
)

// StageError represents a failure while executing one unit of work within a
// pipeline stage.
//
// Example:
//
//	err := errors.NewStageError("alignment", "10001at4890", ErrStageFailed)
//	err = err.WithStderr(tail)
type StageError struct {
	Stage  string
	Unit   string // species or locus, empty for whole-stage units
	Stderr string // captured stderr tail from the tool
	cause  error
}

// NewStageError creates a new StageError for the given stage and unit.
func NewStageError(stage, unit string, cause error) *StageError {
	return &StageError{Stage: stage, Unit: unit, cause: cause}
}

// WithStderr attaches the tail of the tool's stderr to the error context.
func (e *StageError) WithStderr(stderr string) *StageError {
	e.Stderr = strings.TrimSpace(stderr)
	return e
}

// Error returns the formatted error message.
func (e *StageError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("stage=%s", e.Stage))
	if e.Unit != "" {
		parts = append(parts, fmt.Sprintf("unit=%s", e.Unit))
	}

	msg := fmt.Sprintf("stage error [%s]: %v", strings.Join(parts, ", "), e.cause)
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s\ntool output: %s", msg, e.Stderr)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *StageError) Is(target error) bool {
	if _, ok := target.(*StageError); ok {
		return true
	}
	return errors.Is(e.cause, target)
}

// LayoutError represents a mismatch between the expected on-disk stage layout
// and what is actually present. It signals that stages were run out of order,
// that the output directory changed between invocations, or that files were
// renamed by hand.
type LayoutError struct {
	Path    string // the path or filename that was inspected
	Pattern string // the expected pattern or suffix
	cause   error
}

// NewLayoutError creates a new LayoutError.
func NewLayoutError(path, pattern string) *LayoutError {
	return &LayoutError{Path: path, Pattern: pattern, cause: ErrLayoutMismatch}
}

// WithCause replaces the default ErrLayoutMismatch cause.
func (e *LayoutError) WithCause(cause error) *LayoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *LayoutError) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("layout error [path=%s, expected=%s]: %v", e.Path, e.Pattern, e.cause)
	}
	return fmt.Sprintf("layout error [path=%s]: %v", e.Path, e.cause)
}

// Unwrap returns the underlying error.
func (e *LayoutError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *LayoutError) Is(target error) bool {
	if _, ok := target.(*LayoutError); ok {
		return true
	}
	return errors.Is(e.cause, target)
}

// ValidationError represents invalid run parameters. Validation failures are
// reported before any subprocess is spawned.
//
// Example:
//
//	err := errors.NewValidationError("shared threshold must be between 0 and 100")
//	err = err.WithField("shared").WithValue(142.0)
type ValidationError struct {
	Field   string
	Value   any
	message string
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{message: message, cause: ErrInvalidParameters}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	return errors.Is(e.cause, target)
}

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to create stage directory")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "failed to read model report for %s", locus)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
