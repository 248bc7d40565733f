// Package common defines the sentinel errors shared across the airlock
// components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Workflow errors surfaced verbatim to the boundary for user-facing
	// messaging. All of them are expected, recoverable-by-caller conditions.
	ErrPermissionDenied       = errors.New("permission denied")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateFile          = errors.New("duplicate file")
	ErrStaleContent           = errors.New("stale content")
	ErrConfigValidation       = errors.New("config validation failed")

	// ErrConsistency marks a violated internal invariant, e.g. two active
	// requests for the same workspace and author. It is never part of the
	// recoverable taxonomy above; boundaries must abort loudly instead of
	// guessing which record is authoritative.
	ErrConsistency = errors.New("internal consistency fault")
)

// PermissionDeniedError names the capability the actor lacked.
// It unwraps to ErrPermissionDenied.
type PermissionDeniedError struct {
	Capability string
}

func (e *PermissionDeniedError) Error() string {
	return "permission denied: requires " + e.Capability
}

func (e *PermissionDeniedError) Unwrap() error { return ErrPermissionDenied }

// ValidationProblem is one structural problem in a bulk-creation document.
// Entry is the index of the offending request entry, or -1 for problems
// with the document itself.
type ValidationProblem struct {
	Entry   int
	Field   string
	Message string
}

func (p ValidationProblem) String() string {
	if p.Entry < 0 {
		return fmt.Sprintf("%s: %s", p.Field, p.Message)
	}
	return fmt.Sprintf("entry %d: %s: %s", p.Entry, p.Field, p.Message)
}

// ConfigValidationError collects every problem found in a bulk-creation
// document instead of failing on the first. It unwraps to ErrConfigValidation.
type ConfigValidationError struct {
	Problems []ValidationProblem
}

func (e *ConfigValidationError) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.String())
	}
	return "config validation failed: " + strings.Join(msgs, "; ")
}

func (e *ConfigValidationError) Unwrap() error { return ErrConfigValidation }
