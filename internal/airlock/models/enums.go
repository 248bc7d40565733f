// Package models defines the persisted entities of the release workflow.
//
// Enum-backed fields carry an explicit storage encoding: the string constants
// below are wire/storage names and must stay stable across code renames.
// Parsers accept the pre-rename values still present in old rows.
package models

import (
	"fmt"

	"github.com/trehub/airlock/internal/common"
)

// Status is the lifecycle state of a release request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
	StatusReleased  Status = "released"
)

// ParseStatus maps a storage value to a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusSubmitted, StatusApproved, StatusRejected, StatusWithdrawn, StatusReleased:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", common.ErrConsistency, s)
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusWithdrawn || s == StatusReleased
}

// IsActive reports whether the request counts against the one-active-request
// invariant for its (workspace, author) pair.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusSubmitted
}

// FileKind distinguishes files proposed for release from contextual ones.
type FileKind string

const (
	// KindOutput is subject to review and, once approved, to release.
	KindOutput FileKind = "output"
	// KindSupporting is included for reviewer context and never released.
	KindSupporting FileKind = "supporting"
)

func ParseFileKind(s string) (FileKind, error) {
	switch FileKind(s) {
	case KindOutput, KindSupporting:
		return FileKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown file kind %q", common.ErrConsistency, s)
}

// Verdict is one reviewer's decision on one output file for one turn.
type Verdict string

const (
	VerdictApproved         Verdict = "approved"
	VerdictChangesRequested Verdict = "changes_requested"
)

// ParseVerdict maps a storage value to a Verdict. "rejected" is the
// pre-rename storage name for changes_requested and is still accepted for
// rows written before the rename migration.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case string(VerdictApproved):
		return VerdictApproved, nil
	case string(VerdictChangesRequested), "rejected":
		return VerdictChangesRequested, nil
	}
	return "", fmt.Errorf("%w: unknown verdict %q", common.ErrConsistency, s)
}

// Visibility controls who can see a group comment.
type Visibility string

const (
	// VisibilityPublic comments are shown to the request author.
	VisibilityPublic Visibility = "public"
	// VisibilityInternal comments are reviewer-only deliberation and are
	// never shown to the author.
	VisibilityInternal Visibility = "internal"
)

func ParseVisibility(s string) (Visibility, error) {
	switch Visibility(s) {
	case VisibilityPublic, VisibilityInternal:
		return Visibility(s), nil
	}
	return "", fmt.Errorf("%w: unknown visibility %q", common.ErrConsistency, s)
}
