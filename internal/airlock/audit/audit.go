// Package audit defines the append-only ledger entries recording every
// policy-relevant action. Entries reference requests and files by identifier
// only, so deleting a request never breaks audit history.
package audit

import (
	"fmt"
	"time"

	"github.com/trehub/airlock/internal/common"
)

// EventKind is the stored name of a domain event. These strings are
// wire/storage names; renaming a Go constant must not change them.
type EventKind string

const (
	EventRequestCreate   EventKind = "request_create"
	EventFileAdd         EventKind = "file_add"
	EventRequestSubmit   EventKind = "request_submit"
	EventFileReview      EventKind = "file_review"
	EventRequestApprove  EventKind = "request_approve"
	EventRequestChanges  EventKind = "request_changes"
	EventRequestRejected EventKind = "request_rejected"
	EventRequestWithdraw EventKind = "request_withdraw"
	EventFileRelease     EventKind = "file_release"
	EventRequestRelease  EventKind = "request_release"
	EventCommentAdd      EventKind = "comment_add"
	EventProvenanceSet   EventKind = "provenance_update"
	EventContentBackfill EventKind = "content_id_backfill"
)

// ParseEventKind maps a storage value to an EventKind. "request_reject" is
// the pre-rename storage name of request_changes (written before the
// terminal rejection event existed) and normalizes to it.
func ParseEventKind(s string) (EventKind, error) {
	switch EventKind(s) {
	case EventRequestCreate, EventFileAdd, EventRequestSubmit, EventFileReview,
		EventRequestApprove, EventRequestChanges, EventRequestRejected,
		EventRequestWithdraw, EventFileRelease, EventRequestRelease,
		EventCommentAdd, EventProvenanceSet, EventContentBackfill:
		return EventKind(s), nil
	case "request_reject":
		return EventRequestChanges, nil
	}
	return "", fmt.Errorf("%w: unknown audit event kind %q", common.ErrConsistency, s)
}

// Entry is one immutable ledger record. Once written it is never mutated,
// with the single exception of the Hidden flag, set when a later corrective
// action supersedes the entry. Hidden entries are excluded from default
// queries but retained for compliance replay.
type Entry struct {
	ID        string
	Kind      EventKind
	User      string
	Workspace string
	RequestID string
	Path      string
	Extra     map[string]string
	Hidden    bool
	CreatedAt time.Time
}

// Filter selects ledger entries. Zero-valued fields are not applied;
// non-zero fields are ANDed. Results are ordered most-recent-first.
type Filter struct {
	User          string
	Workspace     string
	RequestID     string
	IncludeHidden bool
}

// Matches reports whether e passes the filter. Shared by the in-memory
// adapter and tests; the Postgres adapter applies the same logic in SQL.
func (f Filter) Matches(e *Entry) bool {
	if f.User != "" && e.User != f.User {
		return false
	}
	if f.Workspace != "" && e.Workspace != f.Workspace {
		return false
	}
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if e.Hidden && !f.IncludeHidden {
		return false
	}
	return true
}
