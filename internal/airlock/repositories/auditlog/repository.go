// Package auditlog persists the append-only audit ledger.
package auditlog

import (
	"context"

	"github.com/trehub/airlock/internal/airlock/audit"
)

// Repository is the persistence port for audit entries. Append must run in
// the same transaction as the state change it records: an audited action
// that is not durably recorded is treated as not having happened.
type Repository interface {
	Append(ctx context.Context, e *audit.Entry) error

	// Query returns entries matching the filter, most recent first.
	Query(ctx context.Context, f audit.Filter) ([]*audit.Entry, error)

	// Hide flags an entry superseded by a corrective action. The entry is
	// never physically deleted.
	Hide(ctx context.Context, id string) error
}
