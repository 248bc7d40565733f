// Package services implements the workflow engine behind the airlock: the
// request lifecycle state machine, the audit query surface, and the
// administrative maintenance operations. Every state-mutating operation runs
// inside one transaction together with the audit entry that records it.
package services

import (
	"context"
	"database/sql"

	"github.com/trehub/airlock/internal/airlock/audit"
	"github.com/trehub/airlock/internal/airlock/models"
	"github.com/trehub/airlock/internal/airlock/policy"
	"github.com/trehub/airlock/internal/dbx"
	"github.com/trehub/airlock/internal/identifier"
)

// withTx runs fn inside a transaction when a SQL handle is present. The
// in-memory manager has no handle; its repositories serialize internally, so
// fn runs directly with a nil DBTX.
func withTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if db == nil {
		return fn(ctx, nil)
	}
	return dbx.WithTx(ctx, db, nil, fn)
}

// newEvent builds a ledger entry for an action on a request.
func newEvent(kind audit.EventKind, actor policy.Actor, req *models.ReleaseRequest, path string, extra map[string]string) *audit.Entry {
	e := &audit.Entry{
		ID:        identifier.New(),
		Kind:      kind,
		User:      actor.Username,
		Path:      path,
		Extra:     extra,
		CreatedAt: nowUTC(),
	}
	if req != nil {
		e.Workspace = req.Workspace
		e.RequestID = req.ID
	}
	return e
}
