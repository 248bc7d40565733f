// Package repomanager vends repository implementations bound to a database
// handle, so services can run several repositories inside one transaction by
// passing the same dbx.DBTX to each.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/trehub/airlock/internal/airlock/repositories/auditlog"
	"github.com/trehub/airlock/internal/airlock/repositories/requests"
	"github.com/trehub/airlock/internal/dbx"
)

// RepositoryManager is the persistence port of the workflow engine.
type RepositoryManager interface {
	Requests(db dbx.DBTX) requests.Repository
	AuditLog(db dbx.DBTX) auditlog.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
