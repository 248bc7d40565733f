package repomanager

import (
	"context"
	"database/sql"

	"github.com/trehub/airlock/internal/airlock/repositories/auditlog"
	"github.com/trehub/airlock/internal/airlock/repositories/requests"
	"github.com/trehub/airlock/internal/dbx"
)

// InMemoryRepositoryManager vends the reference in-memory repositories. It
// ignores the DBTX argument; callers pass a nil handle.
type InMemoryRepositoryManager struct {
	requests *requests.InMemoryRepository
	auditLog *auditlog.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		requests: requests.NewInMemoryRepository(),
		auditLog: auditlog.NewInMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Requests(dbx.DBTX) requests.Repository {
	return m.requests
}

func (m *InMemoryRepositoryManager) AuditLog(dbx.DBTX) auditlog.Repository {
	return m.auditLog
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}
