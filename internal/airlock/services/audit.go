package services

import (
	"context"
	"database/sql"

	"github.com/trehub/airlock/internal/airlock/audit"
	"github.com/trehub/airlock/internal/airlock/policy"
	"github.com/trehub/airlock/internal/airlock/repositories/repomanager"
	"github.com/trehub/airlock/internal/common"
	"github.com/trehub/airlock/internal/dbx"
	"github.com/trehub/airlock/internal/logging"
)

// AuditService exposes the ledger to boundaries: filtered queries and the
// hide flag for entries superseded by corrective actions.
type AuditService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	logger logging.Logger
}

func NewAuditService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger) *AuditService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuditService{db: db, rm: rm, logger: logger}
}

// Query returns ledger entries matching the filter, most recent first.
// Reads run outside any write transaction. Non-checkers are scoped to their
// own history: an empty user filter defaults to the caller, any other user
// is refused.
func (s *AuditService) Query(ctx context.Context, actor policy.Actor, f audit.Filter) ([]*audit.Entry, error) {
	if !actor.OutputChecker {
		if f.User == "" {
			f.User = actor.Username
		}
		if f.User != actor.Username {
			return nil, &common.PermissionDeniedError{Capability: "output-checker capability to query other users' audit history"}
		}
	}
	var handle dbx.DBTX
	if s.db != nil {
		handle = s.db
	}
	return s.rm.AuditLog(handle).Query(ctx, f)
}

// Hide flags an entry superseded by a corrective action. The entry stays in
// the ledger for compliance replay.
func (s *AuditService) Hide(ctx context.Context, actor policy.Actor, entryID string) error {
	if !actor.OutputChecker {
		return &common.PermissionDeniedError{Capability: "output-checker capability"}
	}
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		return s.rm.AuditLog(tx).Hide(ctx, entryID)
	})
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "audit entry hidden", "entry", entryID, "by", actor.Username)
	return nil
}
