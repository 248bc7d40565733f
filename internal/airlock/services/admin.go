package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trehub/airlock/internal/airlock/audit"
	"github.com/trehub/airlock/internal/airlock/bulkconfig"
	"github.com/trehub/airlock/internal/airlock/contentid"
	"github.com/trehub/airlock/internal/airlock/models"
	"github.com/trehub/airlock/internal/airlock/policy"
	"github.com/trehub/airlock/internal/airlock/repositories/repomanager"
	"github.com/trehub/airlock/internal/airlock/workspace"
	"github.com/trehub/airlock/internal/common"
	"github.com/trehub/airlock/internal/dbx"
	"github.com/trehub/airlock/internal/logging"
)

// AdminService carries the maintenance operations consumed by external
// tooling: content-identifier backfill, provenance reimport, and validation
// of bulk request-creation documents.
type AdminService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	workspace workspace.Store
	logger    logging.Logger
}

func NewAdminService(db *sql.DB, rm repomanager.RepositoryManager, ws workspace.Store, logger logging.Logger) *AdminService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AdminService{db: db, rm: rm, workspace: ws, logger: logger}
}

// BackfillContentIDs re-derives the content identifier of every file that is
// missing one, reading the current workspace copy. Returns the number of
// files updated. Files whose workspace copy is gone are skipped and logged.
func (s *AdminService) BackfillContentIDs(ctx context.Context, actor policy.Actor) (int, error) {
	updated := 0
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)
		ledger := s.rm.AuditLog(tx)

		candidates, err := repo.FilesMissingContentID(ctx)
		if err != nil {
			return err
		}

		for _, c := range candidates {
			data, _, err := s.workspace.Read(ctx, c.Workspace, c.RelPath)
			if err != nil {
				s.logger.Warn(ctx, "backfill skipped, workspace copy unreadable",
					"request", c.RequestID, "path", c.RelPath, "error", err.Error())
				continue
			}
			id := contentid.ResolveBytes(data)
			if err := repo.UpdateFileContentID(ctx, c.FileID, id); err != nil {
				return err
			}
			e := newEvent(audit.EventContentBackfill, actor, nil, c.RelPath, map[string]string{"content_id": id})
			e.Workspace = c.Workspace
			e.RequestID = c.RequestID
			if err := ledger.Append(ctx, e); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "content identifiers backfilled", "updated", updated)
	return updated, nil
}

// ReimportProvenance replaces the provenance metadata of a request's files
// from a manifest keyed by relative path. This is the only path allowed to
// overwrite provenance; paths absent from the request are reported.
func (s *AdminService) ReimportProvenance(ctx context.Context, actor policy.Actor, requestID string,
	manifest map[string]models.Provenance) error {

	return withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)
		ledger := s.rm.AuditLog(tx)

		req, err := repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}

		for relPath, prov := range manifest {
			file := req.FindFile(relPath)
			if file == nil {
				return fmt.Errorf("manifest entry %s: %w", relPath, common.ErrNotFound)
			}
			if err := repo.UpdateFileProvenance(ctx, file.ID, prov); err != nil {
				return err
			}
			if err := ledger.Append(ctx, newEvent(audit.EventProvenanceSet, actor, req, relPath, map[string]string{
				"source_commit": prov.SourceCommit,
				"repository":    prov.Repository,
				"job_id":        prov.JobID,
			})); err != nil {
				return err
			}
		}
		return nil
	})
}

// ValidateBulkConfig checks a bulk request-creation document against the
// schema and reports every structural problem. It applies no change.
func (s *AdminService) ValidateBulkConfig(_ context.Context, doc []byte) error {
	_, err := bulkconfig.Parse(doc)
	return err
}
