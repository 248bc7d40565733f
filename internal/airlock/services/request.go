package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/trehub/airlock/internal/airlock/audit"
	"github.com/trehub/airlock/internal/airlock/consensus"
	"github.com/trehub/airlock/internal/airlock/contentid"
	"github.com/trehub/airlock/internal/airlock/models"
	"github.com/trehub/airlock/internal/airlock/policy"
	"github.com/trehub/airlock/internal/airlock/releasestore"
	"github.com/trehub/airlock/internal/airlock/repositories/repomanager"
	"github.com/trehub/airlock/internal/airlock/workspace"
	"github.com/trehub/airlock/internal/common"
	"github.com/trehub/airlock/internal/dbx"
	"github.com/trehub/airlock/internal/identifier"
	"github.com/trehub/airlock/internal/logging"
)

// RequestService is the request lifecycle state machine. Every operation
// validates the actor against the permission gate, validates the transition
// against the current status, applies it and appends the audit entry — all
// in one atomic unit.
type RequestService struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	policy    consensus.Policy
	workspace workspace.Store
	releases  releasestore.Store
	logger    logging.Logger
}

func NewRequestService(db *sql.DB, rm repomanager.RepositoryManager, p consensus.Policy,
	ws workspace.Store, rs releasestore.Store, logger logging.Logger) *RequestService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &RequestService{db: db, rm: rm, policy: p, workspace: ws, releases: rs, logger: logger}
}

// Create opens a new PENDING request for actor in the workspace. The actor
// needs an explicit create grant; the output-checker flag is not enough.
// At most one active request may exist per (workspace, author).
func (s *RequestService) Create(ctx context.Context, actor policy.Actor, workspaceName string) (*models.ReleaseRequest, error) {
	if err := policy.Check(actor, policy.ActionCreateRequest, workspaceName, ""); err != nil {
		return nil, err
	}

	req := &models.ReleaseRequest{
		ID:        identifier.New(),
		Workspace: workspaceName,
		Author:    actor.Username,
		Status:    models.StatusPending,
		CreatedAt: nowUTC(),
	}

	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)

		active, err := repo.FindActive(ctx, workspaceName, actor.Username)
		if err != nil {
			return err
		}
		if len(active) > 1 {
			return fmt.Errorf("%w: found %d active requests for %s/%s",
				common.ErrConsistency, len(active), workspaceName, actor.Username)
		}
		if len(active) == 1 {
			return fmt.Errorf("%w: request %s is still active for %s/%s",
				common.ErrInvalidStateTransition, active[0].ID, workspaceName, actor.Username)
		}

		if err := repo.Create(ctx, req); err != nil {
			return err
		}
		return s.rm.AuditLog(tx).Append(ctx, newEvent(audit.EventRequestCreate, actor, req, "", nil))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "request created", "request", req.ID, "workspace", workspaceName, "author", actor.Username)
	return req, nil
}

// AddFile resolves the workspace file's content identity and attaches it to
// the named group, creating the group on first use. The relative path must
// be unique across all groups of the request.
func (s *RequestService) AddFile(ctx context.Context, actor policy.Actor, requestID, groupName, relPath string,
	kind models.FileKind, prov models.Provenance) (*models.RequestFile, error) {

	var file *models.RequestFile
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)

		req, err := repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if err := policy.Check(actor, policy.ActionAddFile, req.Workspace, req.Author); err != nil {
			return err
		}
		if req.Status != models.StatusPending {
			return fmt.Errorf("%w: cannot add files to a %s request", common.ErrInvalidStateTransition, req.Status)
		}
		if req.FindFile(relPath) != nil {
			return fmt.Errorf("%w: %s", common.ErrDuplicateFile, relPath)
		}

		data, meta, err := s.workspace.Read(ctx, req.Workspace, relPath)
		if err != nil {
			return err
		}
		if prov.SizeBytes == 0 {
			prov.SizeBytes = meta.SizeBytes
		}

		group := req.Group(groupName)
		if group == nil {
			group = &models.FileGroup{ID: identifier.New(), RequestID: req.ID, Name: groupName}
			if err := repo.AddGroup(ctx, group); err != nil {
				return err
			}
		}

		file = &models.RequestFile{
			ID:         identifier.New(),
			GroupID:    group.ID,
			RelPath:    relPath,
			Kind:       kind,
			ContentID:  contentid.ResolveBytes(data),
			Provenance: prov,
		}
		if err := repo.AddFile(ctx, file); err != nil {
			return err
		}

		return s.rm.AuditLog(tx).Append(ctx, newEvent(audit.EventFileAdd, actor, req, relPath, map[string]string{
			"group":      groupName,
			"kind":       string(kind),
			"content_id": file.ContentID,
		}))
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// Submit moves a PENDING request with at least one output file to SUBMITTED
// and starts the next review turn.
func (s *RequestService) Submit(ctx context.Context, actor policy.Actor, requestID string) error {
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)

		req, err := repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if err := policy.Check(actor, policy.ActionSubmit, req.Workspace, req.Author); err != nil {
			return err
		}
		if req.Status != models.StatusPending {
			return fmt.Errorf("%w: cannot submit a %s request", common.ErrInvalidStateTransition, req.Status)
		}
		if len(req.OutputFiles()) == 0 {
			return fmt.Errorf("%w: a request needs at least one output file to be submitted", common.ErrInvalidStateTransition)
		}

		turn := req.Turn + 1
		if err := repo.UpdateStatus(ctx, req.ID, models.StatusSubmitted, turn); err != nil {
			return err
		}
		return s.rm.AuditLog(tx).Append(ctx, newEvent(audit.EventRequestSubmit, actor, req, "", map[string]string{
			"turn": strconv.Itoa(turn),
		}))
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "request submitted", "request", requestID)
	return nil
}

// ReviewFile records (or updates, within the current turn) the reviewer's
// verdict on an output file, then reduces the request-level outcome: once
// every output file has a terminal per-turn verdict the request moves to
// APPROVED, or back to PENDING when changes were requested. The resulting
// status is returned.
func (s *RequestService) ReviewFile(ctx context.Context, actor policy.Actor, requestID, relPath string,
	verdict models.Verdict) (models.Status, error) {

	var status models.Status
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)
		ledger := s.rm.AuditLog(tx)

		req, err := repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if err := policy.Check(actor, policy.ActionReviewFile, req.Workspace, req.Author); err != nil {
			return err
		}
		if req.Status != models.StatusSubmitted {
			return fmt.Errorf("%w: cannot review a %s request", common.ErrInvalidStateTransition, req.Status)
		}

		file := req.FindFile(relPath)
		if file == nil {
			return fmt.Errorf("file %s: %w", relPath, common.ErrNotFound)
		}
		if file.Kind != models.KindOutput {
			return fmt.Errorf("%w: supporting files are not reviewed", common.ErrInvalidStateTransition)
		}

		now := nowUTC()
		review := &models.FileReview{
			FileID:    file.ID,
			Reviewer:  actor.Username,
			Turn:      req.Turn,
			Verdict:   verdict,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.UpsertReview(ctx, review); err != nil {
			return err
		}
		if err := ledger.Append(ctx, newEvent(audit.EventFileReview, actor, req, relPath, map[string]string{
			"verdict": string(verdict),
			"turn":    strconv.Itoa(req.Turn),
		})); err != nil {
			return err
		}

		// Reduce consensus over the aggregate including the new verdict.
		s.applyReview(req, review)
		status = req.Status

		switch s.policy.RequestOutcome(req) {
		case consensus.RequestApproved:
			status = models.StatusApproved
			if err := repo.UpdateStatus(ctx, req.ID, status, req.Turn); err != nil {
				return err
			}
			return ledger.Append(ctx, newEvent(audit.EventRequestApprove, actor, req, "", map[string]string{
				"turn": strconv.Itoa(req.Turn),
			}))
		case consensus.RequestChangesRequested:
			status = models.StatusPending
			if err := repo.UpdateStatus(ctx, req.ID, status, req.Turn); err != nil {
				return err
			}
			return ledger.Append(ctx, newEvent(audit.EventRequestChanges, actor, req, "", map[string]string{
				"turn": strconv.Itoa(req.Turn),
			}))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info(ctx, "file reviewed", "request", requestID, "path", relPath, "verdict", string(verdict), "status", string(status))
	return status, nil
}

// applyReview merges the verdict into the in-memory aggregate the same way
// UpsertReview merged it into storage.
func (s *RequestService) applyReview(req *models.ReleaseRequest, review *models.FileReview) {
	file := req.FindFileByID(review.FileID)
	if file == nil {
		return
	}
	for _, existing := range file.Reviews {
		if existing.Reviewer == review.Reviewer && existing.Turn == review.Turn {
			existing.Verdict = review.Verdict
			existing.UpdatedAt = review.UpdatedAt
			return
		}
	}
	file.Reviews = append(file.Reviews, review)
}

// Reject terminally rejects a SUBMITTED or APPROVED request, e.g. on a
// policy violation found late.
func (s *RequestService) Reject(ctx context.Context, actor policy.Actor, requestID string) error {
	return s.terminate(ctx, actor, requestID, policy.ActionReject, models.StatusRejected,
		audit.EventRequestRejected, models.StatusSubmitted, models.StatusApproved)
}

// Withdraw lets the author terminally withdraw their PENDING or SUBMITTED
// request.
func (s *RequestService) Withdraw(ctx context.Context, actor policy.Actor, requestID string) error {
	return s.terminate(ctx, actor, requestID, policy.ActionWithdraw, models.StatusWithdrawn,
		audit.EventRequestWithdraw, models.StatusPending, models.StatusSubmitted)
}

func (s *RequestService) terminate(ctx context.Context, actor policy.Actor, requestID string,
	action policy.Action, to models.Status, kind audit.EventKind, from ...models.Status) error {

	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)

		req, err := repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if err := policy.Check(actor, action, req.Workspace, req.Author); err != nil {
			return err
		}
		allowed := false
		for _, st := range from {
			if req.Status == st {
				allowed = true
			}
		}
		if !allowed {
			return fmt.Errorf("%w: cannot move a %s request to %s", common.ErrInvalidStateTransition, req.Status, to)
		}

		if err := repo.UpdateStatus(ctx, req.ID, to, req.Turn); err != nil {
			return err
		}
		return s.rm.AuditLog(tx).Append(ctx, newEvent(kind, actor, req, "", nil))
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "request closed", "request", requestID, "status", string(to))
	return nil
}

// ReleaseFiles releases every output file of an APPROVED request: each
// file's workspace bytes are re-read and must still match the pinned
// content identifier; matching bytes are copied to the destination store and
// stamped released-by/released-at. Once all output files are released the
// request becomes RELEASED, which is terminal.
func (s *RequestService) ReleaseFiles(ctx context.Context, actor policy.Actor, requestID string) error {
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)
		ledger := s.rm.AuditLog(tx)

		req, err := repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		if err := policy.Check(actor, policy.ActionRelease, req.Workspace, req.Author); err != nil {
			return err
		}
		if req.Status != models.StatusApproved {
			return fmt.Errorf("%w: cannot release a %s request", common.ErrInvalidStateTransition, req.Status)
		}

		// Verify every output file against its pinned content identifier
		// before the first destination write. The destination store is
		// outside the transaction, so a stale file discovered mid-loop
		// would otherwise leave already-written bytes with no audit trail.
		type verified struct {
			file *models.RequestFile
			data []byte
		}
		var pending []verified
		for _, file := range req.OutputFiles() {
			if file.Released() {
				continue
			}
			data, _, err := s.workspace.Read(ctx, req.Workspace, file.RelPath)
			if err != nil {
				return err
			}
			if got := contentid.ResolveBytes(data); got != file.ContentID {
				return fmt.Errorf("%w: %s changed since it was added (reviewed %s, found %s)",
					common.ErrStaleContent, file.RelPath, file.ContentID, got)
			}
			pending = append(pending, verified{file: file, data: data})
		}

		now := nowUTC()
		for _, v := range pending {
			key := releasestore.Key(req.Workspace, v.file.ContentID, v.file.RelPath)
			if err := s.releases.Put(ctx, key, v.data); err != nil {
				return fmt.Errorf("store released file %s: %w", v.file.RelPath, err)
			}
			if err := repo.MarkFileReleased(ctx, v.file.ID, actor.Username, now); err != nil {
				return err
			}
			if err := ledger.Append(ctx, newEvent(audit.EventFileRelease, actor, req, v.file.RelPath, map[string]string{
				"key": key,
			})); err != nil {
				return err
			}
		}

		if err := repo.UpdateStatus(ctx, req.ID, models.StatusReleased, req.Turn); err != nil {
			return err
		}
		return ledger.Append(ctx, newEvent(audit.EventRequestRelease, actor, req, "", nil))
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "request released", "request", requestID, "by", actor.Username)
	return nil
}

// AddComment attaches a comment to a file group. Internal comments are
// reviewer-only deliberation; the author can neither write nor read them.
func (s *RequestService) AddComment(ctx context.Context, actor policy.Actor, requestID, groupName, body string,
	visibility models.Visibility) (*models.Comment, error) {

	var comment *models.Comment
	err := withTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Requests(tx)

		req, err := repo.GetByID(ctx, requestID)
		if err != nil {
			return err
		}
		action := policy.ActionComment
		if visibility == models.VisibilityInternal {
			action = policy.ActionCommentInternal
		}
		if err := policy.Check(actor, action, req.Workspace, req.Author); err != nil {
			return err
		}
		if req.Status.IsTerminal() {
			return fmt.Errorf("%w: cannot comment on a %s request", common.ErrInvalidStateTransition, req.Status)
		}

		group := req.Group(groupName)
		if group == nil {
			return fmt.Errorf("group %s: %w", groupName, common.ErrNotFound)
		}

		comment = &models.Comment{
			ID:         identifier.New(),
			GroupID:    group.ID,
			Author:     actor.Username,
			Body:       body,
			Visibility: visibility,
			CreatedAt:  nowUTC(),
		}
		if err := repo.AddComment(ctx, comment); err != nil {
			return err
		}
		return s.rm.AuditLog(tx).Append(ctx, newEvent(audit.EventCommentAdd, actor, req, "", map[string]string{
			"group":      groupName,
			"visibility": string(visibility),
		}))
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// Get loads a request for viewing. Internal comments are stripped for
// viewers without the output-checker capability, and for the request author
// regardless of capability: a checker viewing their own request is an
// author here, same as for review and comment writes.
func (s *RequestService) Get(ctx context.Context, actor policy.Actor, requestID string) (*models.ReleaseRequest, error) {
	req, err := s.rm.Requests(s.readHandle()).GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check(actor, policy.ActionView, req.Workspace, req.Author); err != nil {
		return nil, err
	}

	if actor.Username == req.Author || !actor.OutputChecker {
		for _, g := range req.Groups {
			visible := g.Comments[:0]
			for _, c := range g.Comments {
				if c.Visibility == models.VisibilityPublic {
					visible = append(visible, c)
				}
			}
			g.Comments = visible
		}
	}
	return req, nil
}

// ListByWorkspace returns the workspace's request rows, newest first.
func (s *RequestService) ListByWorkspace(ctx context.Context, actor policy.Actor, workspaceName string) ([]*models.ReleaseRequest, error) {
	if err := policy.Check(actor, policy.ActionView, workspaceName, ""); err != nil {
		return nil, err
	}
	return s.rm.Requests(s.readHandle()).ListByWorkspace(ctx, workspaceName)
}

// ListByAuthor returns the author's request rows across workspaces, newest
// first. Users may list their own; checkers may list anyone's.
func (s *RequestService) ListByAuthor(ctx context.Context, actor policy.Actor, author string) ([]*models.ReleaseRequest, error) {
	if actor.Username != author && !actor.OutputChecker {
		return nil, &common.PermissionDeniedError{Capability: "output-checker capability to list other users' requests"}
	}
	return s.rm.Requests(s.readHandle()).ListByAuthor(ctx, author)
}

// readHandle returns the non-transactional handle for read-only operations.
func (s *RequestService) readHandle() dbx.DBTX {
	if s.db == nil {
		return nil
	}
	return s.db
}
