// Package requests persists the release-request aggregate: the request row
// plus its file groups, files, reviews and comments.
package requests

import (
	"context"
	"time"

	"github.com/trehub/airlock/internal/airlock/models"
)

// BackfillCandidate identifies a file missing a content identifier, with
// enough context to re-read its workspace copy.
type BackfillCandidate struct {
	FileID    string
	RequestID string
	Workspace string
	RelPath   string
}

// Repository is the persistence port for release requests. Implementations
// must surface common.ErrNotFound for unknown identifiers, distinctly from
// other failures. All mutations called within one dbx.WithTx scope are
// applied atomically.
type Repository interface {
	// Create inserts a new request row (no groups yet).
	Create(ctx context.Context, req *models.ReleaseRequest) error

	// GetByID loads the full aggregate.
	GetByID(ctx context.Context, id string) (*models.ReleaseRequest, error)

	// FindActive returns every request for (workspace, author) whose status
	// is active. More than one element is an invariant violation the caller
	// must treat as fatal.
	FindActive(ctx context.Context, workspace, author string) ([]*models.ReleaseRequest, error)

	// ListByWorkspace returns the request rows of a workspace, newest
	// first, without nested groups.
	ListByWorkspace(ctx context.Context, workspace string) ([]*models.ReleaseRequest, error)

	// ListByAuthor returns the author's request rows across all workspaces,
	// newest first, without nested groups.
	ListByAuthor(ctx context.Context, author string) ([]*models.ReleaseRequest, error)

	// UpdateStatus sets status and turn on an existing request.
	UpdateStatus(ctx context.Context, id string, status models.Status, turn int) error

	AddGroup(ctx context.Context, g *models.FileGroup) error
	AddFile(ctx context.Context, f *models.RequestFile) error
	AddComment(ctx context.Context, c *models.Comment) error

	// UpsertReview records a verdict, replacing the reviewer's earlier
	// verdict for the same file and turn if present.
	UpsertReview(ctx context.Context, r *models.FileReview) error

	UpdateFileContentID(ctx context.Context, fileID, contentID string) error
	UpdateFileProvenance(ctx context.Context, fileID string, p models.Provenance) error
	MarkFileReleased(ctx context.Context, fileID, releasedBy string, at time.Time) error

	// FilesMissingContentID lists files whose identifier was never resolved,
	// for the administrative backfill path.
	FilesMissingContentID(ctx context.Context) ([]BackfillCandidate, error)
}
