package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trehub/airlock/internal/airlock/models"
	"github.com/trehub/airlock/internal/common"
	"github.com/trehub/airlock/internal/dbx"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, req *models.ReleaseRequest) error {
	query := `
		INSERT INTO release_requests (id, workspace, author, status, turn, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.Workspace, req.Author, string(req.Status), req.Turn, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ReleaseRequest, error) {
	query := `SELECT id, workspace, author, status, turn, created_at FROM release_requests WHERE id = $1`

	var req models.ReleaseRequest
	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &req.Workspace, &req.Author, &status, &req.Turn, &req.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select request: %w", err)
	}
	if req.Status, err = models.ParseStatus(status); err != nil {
		return nil, err
	}

	if err := r.loadGroups(ctx, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *PostgresRepository) loadGroups(ctx context.Context, req *models.ReleaseRequest) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, request_id, name FROM file_groups WHERE request_id = $1 ORDER BY id`, req.ID)
	if err != nil {
		return fmt.Errorf("select groups: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*models.FileGroup)
	for rows.Next() {
		var g models.FileGroup
		if err := rows.Scan(&g.ID, &g.RequestID, &g.Name); err != nil {
			return err
		}
		req.Groups = append(req.Groups, &g)
		byID[g.ID] = &g
	}
	if err := rows.Err(); err != nil {
		return err
	}

	files, err := r.loadFiles(ctx, req.ID)
	if err != nil {
		return err
	}
	for _, f := range files {
		g, ok := byID[f.GroupID]
		if !ok {
			return fmt.Errorf("%w: file %s references unknown group %s", common.ErrConsistency, f.ID, f.GroupID)
		}
		g.Files = append(g.Files, f)
	}

	return r.loadComments(ctx, req.ID, byID)
}

func (r *PostgresRepository) loadFiles(ctx context.Context, requestID string) ([]*models.RequestFile, error) {
	query := `
		SELECT f.id, f.group_id, f.rel_path, f.kind, f.content_id,
		       f.source_commit, f.source_repository, f.job_id, f.size_bytes,
		       f.generated_at, f.released_at, f.released_by
		FROM request_files f
		JOIN file_groups g ON f.group_id = g.id
		WHERE g.request_id = $1
		ORDER BY f.id
	`
	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("select files: %w", err)
	}
	defer rows.Close()

	var files []*models.RequestFile
	byID := make(map[string]*models.RequestFile)
	for rows.Next() {
		var f models.RequestFile
		var kind string
		var generatedAt, releasedAt sql.NullTime
		if err := rows.Scan(&f.ID, &f.GroupID, &f.RelPath, &kind, &f.ContentID,
			&f.Provenance.SourceCommit, &f.Provenance.Repository, &f.Provenance.JobID,
			&f.Provenance.SizeBytes, &generatedAt, &releasedAt, &f.ReleasedBy); err != nil {
			return nil, err
		}
		if f.Kind, err = models.ParseFileKind(kind); err != nil {
			return nil, err
		}
		if generatedAt.Valid {
			f.Provenance.GeneratedAt = generatedAt.Time
		}
		if releasedAt.Valid {
			at := releasedAt.Time
			f.ReleasedAt = &at
		}
		files = append(files, &f)
		byID[f.ID] = &f
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadReviews(ctx, requestID, byID); err != nil {
		return nil, err
	}
	return files, nil
}

func (r *PostgresRepository) loadReviews(ctx context.Context, requestID string, files map[string]*models.RequestFile) error {
	query := `
		SELECT rv.file_id, rv.reviewer, rv.turn, rv.verdict, rv.created_at, rv.updated_at
		FROM file_reviews rv
		JOIN request_files f ON rv.file_id = f.id
		JOIN file_groups g ON f.group_id = g.id
		WHERE g.request_id = $1
		ORDER BY rv.created_at, rv.reviewer
	`
	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rv models.FileReview
		var verdict string
		if err := rows.Scan(&rv.FileID, &rv.Reviewer, &rv.Turn, &verdict, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
			return err
		}
		if rv.Verdict, err = models.ParseVerdict(verdict); err != nil {
			return err
		}
		f, ok := files[rv.FileID]
		if !ok {
			return fmt.Errorf("%w: review references unknown file %s", common.ErrConsistency, rv.FileID)
		}
		f.Reviews = append(f.Reviews, &rv)
	}
	return rows.Err()
}

func (r *PostgresRepository) loadComments(ctx context.Context, requestID string, groups map[string]*models.FileGroup) error {
	query := `
		SELECT c.id, c.group_id, c.author, c.body, c.visibility, c.created_at
		FROM group_comments c
		JOIN file_groups g ON c.group_id = g.id
		WHERE g.request_id = $1
		ORDER BY c.id
	`
	rows, err := r.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return fmt.Errorf("select comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Comment
		var vis string
		if err := rows.Scan(&c.ID, &c.GroupID, &c.Author, &c.Body, &vis, &c.CreatedAt); err != nil {
			return err
		}
		if c.Visibility, err = models.ParseVisibility(vis); err != nil {
			return err
		}
		g, ok := groups[c.GroupID]
		if !ok {
			return fmt.Errorf("%w: comment references unknown group %s", common.ErrConsistency, c.GroupID)
		}
		g.Comments = append(g.Comments, &c)
	}
	return rows.Err()
}

func (r *PostgresRepository) FindActive(ctx context.Context, workspace, author string) ([]*models.ReleaseRequest, error) {
	query := `
		SELECT id, workspace, author, status, turn, created_at
		FROM release_requests
		WHERE workspace = $1 AND author = $2 AND status IN ('pending', 'submitted')
		ORDER BY id
	`
	return r.queryRows(ctx, query, workspace, author)
}

func (r *PostgresRepository) ListByWorkspace(ctx context.Context, workspace string) ([]*models.ReleaseRequest, error) {
	query := `
		SELECT id, workspace, author, status, turn, created_at
		FROM release_requests
		WHERE workspace = $1
		ORDER BY id DESC
	`
	return r.queryRows(ctx, query, workspace)
}

func (r *PostgresRepository) ListByAuthor(ctx context.Context, author string) ([]*models.ReleaseRequest, error) {
	query := `
		SELECT id, workspace, author, status, turn, created_at
		FROM release_requests
		WHERE author = $1
		ORDER BY id DESC
	`
	return r.queryRows(ctx, query, author)
}

func (r *PostgresRepository) queryRows(ctx context.Context, query string, args ...any) ([]*models.ReleaseRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select requests: %w", err)
	}
	defer rows.Close()

	var result []*models.ReleaseRequest
	for rows.Next() {
		var req models.ReleaseRequest
		var status string
		if err := rows.Scan(&req.ID, &req.Workspace, &req.Author, &status, &req.Turn, &req.CreatedAt); err != nil {
			return nil, err
		}
		if req.Status, err = models.ParseStatus(status); err != nil {
			return nil, err
		}
		result = append(result, &req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status models.Status, turn int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE release_requests SET status = $2, turn = $3 WHERE id = $1`,
		id, string(status), turn)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return oneRowAffected(res, id)
}

func (r *PostgresRepository) AddGroup(ctx context.Context, g *models.FileGroup) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO file_groups (id, request_id, name) VALUES ($1, $2, $3)`,
		g.ID, g.RequestID, g.Name)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddFile(ctx context.Context, f *models.RequestFile) error {
	query := `
		INSERT INTO request_files (id, group_id, rel_path, kind, content_id,
			source_commit, source_repository, job_id, size_bytes, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	var generatedAt sql.NullTime
	if !f.Provenance.GeneratedAt.IsZero() {
		generatedAt = sql.NullTime{Time: f.Provenance.GeneratedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.GroupID, f.RelPath, string(f.Kind), f.ContentID,
		f.Provenance.SourceCommit, f.Provenance.Repository, f.Provenance.JobID,
		f.Provenance.SizeBytes, generatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddComment(ctx context.Context, c *models.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_comments (id, group_id, author, body, visibility, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.GroupID, c.Author, c.Body, string(c.Visibility), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpsertReview(ctx context.Context, rv *models.FileReview) error {
	query := `
		INSERT INTO file_reviews (file_id, reviewer, turn, verdict, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (file_id, reviewer, turn)
		DO UPDATE SET verdict = EXCLUDED.verdict, updated_at = EXCLUDED.updated_at;
	`
	_, err := r.db.ExecContext(ctx, query,
		rv.FileID, rv.Reviewer, rv.Turn, string(rv.Verdict), rv.CreatedAt, rv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateFileContentID(ctx context.Context, fileID, contentID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE request_files SET content_id = $2 WHERE id = $1`, fileID, contentID)
	if err != nil {
		return fmt.Errorf("update content id: %w", err)
	}
	return oneRowAffected(res, fileID)
}

func (r *PostgresRepository) UpdateFileProvenance(ctx context.Context, fileID string, p models.Provenance) error {
	var generatedAt sql.NullTime
	if !p.GeneratedAt.IsZero() {
		generatedAt = sql.NullTime{Time: p.GeneratedAt, Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE request_files
		 SET source_commit = $2, source_repository = $3, job_id = $4, size_bytes = $5, generated_at = $6
		 WHERE id = $1`,
		fileID, p.SourceCommit, p.Repository, p.JobID, p.SizeBytes, generatedAt)
	if err != nil {
		return fmt.Errorf("update provenance: %w", err)
	}
	return oneRowAffected(res, fileID)
}

func (r *PostgresRepository) MarkFileReleased(ctx context.Context, fileID, releasedBy string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE request_files SET released_at = $2, released_by = $3 WHERE id = $1`,
		fileID, at, releasedBy)
	if err != nil {
		return fmt.Errorf("mark released: %w", err)
	}
	return oneRowAffected(res, fileID)
}

func (r *PostgresRepository) FilesMissingContentID(ctx context.Context) ([]BackfillCandidate, error) {
	query := `
		SELECT f.id, g.request_id, rr.workspace, f.rel_path
		FROM request_files f
		JOIN file_groups g ON f.group_id = g.id
		JOIN release_requests rr ON g.request_id = rr.id
		WHERE f.content_id = ''
		ORDER BY f.id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select backfill candidates: %w", err)
	}
	defer rows.Close()

	var result []BackfillCandidate
	for rows.Next() {
		var c BackfillCandidate
		if err := rows.Scan(&c.FileID, &c.RequestID, &c.Workspace, &c.RelPath); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func oneRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%s: %w", id, common.ErrNotFound)
	default:
		return fmt.Errorf("%w: %d rows affected for %s", common.ErrConsistency, n, id)
	}
}
