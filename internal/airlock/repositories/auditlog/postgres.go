package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trehub/airlock/internal/airlock/audit"
	"github.com/trehub/airlock/internal/common"
	"github.com/trehub/airlock/internal/dbx"
)

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, e *audit.Entry) error {
	extra, err := json.Marshal(e.Extra)
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}
	query := `
		INSERT INTO audit_log (id, kind, username, workspace, request_id, path, extra, hidden, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, string(e.Kind), e.User, e.Workspace, e.RequestID, e.Path, extra, e.Hidden, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Query(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	query := `SELECT id, kind, username, workspace, request_id, path, extra, hidden, created_at FROM audit_log`

	var conds []string
	var args []any
	add := func(column, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if f.User != "" {
		add("username", f.User)
	}
	if f.Workspace != "" {
		add("workspace", f.Workspace)
	}
	if f.RequestID != "" {
		add("request_id", f.RequestID)
	}
	if !f.IncludeHidden {
		conds = append(conds, "hidden = FALSE")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	defer rows.Close()

	var result []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		var kind string
		var extra []byte
		if err := rows.Scan(&e.ID, &kind, &e.User, &e.Workspace, &e.RequestID, &e.Path, &extra, &e.Hidden, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Kind, err = audit.ParseEventKind(kind); err != nil {
			return nil, err
		}
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &e.Extra); err != nil {
				return nil, fmt.Errorf("unmarshal extra: %w", err)
			}
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Hide(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE audit_log SET hidden = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("hide audit entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("audit entry %s: %w", id, common.ErrNotFound)
	}
	return nil
}
