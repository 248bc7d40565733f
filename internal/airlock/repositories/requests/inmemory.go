package requests

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trehub/airlock/internal/airlock/models"
	"github.com/trehub/airlock/internal/common"
)

// InMemoryRepository is the reference Repository implementation used in
// tests and single-process setups. It hands out deep copies, so stored state
// can only change through repository calls, and serializes every call with a
// single lock, which gives the same single-writer-per-request guarantee the
// SQL adapter gets from its transaction isolation.
type InMemoryRepository struct {
	mu   sync.Mutex
	reqs map[string]*models.ReleaseRequest
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{reqs: make(map[string]*models.ReleaseRequest)}
}

func (r *InMemoryRepository) Create(_ context.Context, req *models.ReleaseRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reqs[req.ID]; ok {
		return fmt.Errorf("%w: duplicate request id %s", common.ErrConsistency, req.ID)
	}
	r.reqs[req.ID] = req.Clone()
	return nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*models.ReleaseRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", id, common.ErrNotFound)
	}
	return req.Clone(), nil
}

func (r *InMemoryRepository) FindActive(_ context.Context, workspace, author string) ([]*models.ReleaseRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.ReleaseRequest
	for _, req := range r.reqs {
		if req.Workspace == workspace && req.Author == author && req.Status.IsActive() {
			result = append(result, req.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *InMemoryRepository) ListByWorkspace(_ context.Context, workspace string) ([]*models.ReleaseRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.ReleaseRequest
	for _, req := range r.reqs {
		if req.Workspace == workspace {
			shallow := *req
			shallow.Groups = nil
			result = append(result, &shallow)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (r *InMemoryRepository) ListByAuthor(_ context.Context, author string) ([]*models.ReleaseRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.ReleaseRequest
	for _, req := range r.reqs {
		if req.Author == author {
			shallow := *req
			shallow.Groups = nil
			result = append(result, &shallow)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	return result, nil
}

func (r *InMemoryRepository) UpdateStatus(_ context.Context, id string, status models.Status, turn int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[id]
	if !ok {
		return fmt.Errorf("request %s: %w", id, common.ErrNotFound)
	}
	req.Status = status
	req.Turn = turn
	return nil
}

func (r *InMemoryRepository) AddGroup(_ context.Context, g *models.FileGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[g.RequestID]
	if !ok {
		return fmt.Errorf("request %s: %w", g.RequestID, common.ErrNotFound)
	}
	req.Groups = append(req.Groups, g.Clone())
	return nil
}

func (r *InMemoryRepository) AddFile(_ context.Context, f *models.RequestFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.groupByID(f.GroupID)
	if g == nil {
		return fmt.Errorf("group %s: %w", f.GroupID, common.ErrNotFound)
	}
	g.Files = append(g.Files, f.Clone())
	return nil
}

func (r *InMemoryRepository) AddComment(_ context.Context, c *models.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.groupByID(c.GroupID)
	if g == nil {
		return fmt.Errorf("group %s: %w", c.GroupID, common.ErrNotFound)
	}
	cc := *c
	g.Comments = append(g.Comments, &cc)
	return nil
}

func (r *InMemoryRepository) UpsertReview(_ context.Context, rv *models.FileReview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.fileByID(rv.FileID)
	if f == nil {
		return fmt.Errorf("file %s: %w", rv.FileID, common.ErrNotFound)
	}
	for _, existing := range f.Reviews {
		if existing.Reviewer == rv.Reviewer && existing.Turn == rv.Turn {
			existing.Verdict = rv.Verdict
			existing.UpdatedAt = rv.UpdatedAt
			return nil
		}
	}
	rc := *rv
	f.Reviews = append(f.Reviews, &rc)
	return nil
}

func (r *InMemoryRepository) UpdateFileContentID(_ context.Context, fileID, contentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.fileByID(fileID)
	if f == nil {
		return fmt.Errorf("file %s: %w", fileID, common.ErrNotFound)
	}
	f.ContentID = contentID
	return nil
}

func (r *InMemoryRepository) UpdateFileProvenance(_ context.Context, fileID string, p models.Provenance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.fileByID(fileID)
	if f == nil {
		return fmt.Errorf("file %s: %w", fileID, common.ErrNotFound)
	}
	f.Provenance = p
	return nil
}

func (r *InMemoryRepository) MarkFileReleased(_ context.Context, fileID, releasedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.fileByID(fileID)
	if f == nil {
		return fmt.Errorf("file %s: %w", fileID, common.ErrNotFound)
	}
	f.ReleasedAt = &at
	f.ReleasedBy = releasedBy
	return nil
}

func (r *InMemoryRepository) FilesMissingContentID(_ context.Context) ([]BackfillCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []BackfillCandidate
	for _, req := range r.reqs {
		for _, g := range req.Groups {
			for _, f := range g.Files {
				if f.ContentID == "" {
					result = append(result, BackfillCandidate{
						FileID:    f.ID,
						RequestID: req.ID,
						Workspace: req.Workspace,
						RelPath:   f.RelPath,
					})
				}
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FileID < result[j].FileID })
	return result, nil
}

// groupByID and fileByID scan all requests; fine for a reference
// implementation holding test-sized data.
func (r *InMemoryRepository) groupByID(id string) *models.FileGroup {
	for _, req := range r.reqs {
		for _, g := range req.Groups {
			if g.ID == id {
				return g
			}
		}
	}
	return nil
}

func (r *InMemoryRepository) fileByID(id string) *models.RequestFile {
	for _, req := range r.reqs {
		for _, g := range req.Groups {
			for _, f := range g.Files {
				if f.ID == id {
					return f
				}
			}
		}
	}
	return nil
}
