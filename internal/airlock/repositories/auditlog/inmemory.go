package auditlog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trehub/airlock/internal/airlock/audit"
	"github.com/trehub/airlock/internal/common"
)

// InMemoryRepository is the reference ledger implementation for tests.
type InMemoryRepository struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Append(_ context.Context, e *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	if e.Extra != nil {
		cp.Extra = make(map[string]string, len(e.Extra))
		for k, v := range e.Extra {
			cp.Extra[k] = v
		}
	}
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *InMemoryRepository) Query(_ context.Context, f audit.Filter) ([]*audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*audit.Entry
	for _, e := range r.entries {
		if f.Matches(e) {
			cp := *e
			result = append(result, &cp)
		}
	}
	// Most recent first; identifiers are time-ordered, so the id breaks
	// ties between entries written in the same instant.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r *InMemoryRepository) Hide(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			e.Hidden = true
			return nil
		}
	}
	return fmt.Errorf("audit entry %s: %w", id, common.ErrNotFound)
}
