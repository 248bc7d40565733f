// Package workspace reads files from a secure workspace on behalf of the
// workflow engine: once when a file is added (to pin its content identity)
// and again before release (to detect staleness).
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/trehub/airlock/internal/common"
)

// Meta is the file metadata surfaced alongside its bytes.
type Meta struct {
	SizeBytes int64
	ModTime   time.Time
}

// Store is the workspace file store port.
type Store interface {
	// Read returns the bytes and metadata of relPath inside workspace.
	// Unknown files map to common.ErrNotFound.
	Read(ctx context.Context, workspace, relPath string) ([]byte, Meta, error)
}

// DirStore reads workspaces laid out as subdirectories of a root directory.
type DirStore struct {
	Root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{Root: root}
}

func (s *DirStore) Read(_ context.Context, workspace, relPath string) ([]byte, Meta, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return nil, Meta{}, fmt.Errorf("path %q escapes the workspace: %w", relPath, common.ErrNotFound)
	}

	full := filepath.Join(s.Root, workspace, clean)
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return nil, Meta{}, fmt.Errorf("%s/%s: %w", workspace, relPath, common.ErrNotFound)
	}
	if err != nil {
		return nil, Meta{}, fmt.Errorf("stat %s: %w", full, err)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read %s: %w", full, err)
	}
	return data, Meta{SizeBytes: info.Size(), ModTime: info.ModTime()}, nil
}

// MemStore is an in-memory Store for tests. Put overwrites, mimicking an
// author regenerating a workspace file.
type MemStore struct {
	files map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

func (s *MemStore) Put(workspace, relPath string, data []byte) {
	s.files[workspace+"/"+relPath] = data
}

func (s *MemStore) Read(_ context.Context, workspace, relPath string) ([]byte, Meta, error) {
	data, ok := s.files[workspace+"/"+relPath]
	if !ok {
		return nil, Meta{}, fmt.Errorf("%s/%s: %w", workspace, relPath, common.ErrNotFound)
	}
	return append([]byte(nil), data...), Meta{SizeBytes: int64(len(data))}, nil
}
