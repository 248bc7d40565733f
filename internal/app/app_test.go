package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trehub/airlock/internal/airlock/consensus"
	"github.com/trehub/airlock/internal/airlock/identity"
	"github.com/trehub/airlock/internal/airlock/models"
	"github.com/trehub/airlock/internal/airlock/policy"
	"github.com/trehub/airlock/internal/airlock/releasestore"
	"github.com/trehub/airlock/internal/airlock/repositories/repomanager"
	"github.com/trehub/airlock/internal/airlock/services"
	"github.com/trehub/airlock/internal/airlock/workspace"
	"github.com/trehub/airlock/internal/common"
	"github.com/trehub/airlock/internal/identifier"
	"github.com/trehub/airlock/internal/logging"
)

// newTestApp wires an App onto in-memory backends, bypassing NewApp's
// database and migration steps.
func newTestApp(rm repomanager.RepositoryManager, ws workspace.Store) *App {
	logger := logging.Discard()
	return &App{
		logger: logger,
		identity: identity.StaticProvider{
			"carol": policy.Actor{Username: "carol", OutputChecker: true},
		},
		requests: services.NewRequestService(nil, rm, consensus.DefaultPolicy(), ws, releasestore.NewMemStore(), logger),
		audit:    services.NewAuditService(nil, rm, logger),
		admin:    services.NewAdminService(nil, rm, ws, logger),
	}
}

func TestRun_UsageErrors(t *testing.T) {
	a := newTestApp(repomanager.NewInMemoryRepositoryManager(), workspace.NewMemStore())
	ctx := context.Background()

	require.Error(t, a.Run(ctx, nil))
	require.Error(t, a.Run(ctx, []string{"no-such-command"}))
	require.Error(t, a.Run(ctx, []string{"validate-config"}))
	require.Error(t, a.Run(ctx, []string{"reimport-provenance", "only-one-arg"}))
}

func TestRun_ValidateConfig(t *testing.T) {
	a := newTestApp(repomanager.NewInMemoryRepositoryManager(), workspace.NewMemStore())
	ctx := context.Background()
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
requests:
  - workspace: W
    author: alice
    groups:
      - name: results
        files:
          - path: out.csv
            kind: output
`), 0o600))
	require.NoError(t, a.Run(ctx, []string{"validate-config", good}))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("requests: []\n"), 0o600))
	err := a.Run(ctx, []string{"validate-config", bad})
	require.True(t, errors.Is(err, common.ErrConfigValidation))

	err = a.Run(ctx, []string{"validate-config", filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}

func TestRun_BackfillRequiresToken(t *testing.T) {
	a := newTestApp(repomanager.NewInMemoryRepositoryManager(), workspace.NewMemStore())

	t.Setenv(tokenEnv, "")
	err := a.Run(context.Background(), []string{"backfill-content-ids"})
	require.True(t, errors.Is(err, common.ErrPermissionDenied))
}

func TestRun_BackfillContentIDs(t *testing.T) {
	rm := repomanager.NewInMemoryRepositoryManager()
	ws := workspace.NewMemStore()
	a := newTestApp(rm, ws)
	ctx := context.Background()

	// A file imported without a resolved content identifier.
	repo := rm.Requests(nil)
	req := &models.ReleaseRequest{ID: identifier.New(), Workspace: "W", Author: "alice", Status: models.StatusPending}
	require.NoError(t, repo.Create(ctx, req))
	group := &models.FileGroup{ID: identifier.New(), RequestID: req.ID, Name: "imported"}
	require.NoError(t, repo.AddGroup(ctx, group))
	file := &models.RequestFile{ID: identifier.New(), GroupID: group.ID, RelPath: "old.csv", Kind: models.KindOutput}
	require.NoError(t, repo.AddFile(ctx, file))
	ws.Put("W", "old.csv", []byte("data"))

	t.Setenv(tokenEnv, "carol")
	require.NoError(t, a.Run(ctx, []string{"backfill-content-ids"}))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.NotEmpty(t, got.FindFile("old.csv").ContentID)
}

func TestRun_ReimportProvenance(t *testing.T) {
	rm := repomanager.NewInMemoryRepositoryManager()
	ws := workspace.NewMemStore()
	a := newTestApp(rm, ws)
	ctx := context.Background()

	repo := rm.Requests(nil)
	req := &models.ReleaseRequest{ID: identifier.New(), Workspace: "W", Author: "alice", Status: models.StatusPending}
	require.NoError(t, repo.Create(ctx, req))
	group := &models.FileGroup{ID: identifier.New(), RequestID: req.ID, Name: "results"}
	require.NoError(t, repo.AddGroup(ctx, group))
	file := &models.RequestFile{ID: identifier.New(), GroupID: group.ID, RelPath: "out.csv", Kind: models.KindOutput}
	require.NoError(t, repo.AddFile(ctx, file))

	manifest := filepath.Join(t.TempDir(), "manifest.json")
	raw, err := json.Marshal(map[string]manifestEntry{
		"out.csv": {SourceCommit: "abc123", Repository: "trials/analysis", JobID: "job-1"},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifest, raw, 0o600))

	t.Setenv(tokenEnv, "carol")
	require.NoError(t, a.Run(ctx, []string{"reimport-provenance", req.ID, manifest}))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "abc123", got.FindFile("out.csv").Provenance.SourceCommit)
}
