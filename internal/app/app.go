// Package app wires the airlock workflow engine together: configuration,
// logging, the PostgreSQL-backed repositories, the workspace and destination
// stores, and the services. The binary in cmd/airlock drives it.
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/trehub/airlock/internal/airlock/consensus"
	"github.com/trehub/airlock/internal/airlock/identity"
	"github.com/trehub/airlock/internal/airlock/models"
	"github.com/trehub/airlock/internal/airlock/policy"
	"github.com/trehub/airlock/internal/airlock/releasestore"
	"github.com/trehub/airlock/internal/airlock/repositories/repomanager"
	"github.com/trehub/airlock/internal/airlock/services"
	"github.com/trehub/airlock/internal/airlock/workspace"
	"github.com/trehub/airlock/internal/common"
	"github.com/trehub/airlock/internal/config"
	"github.com/trehub/airlock/internal/logging"
)

// tokenEnv carries the caller's signed identity token.
const tokenEnv = "AIRLOCK_TOKEN"

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	identity identity.Provider

	requests *services.RequestService
	audit    *services.AuditService
	admin    *services.AdminService
}

// sqlOpen is a seam for testing NewApp without a reachable database.
var sqlOpen = sql.Open

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sqlOpen("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	ws := workspace.NewDirStore(cfg.WorkspaceRoot)
	rs := releasestore.NewS3Store(releasestore.Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	pol := consensus.Policy{MinApprovals: cfg.MinApprovals}

	return &App{
		config:   cfg,
		logger:   logger,
		db:       db,
		identity: identity.NewJWTProvider([]byte(cfg.IdentitySecret)),
		requests: services.NewRequestService(db, rm, pol, ws, rs, logger),
		audit:    services.NewAuditService(db, rm, logger),
		admin:    services.NewAdminService(db, rm, ws, logger),
	}, nil
}

func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Requests exposes the lifecycle service to embedding callers.
func (a *App) Requests() *services.RequestService { return a.requests }

// Audit exposes the ledger service to embedding callers.
func (a *App) Audit() *services.AuditService { return a.audit }

// Run executes one maintenance command:
//
//	validate-config <file>              check a bulk request-creation document
//	backfill-content-ids                resolve missing content identifiers
//	reimport-provenance <id> <manifest> replace a request's provenance metadata
//
// The caller's identity token is read from the AIRLOCK_TOKEN environment
// variable.
func (a *App) Run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(args) == 0 {
		return errors.New("usage: airlock <validate-config|backfill-content-ids|reimport-provenance> [args]")
	}

	switch args[0] {
	case "validate-config":
		if len(args) != 2 {
			return errors.New("usage: airlock validate-config <file>")
		}
		return a.runValidateConfig(ctx, args[1])

	case "backfill-content-ids":
		actor, err := a.resolveActor(ctx)
		if err != nil {
			return err
		}
		updated, err := a.admin.BackfillContentIDs(ctx, actor)
		if err != nil {
			return err
		}
		a.logger.Info(ctx, "backfill finished", "updated", updated)
		return nil

	case "reimport-provenance":
		if len(args) != 3 {
			return errors.New("usage: airlock reimport-provenance <request-id> <manifest.json>")
		}
		actor, err := a.resolveActor(ctx)
		if err != nil {
			return err
		}
		return a.runReimportProvenance(ctx, actor, args[1], args[2])
	}

	return fmt.Errorf("unknown command %q", args[0])
}

func (a *App) runValidateConfig(ctx context.Context, path string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := a.admin.ValidateBulkConfig(ctx, doc); err != nil {
		return err
	}
	a.logger.Info(ctx, "document is valid", "file", path)
	return nil
}

// manifestEntry is the JSON shape of one provenance record in a reimport
// manifest, keyed by the file's relative path.
type manifestEntry struct {
	SourceCommit string    `json:"source_commit"`
	Repository   string    `json:"repository"`
	JobID        string    `json:"job_id"`
	SizeBytes    int64     `json:"size_bytes"`
	GeneratedAt  time.Time `json:"generated_at"`
}

func (a *App) runReimportProvenance(ctx context.Context, actor policy.Actor, requestID, manifestPath string) error {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", manifestPath, err)
	}
	var entries map[string]manifestEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse %s: %w", manifestPath, err)
	}

	manifest := make(map[string]models.Provenance, len(entries))
	for relPath, e := range entries {
		manifest[relPath] = models.Provenance{
			SourceCommit: e.SourceCommit,
			Repository:   e.Repository,
			JobID:        e.JobID,
			SizeBytes:    e.SizeBytes,
			GeneratedAt:  e.GeneratedAt,
		}
	}

	if err := a.admin.ReimportProvenance(ctx, actor, requestID, manifest); err != nil {
		return err
	}
	a.logger.Info(ctx, "provenance reimported", "request", requestID, "files", len(manifest))
	return nil
}

func (a *App) resolveActor(ctx context.Context) (policy.Actor, error) {
	token := strings.TrimSpace(os.Getenv(tokenEnv))
	if token == "" {
		return policy.Actor{}, fmt.Errorf("%s is not set: %w", tokenEnv, common.ErrPermissionDenied)
	}
	return a.identity.Resolve(ctx, token)
}
