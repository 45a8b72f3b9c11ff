package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kebairia/backupd/internal/artifact"
	"github.com/kebairia/backupd/internal/credentials"
	"github.com/kebairia/backupd/internal/database"
	"github.com/kebairia/backupd/internal/health"
	"github.com/kebairia/backupd/internal/logger"
	"github.com/kebairia/backupd/internal/metrics"
	"github.com/kebairia/backupd/internal/retention"
)

// ErrPostCommitCorruption indicates the artifact failed its integrity check
// after it was already committed into the slot. The previous artifact is
// rolled back into place before this is returned.
var ErrPostCommitCorruption = errors.New("post-commit corruption")

// Validator is the subset of artifact checking the pipeline needs.
type Validator interface {
	ValidateExport(path string) error
	ValidateCompressed(path string) error
}

// Pipeline runs one backup: acquire credentials, probe liveness, export,
// validate, compress, commit into the retention slot, re-verify the
// committed file. Every step failure is terminal for the run; the daemon
// itself keeps running.
type Pipeline struct {
	Credentials credentials.Source
	Client      database.Client
	Validator   Validator
	Store       *retention.Store
	State       *health.State
	ScratchDir  string
	Logger      logger.Logger

	// newRunID namespaces scratch files per run, keeping concurrent kinds
	// and leftovers from prior failed runs apart.
	newRunID func() string
	// compress is swappable in tests.
	compress func(string) (string, error)
}

// New wires a Pipeline with the production run-id and compression.
func New(
	creds credentials.Source,
	client database.Client,
	validator Validator,
	store *retention.Store,
	state *health.State,
	scratchDir string,
) *Pipeline {
	return &Pipeline{
		Credentials: creds,
		Client:      client,
		Validator:   validator,
		Store:       store,
		State:       state,
		ScratchDir:  scratchDir,
		Logger:      logger.Component("pipeline"),
		newRunID:    uuid.NewString,
		compress:    artifact.CompressGzip,
	}
}

// Run executes one backup for kind. On success the slot holds the new,
// re-verified artifact and health is set to healthy; on any failure health
// is set to unhealthy and the slot keeps its previous content. Scratch
// files are removed on both paths.
func (p *Pipeline) Run(ctx context.Context, kind retention.Kind) error {
	start := time.Now()
	p.State.Set(health.StatusRunning)

	rawPath := filepath.Join(p.ScratchDir, fmt.Sprintf("%s-%s.surql", kind, p.newRunID()))

	var rawSize, compressedSize int64
	err := p.run(ctx, kind, rawPath, &rawSize, &compressedSize)

	// Remove whatever scratch files this run left behind. The compressed
	// form is gone on success (moved into the slot) but may linger after
	// a failed commit.
	removeIfExists(rawPath)
	removeIfExists(rawPath + ".gz")

	duration := time.Since(start)
	if err != nil {
		p.State.Set(health.StatusUnhealthy)
		metrics.BackupRuns.WithLabelValues(string(kind), "failed").Inc()
		metrics.BackupDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
		p.Logger.Error("backup failed",
			"backup_type", string(kind),
			"status", "failed",
			"duration_ms", duration.Milliseconds(),
			"file_size_bytes", rawSize,
			"compressed_size_bytes", compressedSize,
			"error", err.Error(),
		)
		return fmt.Errorf("backup %s: %w", kind, err)
	}

	p.State.Set(health.StatusHealthy)
	metrics.BackupRuns.WithLabelValues(string(kind), "success").Inc()
	metrics.BackupDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
	metrics.ArtifactBytes.WithLabelValues(string(kind), "raw").Set(float64(rawSize))
	metrics.ArtifactBytes.WithLabelValues(string(kind), "compressed").Set(float64(compressedSize))
	p.Logger.Info("backup completed",
		"backup_type", string(kind),
		"status", "success",
		"duration_ms", duration.Milliseconds(),
		"file_size_bytes", rawSize,
		"compressed_size_bytes", compressedSize,
	)
	return nil
}

// run walks the state machine. Steps are strictly sequential; the first
// failing step aborts the run.
func (p *Pipeline) run(ctx context.Context, kind retention.Kind, rawPath string, rawSize, compressedSize *int64) error {
	// Pending -> CredentialsLoaded. Re-read every run so rotated secrets
	// take effect without a restart.
	creds, err := p.Credentials.Load(ctx)
	if err != nil {
		return err
	}

	// -> Probed. Hard precondition: no export against an unreachable server.
	if err := p.Client.Probe(ctx); err != nil {
		return err
	}

	// -> Exported.
	if err := os.MkdirAll(p.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	if err := p.Client.Export(ctx, creds, rawPath); err != nil {
		return err
	}
	if info, err := os.Stat(rawPath); err == nil {
		*rawSize = info.Size()
	}

	// -> ExportValidated.
	if err := p.Validator.ValidateExport(rawPath); err != nil {
		return err
	}

	// -> Compressed.
	gzPath, err := p.compress(rawPath)
	if err != nil {
		return err
	}
	if info, err := os.Stat(gzPath); err == nil {
		*compressedSize = info.Size()
	}

	// -> Committed. The rename is the single rolling-retention enforcement
	// point: the new artifact atomically retires the previous one.
	if err := p.Store.Commit(kind, gzPath); err != nil {
		return err
	}

	// -> ReVerified. The check runs against the file actually sitting in
	// the slot, so corruption introduced by compression or the move is
	// still caught. On failure the shadow is rolled back so the slot
	// keeps the last good artifact.
	if err := p.Validator.ValidateCompressed(p.Store.Path(kind)); err != nil {
		if rbErr := p.Store.Rollback(kind); rbErr != nil {
			p.Logger.Error("rollback failed", "backup_type", string(kind), "error", rbErr.Error())
		}
		return fmt.Errorf("%w: %v", ErrPostCommitCorruption, err)
	}
	if err := p.Store.Finalize(kind); err != nil {
		return err
	}

	return nil
}

func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Component("pipeline").Warn("scratch cleanup failed", "path", path, "error", err.Error())
	}
}
