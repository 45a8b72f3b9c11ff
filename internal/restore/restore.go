package restore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kebairia/backupd/internal/artifact"
	"github.com/kebairia/backupd/internal/credentials"
	"github.com/kebairia/backupd/internal/database"
	"github.com/kebairia/backupd/internal/logger"
	"github.com/kebairia/backupd/internal/metrics"
	"github.com/kebairia/backupd/internal/retention"
)

// ErrAborted indicates the operator declined the confirmation prompt.
// Nothing has been touched when this is returned.
var ErrAborted = errors.New("restore aborted by operator")

// Request drives one restore invocation. It is never persisted.
type Request struct {
	Kind       retention.Kind
	Force      bool
	VerifyOnly bool
}

// Validator is the subset of artifact checking the workflow needs.
type Validator interface {
	ValidateExport(path string) error
	ValidateCompressed(path string) error
}

// Workflow restores the live database from a retention slot. It only ever
// reads the slot, so a failed or interrupted restore cannot damage the
// backup history.
type Workflow struct {
	Credentials credentials.Source
	Client      database.Client
	Validator   Validator
	Store       *retention.Store
	ScratchDir  string
	Logger      logger.Logger

	// Confirm shows the prompt and returns the operator's typed reply.
	// Swappable in tests.
	Confirm func(prompt string) (string, error)

	newRunID   func() string
	decompress func(src, dst string) error
}

// New wires a Workflow with interactive confirmation on stdin.
func New(
	creds credentials.Source,
	client database.Client,
	validator Validator,
	store *retention.Store,
	scratchDir string,
) *Workflow {
	return &Workflow{
		Credentials: creds,
		Client:      client,
		Validator:   validator,
		Store:       store,
		ScratchDir:  scratchDir,
		Logger:      logger.Component("restore"),
		Confirm:     promptStdin,
		newRunID:    uuid.NewString,
		decompress:  artifact.DecompressGzip,
	}
}

// Run executes the workflow for req. With VerifyOnly it stops after the
// archive integrity check, touching nothing.
func (w *Workflow) Run(ctx context.Context, req Request) error {
	start := time.Now()
	err := w.run(ctx, req)

	status := "success"
	if req.VerifyOnly {
		status = "verified"
	}
	if err != nil {
		status = "failed"
	}
	metrics.RestoreRuns.WithLabelValues(string(req.Kind), status).Inc()

	if err != nil {
		w.Logger.Error("restore failed",
			"backup_type", string(req.Kind),
			"status", "failed",
			"verify_only", req.VerifyOnly,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		return err
	}
	w.Logger.Info("restore completed",
		"backup_type", string(req.Kind),
		"status", status,
		"verify_only", req.VerifyOnly,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Workflow) run(ctx context.Context, req Request) error {
	// 1. Resolve the slot.
	slot := w.Store.Path(req.Kind)
	info, err := w.Store.Stat(req.Kind)
	if err != nil {
		return err
	}
	if !info.Exists {
		return fmt.Errorf("%w: %s", retention.ErrSlotEmpty, req.Kind)
	}

	// 2. Verify the archive before anything destructive. A corrupt slot
	// aborts here, before any prompt is shown.
	if err := w.Validator.ValidateCompressed(slot); err != nil {
		return err
	}
	if req.VerifyOnly {
		return nil
	}

	// 3. Explicit confirmation gates the destructive import.
	if !req.Force {
		phrase := fmt.Sprintf("restore %s", req.Kind)
		reply, err := w.Confirm(fmt.Sprintf(
			"This will overwrite the live database from the %s slot.\nType %q to continue: ",
			req.Kind, phrase,
		))
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if strings.TrimSpace(reply) != phrase {
			return ErrAborted
		}
	}

	// 4. Decompress to scratch and re-check the content at the moment of
	// use; a previously written artifact is never trusted blindly.
	if err := os.MkdirAll(w.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	scratch := filepath.Join(w.ScratchDir,
		fmt.Sprintf("restore-%s-%s.surql", req.Kind, w.newRunID()))
	defer os.Remove(scratch)

	if err := w.decompress(slot, scratch); err != nil {
		return err
	}
	if err := w.Validator.ValidateExport(scratch); err != nil {
		return err
	}

	// 5. Import against live credentials.
	creds, err := w.Credentials.Load(ctx)
	if err != nil {
		return err
	}
	if err := w.Client.Import(ctx, creds, scratch); err != nil {
		return err
	}

	return nil
}

// promptStdin writes the prompt and reads one line from stdin.
func promptStdin(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}
