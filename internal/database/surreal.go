package database

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kebairia/backupd/internal/credentials"
	"github.com/kebairia/backupd/internal/logger"
)

const defaultBinary = "surreal"

// SurrealOption lets you override default settings on a Surreal client.
type SurrealOption func(*Surreal)

// Surreal talks to a SurrealDB server: exports and imports go through the
// `surreal` CLI, liveness goes through the HTTP health endpoint.
type Surreal struct {
	Endpoint      string
	Binary        string
	Timeout       time.Duration
	ProbeAttempts int
	ProbeBackoff  time.Duration
	ProbeTimeout  time.Duration
	HTTPClient    *http.Client
	Sleep         credentials.Sleeper
	Logger        logger.Logger
}

var _ Client = (*Surreal)(nil)

// NewSurreal returns a Surreal client for the given endpoint with any
// overrides applied.
func NewSurreal(endpoint string, opts ...SurrealOption) *Surreal {
	s := &Surreal{
		Endpoint:      strings.TrimRight(endpoint, "/"),
		Binary:        defaultBinary,
		Timeout:       10 * time.Minute,
		ProbeAttempts: 3,
		ProbeBackoff:  2 * time.Second,
		ProbeTimeout:  5 * time.Second,
		HTTPClient:    http.DefaultClient,
		Sleep:         credentials.SleepContext,
		Logger:        logger.Component("database"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithBinary overrides the CLI binary name.
func WithBinary(binary string) SurrealOption {
	return func(s *Surreal) {
		if binary != "" {
			s.Binary = binary
		}
	}
}

// WithTimeout bounds a single export or import invocation.
func WithTimeout(timeout time.Duration) SurrealOption {
	return func(s *Surreal) {
		if timeout > 0 {
			s.Timeout = timeout
		}
	}
}

// WithProbePolicy overrides the liveness-probe retry settings.
func WithProbePolicy(attempts int, backoff, perAttempt time.Duration) SurrealOption {
	return func(s *Surreal) {
		if attempts > 0 {
			s.ProbeAttempts = attempts
		}
		if backoff > 0 {
			s.ProbeBackoff = backoff
		}
		if perAttempt > 0 {
			s.ProbeTimeout = perAttempt
		}
	}
}

// WithHTTPClient overrides the probe HTTP client.
func WithHTTPClient(c *http.Client) SurrealOption {
	return func(s *Surreal) {
		if c != nil {
			s.HTTPClient = c
		}
	}
}

// WithSleeper overrides the backoff sleeper (tests).
func WithSleeper(sleep credentials.Sleeper) SurrealOption {
	return func(s *Surreal) {
		if sleep != nil {
			s.Sleep = sleep
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(log logger.Logger) SurrealOption {
	return func(s *Surreal) {
		if log != nil {
			s.Logger = log
		}
	}
}

// Probe checks the server health endpoint. It retries up to ProbeAttempts
// times with a fixed backoff; an export is never attempted against a server
// that fails this check.
func (s *Surreal) Probe(ctx context.Context) error {
	url := s.Endpoint + "/health"

	var lastErr error
	for attempt := 1; attempt <= s.ProbeAttempts; attempt++ {
		lastErr = s.probeOnce(ctx, url)
		if lastErr == nil {
			return nil
		}
		s.Logger.Warn("liveness probe failed",
			"attempt", attempt,
			"attempts", s.ProbeAttempts,
			"endpoint", url,
			"error", lastErr.Error(),
		)
		if attempt < s.ProbeAttempts {
			if err := s.Sleep(ctx, s.ProbeBackoff); err != nil {
				return fmt.Errorf("%w: %v", ErrDatabaseUnreachable, err)
			}
		}
	}
	return fmt.Errorf("%w: %d attempts against %s: %v",
		ErrDatabaseUnreachable, s.ProbeAttempts, url, lastErr)
}

func (s *Surreal) probeOnce(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, s.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Export runs `surreal export` against the bundle's namespace/database and
// writes the script to destPath.
func (s *Surreal) Export(ctx context.Context, creds credentials.Bundle, destPath string) error {
	ctx, cancel := context.WithTimeoutCause(ctx, s.Timeout, ErrTimeout)
	defer cancel()

	args := []string{
		"export",
		"--conn", s.Endpoint,
		"--user", creds.Username,
		"--pass", creds.Password,
		"--ns", creds.Namespace,
		"--db", creds.Database,
		destPath,
	}

	cmd := exec.CommandContext(ctx, s.Binary, args...)
	cmd.Stderr = os.Stderr

	s.Logger.Info("export started",
		"namespace", creds.Namespace,
		"database", creds.Database,
		"path", destPath,
	)

	startTime := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s export: %v", ErrExportFailed, s.Binary, err)
	}

	// The CLI can exit zero without producing a file on some failure modes.
	info, err := os.Stat(destPath)
	if err != nil {
		return fmt.Errorf("%w: export produced no file at %s", ErrExportFailed, destPath)
	}

	s.Logger.Info("export completed",
		"namespace", creds.Namespace,
		"database", creds.Database,
		"path", destPath,
		"size_bytes", info.Size(),
		"duration", time.Since(startTime).String(),
	)
	return nil
}

// Import runs `surreal import`, replaying the script at sourcePath against
// the live database.
func (s *Surreal) Import(ctx context.Context, creds credentials.Bundle, sourcePath string) error {
	ctx, cancel := context.WithTimeoutCause(ctx, s.Timeout, ErrTimeout)
	defer cancel()

	if _, err := os.Stat(sourcePath); err != nil {
		return fmt.Errorf("%w: source file %q not found: %v", ErrImportFailed, sourcePath, err)
	}

	args := []string{
		"import",
		"--conn", s.Endpoint,
		"--user", creds.Username,
		"--pass", creds.Password,
		"--ns", creds.Namespace,
		"--db", creds.Database,
		sourcePath,
	}

	cmd := exec.CommandContext(ctx, s.Binary, args...)
	cmd.Stderr = os.Stderr

	s.Logger.Info("import started",
		"namespace", creds.Namespace,
		"database", creds.Database,
		"source", sourcePath,
	)

	startTime := time.Now()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s import: %v", ErrImportFailed, s.Binary, err)
	}

	s.Logger.Info("import completed",
		"namespace", creds.Namespace,
		"database", creds.Database,
		"source", sourcePath,
		"duration", time.Since(startTime).String(),
	)
	return nil
}
