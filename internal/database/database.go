package database

import (
	"context"
	"errors"

	"github.com/kebairia/backupd/internal/credentials"
)

var (
	ErrTimeout             = errors.New("operation timed out")
	ErrDatabaseUnreachable = errors.New("database unreachable")
	ErrExportFailed        = errors.New("export failed")
	ErrImportFailed        = errors.New("import failed")
)

// Client wraps the database's export/import command-line protocol plus its
// liveness probe. The backup pipeline and the restore workflow share one
// implementation.
type Client interface {
	// Probe checks the database health endpoint with bounded retries.
	Probe(ctx context.Context) error
	// Export writes a portable script of the credential bundle's
	// namespace/database to destPath.
	Export(ctx context.Context, creds credentials.Bundle, destPath string) error
	// Import replays a previously exported script against the live database.
	Import(ctx context.Context, creds credentials.Bundle, sourcePath string) error
}
