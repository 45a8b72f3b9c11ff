package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kebairia/backupd/internal/artifact"
	"github.com/kebairia/backupd/internal/credentials"
	"github.com/kebairia/backupd/internal/database"
	"github.com/kebairia/backupd/internal/health"
	"github.com/kebairia/backupd/internal/retention"
)

const fixtureExport = `OPTION IMPORT;

BEGIN TRANSACTION;
DEFINE TABLE user SCHEMALESS;
INSERT INTO user { id: user:1 };
COMMIT TRANSACTION;
`

// fakeSource hands out a fixed bundle or error.
type fakeSource struct {
	bundle credentials.Bundle
	err    error
	calls  int
}

func (s *fakeSource) Load(context.Context) (credentials.Bundle, error) {
	s.calls++
	if s.err != nil {
		return credentials.Bundle{}, s.err
	}
	return s.bundle, nil
}

// fakeClient simulates the database CLI by writing exportContent to the
// destination path.
type fakeClient struct {
	probeErr      error
	exportContent string
	exportErr     error
	exportCalls   int
	importCalls   int
}

var _ database.Client = (*fakeClient)(nil)

func (c *fakeClient) Probe(context.Context) error { return c.probeErr }

func (c *fakeClient) Export(_ context.Context, _ credentials.Bundle, destPath string) error {
	c.exportCalls++
	if c.exportErr != nil {
		return c.exportErr
	}
	return os.WriteFile(destPath, []byte(c.exportContent), 0o644)
}

func (c *fakeClient) Import(context.Context, credentials.Bundle, string) error {
	c.importCalls++
	return nil
}

// stubValidator forces specific validation outcomes.
type stubValidator struct {
	exportErr     error
	compressedErr error
}

func (v *stubValidator) ValidateExport(string) error     { return v.exportErr }
func (v *stubValidator) ValidateCompressed(string) error { return v.compressedErr }

func goodBundle() credentials.Bundle {
	return credentials.Bundle{Username: "u", Password: "p", Namespace: "ns", Database: "db"}
}

func newTestPipeline(t *testing.T, client *fakeClient) (*Pipeline, *retention.Store, *health.State) {
	t.Helper()
	store, err := retention.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	state := health.NewState("")
	scratch := filepath.Join(store.Root, "scratch")
	p := New(&fakeSource{bundle: goodBundle()}, client, artifact.NewValidator(""), store, state, scratch)
	return p, store, state
}

func scratchEntries(t *testing.T, p *Pipeline) []string {
	t.Helper()
	entries, err := os.ReadDir(p.ScratchDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func decompressSlot(t *testing.T, store *retention.Store, kind retention.Kind) string {
	t.Helper()
	dest := filepath.Join(t.TempDir(), "decompressed.surql")
	if err := artifact.DecompressGzip(store.Path(kind), dest); err != nil {
		t.Fatalf("decompress slot: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read decompressed: %v", err)
	}
	return string(data)
}

func TestRun_SuccessCommitsVerifiedArtifact(t *testing.T) {
	client := &fakeClient{exportContent: fixtureExport}
	p, store, state := newTestPipeline(t, client)

	if err := p.Run(context.Background(), retention.Nightly); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	info, err := store.Stat(retention.Nightly)
	if err != nil || !info.Exists {
		t.Fatalf("nightly slot after run: info=%+v err=%v", info, err)
	}
	if got := decompressSlot(t, store, retention.Nightly); got != fixtureExport {
		t.Errorf("slot round-trip mismatch")
	}
	if state.Get().Status != health.StatusHealthy {
		t.Errorf("health status = %q, want healthy", state.Get().Status)
	}
	if left := scratchEntries(t, p); len(left) != 0 {
		t.Errorf("scratch files left behind: %v", left)
	}
}

func TestRun_CredentialFailureSkipsExport(t *testing.T) {
	client := &fakeClient{exportContent: fixtureExport}
	p, store, state := newTestPipeline(t, client)
	p.Credentials = &fakeSource{err: credentials.ErrCredentialsUnavailable}

	err := p.Run(context.Background(), retention.Nightly)
	if !errors.Is(err, credentials.ErrCredentialsUnavailable) {
		t.Fatalf("Run error = %v, want ErrCredentialsUnavailable", err)
	}
	if client.exportCalls != 0 {
		t.Errorf("export invoked %d times despite missing credentials", client.exportCalls)
	}
	if state.Get().Status != health.StatusUnhealthy {
		t.Errorf("health status = %q, want unhealthy", state.Get().Status)
	}
	if info, _ := store.Stat(retention.Nightly); info.Exists {
		t.Error("slot written despite credential failure")
	}
}

func TestRun_UnreachableDatabaseLeavesSlotUntouched(t *testing.T) {
	// Seed a previous nightly artifact.
	seedClient := &fakeClient{exportContent: fixtureExport}
	p, store, state := newTestPipeline(t, seedClient)
	if err := p.Run(context.Background(), retention.Nightly); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	before := decompressSlot(t, store, retention.Nightly)

	// Next run: probe fails, export must not be attempted.
	failing := &fakeClient{probeErr: database.ErrDatabaseUnreachable}
	p.Client = failing

	err := p.Run(context.Background(), retention.Nightly)
	if !errors.Is(err, database.ErrDatabaseUnreachable) {
		t.Fatalf("Run error = %v, want ErrDatabaseUnreachable", err)
	}
	if failing.exportCalls != 0 {
		t.Errorf("export attempted against unreachable database")
	}
	if state.Get().Status != health.StatusUnhealthy {
		t.Errorf("health status = %q, want unhealthy", state.Get().Status)
	}
	if after := decompressSlot(t, store, retention.Nightly); after != before {
		t.Error("previous nightly artifact modified by failed run")
	}
}

func TestRun_MalformedExportCleansScratch(t *testing.T) {
	client := &fakeClient{exportContent: "SELECT 1;\n"} // no transaction marker
	p, store, state := newTestPipeline(t, client)

	err := p.Run(context.Background(), retention.Nightly)
	if !errors.Is(err, artifact.ErrMalformedArtifact) {
		t.Fatalf("Run error = %v, want ErrMalformedArtifact", err)
	}
	if info, _ := store.Stat(retention.Nightly); info.Exists {
		t.Error("slot written despite malformed export")
	}
	if left := scratchEntries(t, p); len(left) != 0 {
		t.Errorf("scratch files left behind: %v", left)
	}
	if state.Get().Status != health.StatusUnhealthy {
		t.Errorf("health status = %q, want unhealthy", state.Get().Status)
	}
}

func TestRun_EmptyExportFails(t *testing.T) {
	client := &fakeClient{exportContent: ""}
	p, _, _ := newTestPipeline(t, client)

	err := p.Run(context.Background(), retention.Nightly)
	if !errors.Is(err, artifact.ErrEmptyArtifact) {
		t.Fatalf("Run error = %v, want ErrEmptyArtifact", err)
	}
}

func TestRun_RollingInvariant(t *testing.T) {
	client := &fakeClient{exportContent: fixtureExport}
	p, store, _ := newTestPipeline(t, client)

	if err := p.Run(context.Background(), retention.Weekly); err != nil {
		t.Fatalf("first run: %v", err)
	}
	client.exportContent = fixtureExport + "INSERT INTO user { id: user:2 };\n"
	if err := p.Run(context.Background(), retention.Weekly); err != nil {
		t.Fatalf("second run: %v", err)
	}

	// Exactly one weekly file, and it is the most recent run's artifact.
	entries, err := os.ReadDir(store.Root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	if len(files) != 1 || files[0] != "weekly_backup.surql.gz" {
		t.Errorf("backup root files = %v, want exactly the weekly slot", files)
	}
	if got := decompressSlot(t, store, retention.Weekly); got != client.exportContent {
		t.Error("weekly slot does not hold the most recent artifact")
	}
}

func TestRun_PostCommitCorruptionRollsBack(t *testing.T) {
	client := &fakeClient{exportContent: fixtureExport}
	p, store, state := newTestPipeline(t, client)

	// Seed a good artifact.
	if err := p.Run(context.Background(), retention.Nightly); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	before := decompressSlot(t, store, retention.Nightly)

	// Next run commits fine but fails the post-commit check.
	p.Validator = &stubValidator{compressedErr: artifact.ErrCorruptArchive}
	client.exportContent = fixtureExport + "INSERT INTO user { id: user:3 };\n"

	err := p.Run(context.Background(), retention.Nightly)
	if !errors.Is(err, ErrPostCommitCorruption) {
		t.Fatalf("Run error = %v, want ErrPostCommitCorruption", err)
	}
	if state.Get().Status != health.StatusUnhealthy {
		t.Errorf("health status = %q, want unhealthy", state.Get().Status)
	}

	// The shadow rollback put the previous good artifact back.
	if after := decompressSlot(t, store, retention.Nightly); after != before {
		t.Error("slot does not hold the previous artifact after rollback")
	}
	if _, err := os.Stat(store.Path(retention.Nightly) + ".prev"); !os.IsNotExist(err) {
		t.Error("shadow left behind after rollback")
	}
}

func TestRun_ReloadsCredentialsEachRun(t *testing.T) {
	client := &fakeClient{exportContent: fixtureExport}
	p, _, _ := newTestPipeline(t, client)
	src := &fakeSource{bundle: goodBundle()}
	p.Credentials = src

	for i := 0; i < 3; i++ {
		if err := p.Run(context.Background(), retention.Nightly); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if src.calls != 3 {
		t.Errorf("credentials loaded %d times over 3 runs", src.calls)
	}
}
