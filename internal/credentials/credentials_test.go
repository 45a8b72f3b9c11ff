package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// noSleep advances instantly so polling tests don't wait on the wall clock.
func noSleep(context.Context, time.Duration) error { return nil }

func writeSecret(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o600); err != nil {
		t.Fatalf("failed to write secret %s: %v", name, err)
	}
}

func TestFileSource_LoadsCompleteBundle(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "username", "backup_user")
	writeSecret(t, dir, "password", "s3cret\n")
	writeSecret(t, dir, "namespace", "prod")
	writeSecret(t, dir, "database", "app")

	src := NewFileSource(dir, WaitPolicy{
		Timeout:  time.Second,
		Interval: 10 * time.Millisecond,
		Sleep:    noSleep,
	})

	bundle, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if bundle.Username != "backup_user" {
		t.Errorf("username = %q, want backup_user", bundle.Username)
	}
	if bundle.Password != "s3cret" {
		t.Errorf("password = %q, want trailing whitespace trimmed", bundle.Password)
	}
	if bundle.Namespace != "prod" || bundle.Database != "app" {
		t.Errorf("namespace/database = %q/%q, want prod/app", bundle.Namespace, bundle.Database)
	}
}

func TestFileSource_FailsWhenOneSecretMissing(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "username", "backup_user")
	writeSecret(t, dir, "password", "s3cret")
	writeSecret(t, dir, "namespace", "prod")
	// database intentionally absent

	src := NewFileSource(dir, WaitPolicy{
		Timeout:  50 * time.Millisecond,
		Interval: 10 * time.Millisecond,
		Sleep:    noSleep,
	})

	_, err := src.Load(context.Background())
	if !errors.Is(err, ErrCredentialsUnavailable) {
		t.Fatalf("Load error = %v, want ErrCredentialsUnavailable", err)
	}
}

func TestFileSource_NoPartialBundleOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "username", "backup_user")

	src := NewFileSource(dir, WaitPolicy{
		Timeout:  50 * time.Millisecond,
		Interval: 10 * time.Millisecond,
		Sleep:    noSleep,
	})

	bundle, err := src.Load(context.Background())
	if err == nil {
		t.Fatal("Load succeeded with three secrets missing")
	}
	if bundle != (Bundle{}) {
		t.Errorf("failed Load returned partial bundle %+v, want zero value", bundle)
	}
}

func TestFileSource_SucceedsOnceSecretsAppear(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "username", "backup_user")
	writeSecret(t, dir, "password", "s3cret")
	writeSecret(t, dir, "namespace", "prod")

	// The sleeper stands in for the mount settling: the last secret shows
	// up after the first poll.
	polls := 0
	lateSleep := func(context.Context, time.Duration) error {
		polls++
		if polls == 2 {
			writeSecret(t, dir, "database", "app")
		}
		return nil
	}

	src := NewFileSource(dir, WaitPolicy{
		Timeout:  time.Second,
		Interval: 10 * time.Millisecond,
		Sleep:    lateSleep,
	})

	bundle, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if bundle.Database != "app" {
		t.Errorf("database = %q, want app", bundle.Database)
	}
	if polls < 2 {
		t.Errorf("polled %d times, expected at least 2", polls)
	}
}

func TestFileSource_RespectsContextCancellation(t *testing.T) {
	dir := t.TempDir() // no secrets at all

	ctx, cancel := context.WithCancel(context.Background())
	cancelingSleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	src := NewFileSource(dir, WaitPolicy{
		Timeout:  time.Minute,
		Interval: 10 * time.Millisecond,
		Sleep:    cancelingSleep,
	})

	_, err := src.Load(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Load error = %v, want context.Canceled", err)
	}
}
