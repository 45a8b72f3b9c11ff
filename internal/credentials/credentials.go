package credentials

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCredentialsUnavailable indicates the secret store never produced a full
// bundle within the configured wait.
var ErrCredentialsUnavailable = errors.New("credentials unavailable")

// Bundle holds everything needed to authenticate an export or import.
// It is immutable once loaded and never persisted; callers re-load per run
// so rotated secrets take effect without a restart.
type Bundle struct {
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Namespace string `mapstructure:"namespace"`
	Database  string `mapstructure:"database"`
}

// complete reports whether every field is populated. A partial bundle is
// never returned to callers.
func (b Bundle) complete() bool {
	return b.Username != "" && b.Password != "" && b.Namespace != "" && b.Database != ""
}

// missing lists the empty fields, for error messages.
func (b Bundle) missing() []string {
	var keys []string
	if b.Username == "" {
		keys = append(keys, "username")
	}
	if b.Password == "" {
		keys = append(keys, "password")
	}
	if b.Namespace == "" {
		keys = append(keys, "namespace")
	}
	if b.Database == "" {
		keys = append(keys, "database")
	}
	return keys
}

// Source produces a credential bundle, blocking (bounded) until the secret
// store has all four values.
type Source interface {
	Load(ctx context.Context) (Bundle, error)
}

// Sleeper abstracts the poll delay so tests can inject a fake clock.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext waits for d or for ctx cancellation, whichever comes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitPolicy bounds the polling loop shared by the concrete sources.
type WaitPolicy struct {
	Timeout  time.Duration
	Interval time.Duration
	Sleep    Sleeper
}

func (p WaitPolicy) sleeper() Sleeper {
	if p.Sleep != nil {
		return p.Sleep
	}
	return SleepContext
}

// poll runs read until it yields a complete bundle or the wait is exhausted.
// read errors are tolerated until the deadline; the secret store may simply
// not be mounted yet.
func (p WaitPolicy) poll(ctx context.Context, read func(context.Context) (Bundle, error)) (Bundle, error) {
	deadline := time.Now().Add(p.Timeout)
	sleep := p.sleeper()

	var lastErr error
	for {
		b, err := read(ctx)
		if err == nil && b.complete() {
			return b, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New("missing keys: " + strings.Join(b.missing(), ", "))
		}

		if !time.Now().Add(p.Interval).Before(deadline) {
			break
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return Bundle{}, err
		}
	}
	return Bundle{}, &UnavailableError{Reason: lastErr}
}

// UnavailableError wraps the last observed failure; it matches
// ErrCredentialsUnavailable under errors.Is.
type UnavailableError struct {
	Reason error
}

func (e *UnavailableError) Error() string {
	if e.Reason == nil {
		return ErrCredentialsUnavailable.Error()
	}
	return ErrCredentialsUnavailable.Error() + ": " + e.Reason.Error()
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrCredentialsUnavailable
}

func (e *UnavailableError) Unwrap() error { return e.Reason }
