package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSlotEmpty indicates the requested slot holds no artifact.
var ErrSlotEmpty = errors.New("retention slot is empty")

// ErrUnknownKind indicates a backup kind outside {nightly, weekly}.
var ErrUnknownKind = errors.New("unknown backup kind")

// Kind names one of the two retention slots.
type Kind string

const (
	Nightly Kind = "nightly"
	Weekly  Kind = "weekly"
)

// Kinds lists every valid kind, in slot order.
var Kinds = []Kind{Nightly, Weekly}

// ParseKind validates a user-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Nightly, Weekly:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q (expected nightly or weekly)", ErrUnknownKind, s)
}

// slotExt is the artifact filename suffix external tooling depends on.
const slotExt = "_backup.surql.gz"

// shadowSuffix marks the previous artifact kept aside during a commit.
const shadowSuffix = ".prev"

// SlotInfo describes the current content of a slot.
type SlotInfo struct {
	Exists    bool
	SizeBytes int64
}

// Store owns the two named retention slots under Root. A slot is either
// absent or holds one fully-committed artifact; the commit path relies on
// rename being atomic, which requires artifacts to be staged on the same
// filesystem as Root.
type Store struct {
	Root string
}

// NewStore ensures root exists and returns a Store over it.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create backup root %q: %w", root, err)
	}
	return &Store{Root: root}, nil
}

// Path returns the slot file path for kind. The two names, and nothing
// else, are what persists under Root at steady state.
func (s *Store) Path(kind Kind) string {
	return filepath.Join(s.Root, string(kind)+slotExt)
}

func (s *Store) shadowPath(kind Kind) string {
	return s.Path(kind) + shadowSuffix
}

// Stat reports whether the slot holds an artifact and its size.
func (s *Store) Stat(kind Kind) (SlotInfo, error) {
	info, err := os.Stat(s.Path(kind))
	if os.IsNotExist(err) {
		return SlotInfo{}, nil
	}
	if err != nil {
		return SlotInfo{}, fmt.Errorf("stat slot %s: %w", kind, err)
	}
	return SlotInfo{Exists: true, SizeBytes: info.Size()}, nil
}

// Commit atomically replaces the slot for kind with the artifact at
// artifactPath. The previous artifact, if any, is moved aside as a shadow
// rather than destroyed; the caller must either Finalize (keep the new
// artifact) or Rollback (restore the old one) after re-verifying the
// committed file. The shadow never outlives the run.
func (s *Store) Commit(kind Kind, artifactPath string) error {
	if _, err := os.Stat(artifactPath); err != nil {
		return fmt.Errorf("commit %s: artifact %q: %w", kind, artifactPath, err)
	}

	slot := s.Path(kind)
	shadow := s.shadowPath(kind)

	// A shadow left over from a crashed run would be silently clobbered
	// below; remove it explicitly so the rename semantics stay simple.
	if err := os.Remove(shadow); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("commit %s: clear stale shadow: %w", kind, err)
	}

	hadPrevious := false
	if _, err := os.Stat(slot); err == nil {
		if err := os.Rename(slot, shadow); err != nil {
			return fmt.Errorf("commit %s: stage shadow: %w", kind, err)
		}
		hadPrevious = true
	}

	if err := os.Rename(artifactPath, slot); err != nil {
		// Put the previous artifact back; a failed commit must not leave
		// the slot empty.
		if hadPrevious {
			_ = os.Rename(shadow, slot)
		}
		return fmt.Errorf("commit %s: move into slot: %w", kind, err)
	}
	return nil
}

// Finalize discards the shadow left by Commit once the committed artifact
// has been re-verified.
func (s *Store) Finalize(kind Kind) error {
	if err := os.Remove(s.shadowPath(kind)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("finalize %s: %w", kind, err)
	}
	return nil
}

// Rollback restores the shadow into the slot, undoing a commit whose
// artifact failed re-verification. Without a shadow it removes the bad
// artifact, returning the slot to absent.
func (s *Store) Rollback(kind Kind) error {
	slot := s.Path(kind)
	shadow := s.shadowPath(kind)

	if _, err := os.Stat(shadow); err == nil {
		if err := os.Rename(shadow, slot); err != nil {
			return fmt.Errorf("rollback %s: %w", kind, err)
		}
		return nil
	}
	if err := os.Remove(slot); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rollback %s: remove bad artifact: %w", kind, err)
	}
	return nil
}
