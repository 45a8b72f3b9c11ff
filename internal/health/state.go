package health

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Status is the lifecycle state of the most recent backup run.
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Record is the process-wide health record. It is also the shape of the
// on-disk snapshot external tooling inspects.
type Record struct {
	Status      Status    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
}

// State holds the health record behind a single-writer/multi-reader
// discipline: the backup pipeline writes, the health server reads. Every
// write is mirrored to the snapshot file when one is configured.
type State struct {
	mu          sync.RWMutex
	record      Record
	lastSuccess time.Time

	// SnapshotPath, when non-empty, receives a JSON copy of the record on
	// every write.
	SnapshotPath string
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// NewState returns a State in the starting status. snapshotPath may be
// empty to disable the disk mirror.
func NewState(snapshotPath string) *State {
	s := &State{
		SnapshotPath: snapshotPath,
		Now:          time.Now,
	}
	s.record = Record{Status: StatusStarting, LastUpdated: s.Now().UTC()}
	return s
}

// Set transitions the record to status and stamps the update time.
func (s *State) Set(status Status) {
	s.mu.Lock()
	now := s.Now().UTC()
	s.record = Record{Status: status, LastUpdated: now}
	if status == StatusHealthy {
		s.lastSuccess = now
	}
	record := s.record
	s.mu.Unlock()

	// The mirror is best-effort observability; a write failure must not
	// fail the backup run that triggered it.
	_ = s.writeSnapshot(record)
}

// Get returns the current record.
func (s *State) Get() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// LastSuccess returns the completion time of the most recent healthy run,
// or the zero time if no run has succeeded yet.
func (s *State) LastSuccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSuccess
}

func (s *State) writeSnapshot(record Record) error {
	if s.SnapshotPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode health snapshot: %w", err)
	}
	if err := os.WriteFile(s.SnapshotPath, data, 0o644); err != nil {
		return fmt.Errorf("write health snapshot: %w", err)
	}
	return nil
}
