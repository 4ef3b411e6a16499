// Package backup writes pre-destruction snapshots. The only hard
// happens-before constraint in the system lives here: a sink must durably
// store the artifact before any destructive write begins, so Store returns
// only after the artifact is safe and names where it went.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is a full copy of the restaurant table and every dependent table.
type Snapshot struct {
	TakenAt time.Time                   `json:"taken_at"`
	Counts  map[string]int64            `json:"counts"`
	Tables  map[string][]map[string]any `json:"tables"`
}

func NewSnapshot() Snapshot {
	return Snapshot{
		TakenAt: time.Now(),
		Counts:  make(map[string]int64),
		Tables:  make(map[string][]map[string]any),
	}
}

// TotalRows sums row counts across all tables.
func (s Snapshot) TotalRows() int64 {
	var total int64
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// Sink durably stores a snapshot and returns its location.
type Sink interface {
	Store(ctx context.Context, snap Snapshot) (location string, err error)
}

// DirSink writes timestamped JSON artifacts to a local directory, fsyncing
// before reporting success.
type DirSink struct {
	Dir string
}

func NewDirSink(dir string) *DirSink {
	return &DirSink{Dir: dir}
}

func (s *DirSink) Store(_ context.Context, snap Snapshot) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("backup-%s.json", snap.TakenAt.Format("20060102-150405"))
	path := filepath.Join(s.Dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write backup %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("sync backup %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close backup %s: %w", path, err)
	}
	return path, nil
}
