// Package workspace keeps saved result snapshots in a local JSON file.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Lllllllleong/documentsummaryflow/internal/models"
)

// Keys of the persisted key/value document.
const (
	KeySavedResponses   = "savedResponses"
	KeyDisplayedContent = "displayedContent"
)

// DefaultMaxSnapshots caps the number of saved snapshots.
const DefaultMaxSnapshots = 50

var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrSnapshotCorrupt  = errors.New("snapshot digest mismatch")
)

// Snapshot is a user-named copy of a completed result set.
type Snapshot struct {
	ID      int                   `json:"id"`
	Label   string                `json:"label"`
	Mode    models.Mode           `json:"mode"`
	Records []models.ResultRecord `json:"records"`
	Files   []models.FileRef      `json:"files"`
	SavedAt time.Time             `json:"savedAt"`
	Digest  string                `json:"digest"`
}

// Exporter copies a snapshot somewhere durable and returns its location.
type Exporter interface {
	Export(ctx context.Context, snap Snapshot) (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithMaxSnapshots sets the snapshot cap. Zero disables it.
func WithMaxSnapshots(n int) Option {
	return func(s *Store) { s.maxSnapshots = n }
}

// WithExporter exports snapshots before they are evicted.
func WithExporter(e Exporter) Option {
	return func(s *Store) { s.exporter = e }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is a file-backed snapshot collection. Every mutation writes the whole
// document to a temporary file and renames it over the previous one, so a failed
// write leaves the last good state in place. The in-memory state only changes
// after the write succeeded.
type Store struct {
	mu           sync.Mutex
	path         string
	maxSnapshots int
	exporter     Exporter
	now          func() time.Time

	snapshots []Snapshot
	displayed *models.DisplayedContent
}

// DefaultPath returns <user config dir>/docsum/workspace.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, "docsum", "workspace.json"), nil
}

// Open loads the store at path. A missing file is an empty workspace.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:         path,
		maxSnapshots: DefaultMaxSnapshots,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace %s: %w", path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse workspace %s: %w", path, err)
	}
	if raw, ok := doc[KeySavedResponses]; ok {
		if err := json.Unmarshal(raw, &s.snapshots); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", KeySavedResponses, err)
		}
	}
	if raw, ok := doc[KeyDisplayedContent]; ok && string(raw) != "null" {
		var content models.DisplayedContent
		if err := json.Unmarshal(raw, &content); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", KeyDisplayedContent, err)
		}
		s.displayed = &content
	}
	return s, nil
}

// Save stores a new snapshot with the next id and a default label. When the
// cap is exceeded the oldest snapshot is exported (if an exporter is set) and
// evicted.
func (s *Store) Save(ctx context.Context, records []models.ResultRecord, files []models.FileRef, mode models.Mode) (Snapshot, error) {
	digest, err := Digest(records)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := 1
	for _, snap := range s.snapshots {
		if snap.ID >= id {
			id = snap.ID + 1
		}
	}
	snap := Snapshot{
		ID:      id,
		Label:   fmt.Sprintf("Saved Response %d", id),
		Mode:    mode,
		Records: records,
		Files:   files,
		SavedAt: s.now().UTC(),
		Digest:  digest,
	}

	next := append(append([]Snapshot(nil), s.snapshots...), snap)
	for s.maxSnapshots > 0 && len(next) > s.maxSnapshots {
		evicted := next[0]
		if s.exporter != nil {
			location, err := s.exporter.Export(ctx, evicted)
			if err != nil {
				return Snapshot{}, fmt.Errorf("failed to export snapshot %d before eviction: %w", evicted.ID, err)
			}
			slog.Info("Exported snapshot before eviction.", "snapshotId", evicted.ID, "location", location)
		} else {
			slog.Warn("Evicting snapshot without export.", "snapshotId", evicted.ID)
		}
		next = next[1:]
	}

	if err := s.write(next, s.displayed); err != nil {
		return Snapshot{}, err
	}
	s.snapshots = next
	return snap, nil
}

// Rename changes a snapshot's label. Unknown ids are ignored.
func (s *Store) Rename(id int, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}
	next := append([]Snapshot(nil), s.snapshots...)
	next[idx].Label = label
	if err := s.write(next, s.displayed); err != nil {
		return err
	}
	s.snapshots = next
	return nil
}

// Delete removes a snapshot and reports whether it existed.
func (s *Store) Delete(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false, nil
	}
	next := make([]Snapshot, 0, len(s.snapshots)-1)
	next = append(next, s.snapshots[:idx]...)
	next = append(next, s.snapshots[idx+1:]...)
	if err := s.write(next, s.displayed); err != nil {
		return false, err
	}
	s.snapshots = next
	return true, nil
}

// List returns all snapshots in insertion order.
func (s *Store) List() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snapshots...)
}

// Select returns a snapshot for display after checking its digest.
func (s *Store) Select(id int) (Snapshot, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	var snap Snapshot
	if idx >= 0 {
		snap = s.snapshots[idx]
	}
	s.mu.Unlock()

	if idx < 0 {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrSnapshotNotFound, id)
	}
	if snap.Digest != "" {
		digest, err := Digest(snap.Records)
		if err != nil {
			return Snapshot{}, err
		}
		if digest != snap.Digest {
			return Snapshot{}, fmt.Errorf("%w: snapshot %d", ErrSnapshotCorrupt, id)
		}
	}
	return snap, nil
}

// Export sends one snapshot to the configured exporter.
func (s *Store) Export(ctx context.Context, id int) (string, error) {
	if s.exporter == nil {
		return "", fmt.Errorf("no exporter configured")
	}
	snap, err := s.Select(id)
	if err != nil {
		return "", err
	}
	return s.exporter.Export(ctx, snap)
}

// SetDisplayed overwrites the last rendered grouping.
func (s *Store) SetDisplayed(content models.DisplayedContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(s.snapshots, &content); err != nil {
		return err
	}
	s.displayed = &content
	return nil
}

// Displayed returns the last rendered grouping, if any.
func (s *Store) Displayed() (models.DisplayedContent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.displayed == nil {
		return models.DisplayedContent{}, false
	}
	return *s.displayed, true
}

func (s *Store) indexOf(id int) int {
	for i, snap := range s.snapshots {
		if snap.ID == id {
			return i
		}
	}
	return -1
}

// write replaces the whole workspace file.
func (s *Store) write(snapshots []Snapshot, displayed *models.DisplayedContent) error {
	if snapshots == nil {
		snapshots = []Snapshot{}
	}
	saved, err := json.Marshal(snapshots)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", KeySavedResponses, err)
	}
	shown, err := json.Marshal(displayed)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", KeyDisplayedContent, err)
	}
	data, err := json.MarshalIndent(map[string]json.RawMessage{
		KeySavedResponses:   saved,
		KeyDisplayedContent: shown,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workspace: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create workspace dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".workspace-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write workspace: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync workspace: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close workspace: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace workspace: %w", err)
	}
	return nil
}
