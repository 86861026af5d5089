package admission

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// counterRecord is the on-disk encoding of the slot counter.
type counterRecord struct {
	Slots int `json:"slots"`
}

// FileStore persists the slot counter as a small JSON file. Writes go to a
// temp file first and are renamed into place, so a crash mid-write never
// leaves a corrupt record.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore rooted in dir, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	return &FileStore{path: filepath.Join(dir, "worker_slots.json")}, nil
}

// Load reads the persisted count. A missing file loads as (0, false).
func (s *FileStore) Load() (int, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var rec counterRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("corrupt slot record %s: %w", s.path, err)
	}
	return rec.Slots, true, nil
}

// Save writes the count durably via temp-write + rename.
func (s *FileStore) Save(count int) error {
	data, err := json.Marshal(counterRecord{Slots: count})
	if err != nil {
		return fmt.Errorf("failed to encode slot record: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to publish %s: %w", s.path, err)
	}
	return nil
}
