// Package checkpoint persists pipeline results as an atomically replaced
// JSON file.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/openschoolmap/georesolver/internal/core/domain"
)

// FileStore stores a checkpoint as one JSON object keyed by record
// identifier. Saves write a temporary sibling and rename it over the target,
// so a crash mid-write leaves the previous checkpoint intact.
type FileStore struct {
	path string
}

// NewFileStore creates a store at path. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the checkpoint location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing file yields an empty checkpoint; a
// file that exists but cannot be parsed is an error, so callers can decide
// whether to overwrite it.
func (s *FileStore) Load(ctx context.Context) (domain.Checkpoint, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Checkpoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", s.path, err)
	}
	if cp == nil {
		cp = domain.Checkpoint{}
	}
	return cp, nil
}

// Save atomically replaces the checkpoint file.
func (s *FileStore) Save(ctx context.Context, cp domain.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
