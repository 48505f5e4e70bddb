// Package checkpoint persists the progress of a document run as a single
// JSON file, so an interrupted run can resume where it stopped.
package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// DefaultDir is where checkpoints are written when no directory is configured.
const DefaultDir = "./tmp"

const stateSuffix = "_state.json"

// Store handles checkpoint persistence under one directory.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	if baseDir == "" {
		baseDir = DefaultDir
	}
	return &Store{baseDir: baseDir}
}

// Dir returns the directory holding the checkpoints.
func (s *Store) Dir() string {
	return s.baseDir
}

// Path returns the checkpoint file for a document id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.baseDir, sanitizeID(id)+stateSuffix)
}

// Load returns the persisted state for id, or a fresh state when none exists.
// A file that exists but cannot be decoded yields *CorruptStateError; the
// caller must not replace it with a fresh state.
func (s *Store) Load(id string) (*State, error) {
	path := s.Path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewState(id), nil
		}
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}

	state, err := decodeState(data, id)
	if err != nil {
		return nil, &CorruptStateError{Path: path, Err: err}
	}
	return state, nil
}

// Exists reports whether a checkpoint file is present for id.
func (s *Store) Exists(id string) (bool, error) {
	_, err := os.Stat(s.Path(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &StorageError{Op: "stat", Path: s.Path(id), Err: err}
}

// Save replaces the checkpoint for state.Document with the full state.
// The write goes to a temp file which is synced and renamed over the old
// checkpoint, so a failed save leaves the previous file intact.
func (s *Store) Save(state *State) error {
	if state == nil {
		return fmt.Errorf("save checkpoint: nil state")
	}
	path := s.Path(state.Document)

	state.UpdatedAt = time.Now().UTC()
	data, err := encodeState(state)
	if err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return &StorageError{Op: "mkdir", Path: s.baseDir, Err: err}
	}

	tmp, err := os.CreateTemp(s.baseDir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return &StorageError{Op: "create", Path: path, Err: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &StorageError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &StorageError{Op: "sync", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &StorageError{Op: "close", Path: path, Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &StorageError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Remove deletes the checkpoint for id. Removing a missing checkpoint is not an error.
func (s *Store) Remove(id string) error {
	path := s.Path(id)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// List returns the ids of all checkpoints in the store, sorted. A missing
// directory holds no checkpoints.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list", Path: s.baseDir, Err: err}
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, stateSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, stateSuffix))
	}
	slices.Sort(ids)
	return ids, nil
}

// sanitizeID keeps document ids usable as file names.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "document"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, id)
}
