package locator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// IndexFileName is the name of the index file inside the store root.
const IndexFileName = "cache.json"

// Assert that FileIndex implements the Index interface
var _ Index = (*FileIndex)(nil)

// FileIndex is an Index persisted as a single flat JSON object. It is read
// once when opened and written once by Save.
type FileIndex struct {
	mu      sync.RWMutex
	entries map[string]string
	path    string
	dirty   bool
}

// OpenFileIndex loads the index at path. A missing file yields an empty
// index; an unreadable or malformed one is logged and also starts empty.
func OpenFileIndex(path string, logger *slog.Logger) *FileIndex {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &FileIndex{
		entries: make(map[string]string),
		path:    path,
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		logger.Warn("reading locator index", "path", path, "error", err)
	default:
		if err := json.Unmarshal(data, &idx.entries); err != nil {
			logger.Warn("locator index is malformed, starting empty", "path", path, "error", err)
			idx.entries = make(map[string]string)
		}
	}
	return idx
}

// Path returns the file the index is saved to.
func (s *FileIndex) Path() string {
	return s.path
}

func (s *FileIndex) Get(locator string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hash, ok := s.entries[locator]
	if !ok {
		return "", fmt.Errorf("%s: %w", locator, ErrNotInIndex)
	}
	return hash, nil
}

func (s *FileIndex) Put(locator string, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[locator] != hash {
		s.entries[locator] = hash
		s.dirty = true
	}
	return nil
}

func (s *FileIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Save writes the index to disk if it changed since it was opened or last
// saved.
func (s *FileIndex) Save() error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	// Copy the map to marshal it outside the lock
	snapshot := maps.Clone(s.entries)
	s.dirty = false
	s.mu.Unlock()

	if err := s.write(snapshot); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *FileIndex) write(snapshot map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating locator index: %w", err)
	}

	if err := json.NewEncoder(file).Encode(snapshot); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encoding locator index: %w", err)
	}

	// Fsync before close
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
