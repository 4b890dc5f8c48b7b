package storage

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"sort"
	"sync"
	"time"
)

// Assert that InMemoryStorage implements the Storage interface
var _ Storage = (*InMemoryStorage)(nil)

type memoryBlob struct {
	data     []byte
	modified time.Time
}

type InMemoryStorage struct {
	mu    sync.RWMutex
	store map[string]memoryBlob
	now   func() time.Time
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		store: make(map[string]memoryBlob),
		now:   time.Now,
	}
}

func (s *InMemoryStorage) Has(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.store[hash]
	return ok
}

func (s *InMemoryStorage) Get(hash string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.store[hash]
	if !ok {
		return nil, fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	if Hash(blob.data) != hash {
		return nil, fmt.Errorf("%s: %w", hash, ErrCorrupted)
	}
	return io.NopCloser(bytes.NewReader(blob.data)), nil
}

func (s *InMemoryStorage) Store(r io.Reader) (Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Record{}, err
	}
	hash := Hash(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[hash] = memoryBlob{data: data, modified: s.now()}
	return Record{Hash: hash, Size: int64(len(data))}, nil
}

func (s *InMemoryStorage) StoreAt(hash string, r io.Reader) (bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return false, err
	}
	if Hash(data) != hash {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[hash] = memoryBlob{data: data, modified: s.now()}
	return true, nil
}

// Corrupt replaces the bytes stored under hash without updating the hash.
// Used by tests to exercise integrity failures.
func (s *InMemoryStorage) Corrupt(hash string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[hash] = memoryBlob{data: data, modified: s.now()}
}

func (s *InMemoryStorage) Size(hash string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.store[hash]
	if !ok {
		return 0, false
	}
	return int64(len(blob.data)), true
}

func (s *InMemoryStorage) ModTime(hash string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.store[hash]
	if !ok {
		return time.Time{}, false
	}
	return blob.modified, true
}

func (s *InMemoryStorage) Remove(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.store[hash]; !ok {
		return fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	delete(s.store, hash)
	return nil
}

func (s *InMemoryStorage) List(batch int) iter.Seq[[]string] {
	if batch <= 0 {
		batch = 1000
	}
	s.mu.RLock()
	hashes := make([]string, 0, len(s.store))
	for hash := range s.store {
		hashes = append(hashes, hash)
	}
	s.mu.RUnlock()
	sort.Strings(hashes)

	return func(yield func([]string) bool) {
		for start := 0; start < len(hashes); start += batch {
			end := min(start+batch, len(hashes))
			if !yield(hashes[start:end]) {
				return
			}
		}
	}
}
