package locator

import (
	"fmt"
	"sync"
)

// Assert that InMemoryIndex implements the Index interface
var _ Index = (*InMemoryIndex)(nil)

type InMemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{
		entries: make(map[string]string),
	}
}

func (s *InMemoryIndex) Get(locator string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.entries[locator]
	if !ok {
		return "", fmt.Errorf("%s: %w", locator, ErrNotInIndex)
	}
	return hash, nil
}

func (s *InMemoryIndex) Put(locator string, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[locator] = hash
	return nil
}

func (s *InMemoryIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
