package locator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFileIndexPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), IndexFileName)

	idx := OpenFileIndex(path, nil)
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d entries", idx.Len())
	}
	if _, err := idx.Get("https://example.com/a"); !errors.Is(err, ErrNotInIndex) {
		t.Fatalf("expected ErrNotInIndex, got %v", err)
	}

	// Two locators may share one hash
	if err := idx.Put("https://example.com/a", "aaaa"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Put("https://mirror.example.com/a", "aaaa"); err != nil {
		t.Fatal(err)
	}
	if err := idx.Put("https://example.com/b", "bbbb"); err != nil {
		t.Fatal(err)
	}

	// Nothing is written until Save
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no index file before Save, got %v", err)
	}
	if err := idx.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("index is not a flat object: %v", err)
	}
	if len(flat) != 3 || flat["https://mirror.example.com/a"] != "aaaa" {
		t.Fatalf("unexpected index contents: %v", flat)
	}

	reopened := OpenFileIndex(path, nil)
	hash, err := reopened.Get("https://example.com/b")
	if err != nil || hash != "bbbb" {
		t.Fatalf("expected bbbb, got %q (%v)", hash, err)
	}
}

func TestFileIndexMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), IndexFileName)
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	idx := OpenFileIndex(path, nil)
	if idx.Len() != 0 {
		t.Fatalf("expected malformed index to start empty, got %d", idx.Len())
	}
}

func TestFileIndexConcurrentPut(t *testing.T) {
	path := filepath.Join(t.TempDir(), IndexFileName)
	idx := OpenFileIndex(path, nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx.Put(fmt.Sprintf("https://example.com/%d", i%10), fmt.Sprintf("hash-%d", i))
		}(i)
	}
	wg.Wait()

	if idx.Len() != 10 {
		t.Fatalf("expected 10 entries, got %d", idx.Len())
	}
	if err := idx.Save(); err != nil {
		t.Fatal(err)
	}
}
