package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestInMemoryStorageList(t *testing.T) {
	mem := NewInMemoryStorage()

	// Initially empty
	var list []string
	for chunk := range mem.List(10) {
		list = append(list, chunk...)
	}
	if len(list) != 0 {
		t.Fatalf("Expected empty list, got %d items", len(list))
	}

	rec1, err := mem.Store(bytes.NewReader([]byte("data1")))
	if err != nil {
		t.Fatalf("Store error: %v", err)
	}

	rec2, err := mem.Store(bytes.NewReader([]byte("data2")))
	if err != nil {
		t.Fatalf("Store error: %v", err)
	}

	var chunks int
	for chunk := range mem.List(1) {
		chunks++
		list = append(list, chunk...)
	}
	if len(list) != 2 || chunks != 2 {
		t.Fatalf("Expected 2 items in 2 chunks, got %d items in %d chunks", len(list), chunks)
	}

	found1, found2 := false, false
	for _, a := range list {
		if a == rec1.Hash {
			found1 = true
		} else if a == rec2.Hash {
			found2 = true
		}
	}

	if !found1 || !found2 {
		t.Fatalf("List missing expected hashes: %v", list)
	}
}

func TestInMemoryStorageCorrupt(t *testing.T) {
	mem := NewInMemoryStorage()
	rec, err := mem.Store(bytes.NewReader([]byte("original")))
	if err != nil {
		t.Fatal(err)
	}

	mem.Corrupt(rec.Hash, []byte("bit rot"))
	if _, err := mem.Get(rec.Hash); !errors.Is(err, ErrCorrupted) {
		t.Fatalf("expected ErrCorrupted, got %v", err)
	}

	if err := mem.Remove(rec.Hash); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := mem.Get(rec.Hash); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
