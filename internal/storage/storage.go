package storage

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"io"
	"iter"
	"time"
)

var (
	ErrNotFound  = errors.New("content not found")
	ErrCorrupted = errors.New("stored content is corrupted")
)

// Storage dictates the requirements for a content-addressed blob store. Blobs are
// addressed by the lowercase hex SHA-512 of their bytes.
type Storage interface {
	Has(hash string) bool
	Get(hash string) (io.ReadCloser, error)
	Store(r io.Reader) (Record, error)
	StoreAt(hash string, r io.Reader) (bool, error)
	Size(hash string) (int64, bool)
	ModTime(hash string) (time.Time, bool)
	Remove(hash string) error
	List(batch int) iter.Seq[[]string]
}

// Record describes a stored blob. Path is empty for storages that do not keep
// blobs on disk.
type Record struct {
	Hash string `json:"hash"`
	Path string `json:"path,omitempty"`
	Size int64  `json:"size"`
}

// Hash returns the content address of data.
func Hash(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

// ValidHash reports whether s looks like a content address.
func ValidHash(s string) bool {
	if len(s) != sha512.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
