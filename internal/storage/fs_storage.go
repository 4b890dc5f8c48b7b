package storage

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"time"
)

// FileSystemStorage implements the Storage interface by saving blobs to disk.
type FileSystemStorage struct {
	baseDir string
	verify  bool
}

// Assert that FileSystemStorage implements the Storage interface
var _ Storage = (*FileSystemStorage)(nil)

// NewFileSystemStorage creates the storage rooted at baseDir. When verify is
// set, every Get re-hashes the blob before handing it out.
func NewFileSystemStorage(baseDir string, verify bool) (*FileSystemStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", baseDir, err)
	}
	return &FileSystemStorage{
		baseDir: baseDir,
		verify:  verify,
	}, nil
}

// Dir returns the root directory of the storage.
func (s *FileSystemStorage) Dir() string {
	return s.baseDir
}

// Path converts a hash (e.g., "aabbcc...") to a structured path like
// "aa/bb/aabbcc...".
func (s *FileSystemStorage) Path(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(s.baseDir, hash)
	}
	return filepath.Join(s.baseDir, hash[0:2], hash[2:4], hash)
}

func (s *FileSystemStorage) Has(hash string) bool {
	_, err := os.Stat(s.Path(hash))
	return err == nil
}

func (s *FileSystemStorage) Get(hash string) (io.ReadCloser, error) {
	file, err := os.Open(s.Path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !s.verify {
		return file, nil
	}

	hasher := sha512.New()
	if _, err := io.Copy(hasher, file); err != nil {
		file.Close()
		return nil, err
	}
	if hex.EncodeToString(hasher.Sum(nil)) != hash {
		file.Close()
		return nil, fmt.Errorf("%s: %w", hash, ErrCorrupted)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}
	return file, nil
}

func (s *FileSystemStorage) Store(r io.Reader) (Record, error) {
	tmpName, hash, size, err := s.spool(r)
	if err != nil {
		return Record{}, err
	}
	defer os.Remove(tmpName)

	if err := s.commit(tmpName, hash); err != nil {
		return Record{}, err
	}
	return Record{Hash: hash, Path: s.Path(hash), Size: size}, nil
}

func (s *FileSystemStorage) StoreAt(hash string, r io.Reader) (bool, error) {
	tmpName, calculated, _, err := s.spool(r)
	if err != nil {
		return false, err
	}
	defer os.Remove(tmpName)

	if calculated != hash {
		return false, nil
	}
	if err := s.commit(tmpName, hash); err != nil {
		return false, err
	}
	return true, nil
}

// spool copies r into a temporary file in the base directory, hashing it on
// the way.
func (s *FileSystemStorage) spool(r io.Reader) (string, string, int64, error) {
	tmpFile, err := os.CreateTemp(s.baseDir, "upload-*")
	if err != nil {
		return "", "", 0, err
	}

	hasher := sha512.New()
	size, err := io.Copy(tmpFile, io.TeeReader(r, hasher))
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", "", 0, err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", "", 0, err
	}
	return tmpFile.Name(), hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// commit moves the spooled file to its final location. An existing blob with
// the same hash is overwritten, which is harmless since the contents are
// identical; it also refreshes the blob's modification time.
func (s *FileSystemStorage) commit(tmpName, hash string) error {
	finalPath := s.Path(hash)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return err
	}
	return os.Rename(tmpName, finalPath)
}

func (s *FileSystemStorage) Size(hash string) (int64, bool) {
	stat, err := os.Stat(s.Path(hash))
	if err != nil {
		return 0, false
	}
	return stat.Size(), true
}

func (s *FileSystemStorage) ModTime(hash string) (time.Time, bool) {
	stat, err := os.Stat(s.Path(hash))
	if err != nil {
		return time.Time{}, false
	}
	return stat.ModTime(), true
}

func (s *FileSystemStorage) Remove(hash string) error {
	err := os.Remove(s.Path(hash))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	return err
}

// List yields the hashes of every stored blob in batches of at most batch
// entries. Files that are not blobs (the locator index, temp files) are skipped.
func (s *FileSystemStorage) List(batch int) iter.Seq[[]string] {
	if batch <= 0 {
		batch = 1000
	}
	return func(yield func([]string) bool) {
		var chunk []string
		stopped := false
		filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			if !ValidHash(name) {
				return nil
			}
			chunk = append(chunk, name)
			if len(chunk) >= batch {
				if !yield(chunk) {
					stopped = true
					return filepath.SkipAll
				}
				chunk = nil
			}
			return nil
		})
		if !stopped && len(chunk) > 0 {
			yield(chunk)
		}
	}
}
