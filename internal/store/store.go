// Package store ties the content-addressed blob storage, the locator index
// and the network together: content is looked up by hash, then by locator,
// and only downloaded when neither lookup produces valid bytes.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"copper/internal/fetch"
	"copper/internal/locator"
	"copper/internal/storage"
)

// Store is the content store a launch borrows. It does not own persistence of
// the locator index; whoever opened the index saves it.
type Store struct {
	storage storage.Storage
	index   locator.Index
	fetcher fetch.Fetcher
	logger  *slog.Logger
	flight  singleflight.Group
}

// Pather is implemented by storages that keep blobs as files.
type Pather interface {
	Path(hash string) string
}

func New(s storage.Storage, idx locator.Index, f fetch.Fetcher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage: s,
		index:   idx,
		fetcher: f,
		logger:  logger,
	}
}

// Storage returns the underlying blob storage.
func (s *Store) Storage() storage.Storage {
	return s.storage
}

// Put stores data and returns its record.
func (s *Store) Put(data []byte) (storage.Record, error) {
	return s.storage.Store(bytes.NewReader(data))
}

// Get reads the bytes stored under hash. Errors wrap storage.ErrNotFound or
// storage.ErrCorrupted.
func (s *Store) Get(hash string) ([]byte, storage.Record, error) {
	r, err := s.storage.Get(hash)
	if err != nil {
		return nil, storage.Record{}, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, storage.Record{}, fmt.Errorf("reading %s: %w", hash, err)
	}
	return data, s.record(hash, int64(len(data))), nil
}

// GetByLocator resolves locator through the index and reads the content.
// Errors wrap locator.ErrNotInIndex when the locator was never fetched.
func (s *Store) GetByLocator(loc string) ([]byte, storage.Record, error) {
	hash, err := s.index.Get(loc)
	if err != nil {
		return nil, storage.Record{}, err
	}
	return s.Get(hash)
}

// ModTime reports when the blob for hash was last written.
func (s *Store) ModTime(hash string) (time.Time, bool) {
	return s.storage.ModTime(hash)
}

// FetchOrDownload returns the content for locator, trying in order the
// expected hash (when not empty), the locator index, and the network. Only a
// download without an expected hash records a new locator mapping. Missing
// and corrupted local copies both fall through to the next step; network
// failure is the only hard failure, besides downloaded bytes that contradict
// the expected hash.
func (s *Store) FetchOrDownload(ctx context.Context, expectedHash, loc string) ([]byte, storage.Record, error) {
	if expectedHash != "" {
		data, rec, err := s.Get(expectedHash)
		if err == nil {
			return data, rec, nil
		}
		s.logMiss(err, "hash", expectedHash)
	}

	data, rec, err := s.GetByLocator(loc)
	if err == nil {
		return data, rec, nil
	}
	s.logMiss(err, "locator", loc)

	return s.download(ctx, expectedHash, loc, false)
}

// ForceRefresh downloads locator unconditionally, stores the bytes and points
// the index at them.
func (s *Store) ForceRefresh(ctx context.Context, loc string) ([]byte, storage.Record, error) {
	return s.download(ctx, "", loc, true)
}

type downloadResult struct {
	data []byte
	rec  storage.Record
}

// download collapses concurrent downloads of the same locator into one
// request. Forced refreshes share a separate key so they never piggyback on
// a plain download that started earlier.
func (s *Store) download(ctx context.Context, expectedHash, loc string, force bool) ([]byte, storage.Record, error) {
	key := "fetch\x00" + expectedHash + "\x00" + loc
	if force {
		key = "force\x00" + loc
	}

	v, err, _ := s.flight.Do(key, func() (any, error) {
		s.logger.Debug("downloading", "locator", loc)
		data, err := s.fetcher.Fetch(ctx, loc)
		if err != nil {
			return nil, err
		}

		if expectedHash != "" {
			ok, err := s.storage.StoreAt(expectedHash, bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("storing %s: %w", loc, err)
			}
			if !ok {
				return nil, fmt.Errorf("%s: downloaded content hashes to %s, want %s: %w", loc, storage.Hash(data), expectedHash, storage.ErrCorrupted)
			}
			return downloadResult{data: data, rec: s.record(expectedHash, int64(len(data)))}, nil
		}

		rec, err := s.Put(data)
		if err != nil {
			return nil, fmt.Errorf("storing %s: %w", loc, err)
		}
		if err := s.index.Put(loc, rec.Hash); err != nil {
			return nil, fmt.Errorf("indexing %s: %w", loc, err)
		}
		return downloadResult{data: data, rec: rec}, nil
	})
	if err != nil {
		return nil, storage.Record{}, err
	}
	res := v.(downloadResult)
	return res.data, res.rec, nil
}

// ReadJSON decodes the stored content of rec into v.
func (s *Store) ReadJSON(rec storage.Record, v any) error {
	data, _, err := s.Get(rec.Hash)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", rec.Hash, err)
	}
	return nil
}

func (s *Store) record(hash string, size int64) storage.Record {
	rec := storage.Record{Hash: hash, Size: size}
	if p, ok := s.storage.(Pather); ok {
		rec.Path = p.Path(hash)
	}
	return rec
}

func (s *Store) logMiss(err error, key, value string) {
	switch {
	case errors.Is(err, storage.ErrCorrupted):
		s.logger.Warn("stored copy is corrupted, refetching", key, value)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, locator.ErrNotInIndex):
		s.logger.Debug("not in store", key, value)
	default:
		s.logger.Warn("reading store", key, value, "error", err)
	}
}
