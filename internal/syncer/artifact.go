package syncer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ensure leaves the artifact at its destination with the expected SHA-1.
// A destination that already validates is left alone. Otherwise the bytes come
// from the store, and a store copy that fails validation is refreshed from
// the network once before giving up.
func (s *Syncer) ensure(ctx context.Context, a Artifact) error {
	ok, err := fileMatches(a.Destination, a.SHA1)
	if err != nil {
		return err
	}
	if ok {
		s.reused.Add(1)
		return nil
	}

	data, _, err := s.opts.Store.FetchOrDownload(ctx, "", a.Locator)
	if err != nil {
		return err
	}
	if !matches(data, a.SHA1) {
		s.logger.Debug("refreshing mismatched content", "locator", a.Locator)
		data, _, err = s.opts.Store.ForceRefresh(ctx, a.Locator)
		if err != nil {
			return err
		}
		if !matches(data, a.SHA1) {
			return fmt.Errorf("%s: %w", a.Locator, ErrChecksumMismatch)
		}
	}

	if err := writeFile(a.Destination, data); err != nil {
		return err
	}
	s.fetched.Add(1)
	return nil
}

// matches compares data against an expected SHA-1. An artifact without one
// accepts any content.
func matches(data []byte, expected string) bool {
	if expected == "" {
		return true
	}
	sum := sha1.Sum(data)
	return strings.EqualFold(hex.EncodeToString(sum[:]), expected)
}

func fileMatches(path, expected string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()
	if expected == "" {
		return true, nil
	}

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return strings.EqualFold(hex.EncodeToString(h.Sum(nil)), expected), nil
}

// writeFile replaces path with data through a temporary file in the same
// directory, so readers never observe a partial file.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".sync-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
