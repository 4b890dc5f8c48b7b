// Package documents fetches the version manifest and version profiles. These
// carry no content hash, so cached copies are validated by time instead.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"copper/internal/profile"
	"copper/internal/storage"
	"copper/internal/store"
)

// DefaultManifestURL is where the version manifest is published.
const DefaultManifestURL = "https://launchermeta.mojang.com/mc/game/version_manifest.json"

var (
	ErrManifestUnavailable = errors.New("version manifest unavailable from network and cache")
	ErrProfileUnavailable  = errors.New("version profile unavailable from network and cache")
)

// IsFresh reports whether a cached copy last written at local is newer than a
// remote document last modified at remote. Equal times count as stale.
func IsFresh(local, remote time.Time) bool {
	return local.After(remote)
}

// Documents fetches manifest and profile documents through a content store.
type Documents struct {
	store       *store.Store
	manifestURL string
	logger      *slog.Logger
}

func New(s *store.Store, manifestURL string, logger *slog.Logger) *Documents {
	if manifestURL == "" {
		manifestURL = DefaultManifestURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Documents{store: s, manifestURL: manifestURL, logger: logger}
}

// VersionManifest always tries the network first, since the manifest's own
// freshness is unknown, and falls back to the last copy fetched.
func (d *Documents) VersionManifest(ctx context.Context) (*profile.Manifest, error) {
	var manifest profile.Manifest

	_, rec, err := d.store.ForceRefresh(ctx, d.manifestURL)
	if err == nil {
		if err = d.store.ReadJSON(rec, &manifest); err == nil {
			return &manifest, nil
		}
	}
	d.logger.Warn("fetching version manifest, using cached copy", "locator", d.manifestURL, "error", err)

	_, rec, cacheErr := d.store.GetByLocator(d.manifestURL)
	if cacheErr == nil {
		if cacheErr = d.store.ReadJSON(rec, &manifest); cacheErr == nil {
			return &manifest, nil
		}
	}
	return nil, fmt.Errorf("%w: network: %v, cache: %v", ErrManifestUnavailable, err, cacheErr)
}

// Profile returns the profile for entry, reusing the cached copy only when it
// was written after the entry's modification time and still decodes.
func (d *Documents) Profile(ctx context.Context, entry profile.Entry) (*profile.Profile, error) {
	var p profile.Profile

	cached, found, fresh := d.cached(entry)
	if found && fresh {
		err := d.store.ReadJSON(cached, &p)
		if err == nil {
			return &p, nil
		}
		d.logger.Warn("cached profile does not decode, refetching", "version", entry.ID, "error", err)
		found = false
	}

	d.logger.Info("updating profile", "version", entry.ID)
	_, rec, err := d.store.ForceRefresh(ctx, entry.URL)
	if err == nil {
		if err = d.store.ReadJSON(rec, &p); err == nil {
			return &p, nil
		}
	}

	// A stale copy still beats not launching at all.
	if found {
		var stale profile.Profile
		if d.store.ReadJSON(cached, &stale) == nil {
			d.logger.Warn("refreshing profile failed, using stale copy", "version", entry.ID, "error", err)
			return &stale, nil
		}
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrProfileUnavailable, entry.ID, err)
}

// cached returns the stored profile record for entry, whether there is one,
// and whether it is fresh.
func (d *Documents) cached(entry profile.Entry) (storage.Record, bool, bool) {
	_, rec, err := d.store.GetByLocator(entry.URL)
	if err != nil {
		return storage.Record{}, false, false
	}

	remote, err := entry.Modified()
	if err != nil {
		d.logger.Warn("manifest entry has no usable time", "version", entry.ID, "error", err)
		return rec, true, false
	}
	local, ok := d.store.ModTime(rec.Hash)
	if !ok || !IsFresh(local, remote) {
		d.logger.Debug("cached profile is stale", "version", entry.ID, "local", local, "remote", remote)
		return rec, true, false
	}
	return rec, true, true
}
