package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"copper/internal/config"
	"copper/internal/documents"
	"copper/internal/fetch"
	"copper/internal/locator"
	"copper/internal/paths"
	"copper/internal/profile"
	"copper/internal/rules"
	"copper/internal/storage"
	"copper/internal/store"
	"copper/internal/syncer"
)

// ConfigFileName is looked up in the config directory when --config is not set.
const ConfigFileName = "config.yaml"

// env is everything a command needs, built once per invocation.
type env struct {
	config   *config.Config
	dirs     paths.Dirs
	logger   *slog.Logger
	platform rules.Platform
	storage  *storage.FileSystemStorage
	index    *locator.FileIndex
	store    *store.Store
	docs     *documents.Documents
	out      *OutputFormatter
}

func openEnv(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*env, error) {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	dirs, err := paths.Default()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "locating directories", err)
	}
	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = filepath.Join(dirs.Config, ConfigFileName)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading config", err)
	}
	if cfg.Cache != "" {
		dirs = paths.New(cfg.Cache, dirs.Config)
	}
	if cfg.Instances != "" {
		dirs.Instances = cfg.Instances
	}
	if err := dirs.Ensure(); err != nil {
		return nil, WrapExitError(ExitCommandError, "preparing directories", err)
	}
	logger.Debug("directories", "cache", dirs.Cache, "config", dirs.Config)

	blobs, err := storage.NewFileSystemStorage(dirs.Store, cfg.VerifyReads())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening store", err)
	}
	index := locator.OpenFileIndex(filepath.Join(dirs.Store, locator.IndexFileName), logger)

	fetcher, err := newFetcher(ctx, cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "configuring transport", err)
	}
	st := store.New(blobs, index, fetcher, logger)

	return &env{
		config:   cfg,
		dirs:     dirs,
		logger:   logger,
		platform: rules.HostPlatform(),
		storage:  blobs,
		index:    index,
		store:    st,
		docs:     documents.New(st, cfg.ManifestURL, logger),
		out:      &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (fetch.Fetcher, error) {
	mux := fetch.NewMux()
	mux.Handle(fetch.NewHTTPFetcher(nil, cfg.Launcher.Name+"/"+cfg.Launcher.Version), "http", "https")
	if cfg.S3Region != "" {
		s3, err := fetch.NewDefaultS3Fetcher(ctx, cfg.S3Region)
		if err != nil {
			return nil, err
		}
		mux.Handle(s3, "s3")
		logger.Debug("s3 mirror enabled", "region", cfg.S3Region)
	}
	return mux, nil
}

// close persists the locator index. It runs after failed commands too, so
// whatever was fetched stays addressable.
func (e *env) close() {
	if err := e.index.Save(); err != nil {
		e.logger.Error("saving locator index", "path", e.index.Path(), "error", err)
	}
}

// resolve finds a version by id, or "latest"/"snapshot", and loads its
// profile.
func (e *env) resolve(ctx context.Context, version string) (*profile.Profile, error) {
	manifest, err := e.docs.VersionManifest(ctx)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "loading version manifest", err)
	}
	entry, err := manifest.Resolve(version)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "resolving version", err)
	}
	p, err := e.docs.Profile(ctx, entry)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "loading profile", err)
	}
	return p, nil
}

// synchronize brings every artifact of p onto disk.
func (e *env) synchronize(ctx context.Context, p *profile.Profile, features rules.Features) (*syncer.Result, error) {
	s, err := syncer.New(syncer.Options{
		Store:       e.store,
		Profile:     p,
		Dirs:        e.dirs,
		Platform:    e.platform,
		Features:    features,
		Concurrency: e.config.Concurrency,
		AssetsURL:   e.config.AssetsURL,
		Logger:      e.logger,
	})
	if err != nil {
		return nil, err
	}
	result, err := s.Sync(ctx)
	if err != nil {
		var syncErr *syncer.SyncError
		if errors.As(err, &syncErr) {
			details := make([]string, len(syncErr.Failures))
			for i, f := range syncErr.Failures {
				details[i] = f.Error()
			}
			e.out.Error(fmt.Sprintf("%d artifact(s) of %s could not be synchronized", len(details), p.ID), details)
		}
		return nil, WrapExitError(ExitFailure, "synchronizing "+p.ID, err)
	}
	return result, nil
}
