// Package syncer brings a version's artifacts onto disk: the client jar,
// libraries, natives, the logging config and the assets.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"golang.org/x/sync/errgroup"

	"copper/internal/paths"
	"copper/internal/profile"
	"copper/internal/rules"
	"copper/internal/store"
)

// DefaultConcurrency caps in-flight artifact tasks when Options sets none.
const DefaultConcurrency = 32

// State is the lifecycle of one synchronization run.
type State int32

const (
	Resolved State = iota
	Syncing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Syncing:
		return "syncing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Options configure a Syncer.
type Options struct {
	Store    *store.Store
	Profile  *profile.Profile
	Dirs     paths.Dirs
	Platform rules.Platform
	Features rules.Features
	// Concurrency caps the number of artifacts in flight.
	Concurrency int
	// AssetsURL is the host asset objects are fetched from.
	AssetsURL string
	// Natives receives extracted native libraries. It defaults to the
	// version's natives directory.
	Natives billy.Filesystem
	Logger  *slog.Logger
}

// Result is what a successful run leaves behind for the argument assembler.
type Result struct {
	Classpath     []string
	NativesDir    string
	AssetsRoot    string
	GameAssets    string
	AssetIndexID  string
	AssetIndex    *profile.AssetIndex
	LoggingConfig string
	Fetched       int
	Reused        int
}

// ClasspathString joins the classpath with the platform separator.
func (r *Result) ClasspathString(p rules.Platform) string {
	return strings.Join(r.Classpath, p.ClasspathSeparator())
}

// Syncer synchronizes one resolved profile.
type Syncer struct {
	opts    Options
	logger  *slog.Logger
	natives billy.Filesystem
	state   atomic.Int32

	fetched atomic.Int64
	reused  atomic.Int64
}

// New validates the options and returns a Syncer in the Resolved state.
func New(opts Options) (*Syncer, error) {
	if opts.Store == nil {
		return nil, errors.New("syncer: no store")
	}
	if opts.Profile == nil {
		return nil, errors.New("syncer: no profile")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	natives := opts.Natives
	if natives == nil {
		natives = osfs.New(opts.Dirs.NativesFor(opts.Profile.ID))
	}
	return &Syncer{
		opts:    opts,
		logger:  logger.With("version", opts.Profile.ID),
		natives: natives,
	}, nil
}

// State reports where the run is.
func (s *Syncer) State() State {
	return State(s.state.Load())
}

func (s *Syncer) setState(st State) {
	s.state.Store(int32(st))
	s.logger.Debug("sync state", "state", st)
}

// Sync fetches the asset index, then every planned artifact with at most
// Concurrency in flight. Individual failures do not stop the others; they are
// gathered into a *SyncError once all tasks have finished.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	indexArtifact := s.assetIndexArtifact()
	index, err := s.assetIndex(ctx, indexArtifact)
	if err != nil {
		s.setState(Failed)
		return nil, &SyncError{Failures: []Failure{{Artifact: indexArtifact, Err: err}}}
	}

	plan := s.Plan(index)
	s.setState(Syncing)
	s.logger.Info("synchronizing", "artifacts", len(plan), "concurrency", s.opts.Concurrency)

	var (
		mu       sync.Mutex
		failures []Failure
	)
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for _, a := range plan {
		g.Go(func() error {
			if err := s.syncArtifact(ctx, a); err != nil {
				s.logger.Warn("artifact failed", "kind", a.Kind, "name", a.Name, "error", err)
				mu.Lock()
				failures = append(failures, Failure{Artifact: a, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		slices.SortFunc(failures, func(a, b Failure) int {
			return strings.Compare(a.Artifact.Destination, b.Artifact.Destination)
		})
		s.setState(Failed)
		return nil, &SyncError{Failures: failures}
	}

	result := &Result{
		Classpath:    s.Classpath(),
		NativesDir:   s.opts.Dirs.NativesFor(s.opts.Profile.ID),
		AssetsRoot:   s.opts.Dirs.Assets,
		GameAssets:   s.opts.Dirs.Assets,
		AssetIndexID: indexArtifact.Name,
		AssetIndex:   index,
		Fetched:      int(s.fetched.Load()),
		Reused:       int(s.reused.Load()),
	}
	if index.Virtual || index.MapToResources {
		result.GameAssets = s.virtualRoot()
	}
	if l := s.opts.Profile.Logging; l != nil && l.Client != nil {
		result.LoggingConfig = filepath.Join(s.opts.Dirs.LogConfigs, l.Client.File.ID)
	}
	s.setState(Ready)
	s.logger.Info("synchronized", "fetched", result.Fetched, "reused", result.Reused)
	return result, nil
}

func (s *Syncer) assetIndex(ctx context.Context, a Artifact) (*profile.AssetIndex, error) {
	if a.Locator == "" {
		return &profile.AssetIndex{}, nil
	}
	if a.err != nil {
		return nil, a.err
	}
	if err := s.ensure(ctx, a); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.Destination)
	if err != nil {
		return nil, err
	}
	var index profile.AssetIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("decoding asset index %s: %w", a.Name, err)
	}
	return &index, nil
}

func (s *Syncer) syncArtifact(ctx context.Context, a Artifact) error {
	if a.err != nil {
		return a.err
	}
	if err := s.ensure(ctx, a); err != nil {
		return err
	}
	if a.Kind != KindNative {
		return nil
	}
	extracted, err := ExtractNatives(a.Destination, s.natives, s.opts.Platform.NativeExtension())
	if err != nil {
		return err
	}
	for _, name := range extracted {
		s.logger.Debug("extracted native", "library", a.Name, "file", name)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
