package syncer

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"copper/internal/profile"
)

// Kind classifies planned artifacts.
type Kind string

const (
	KindAssetIndex   Kind = "asset-index"
	KindClient       Kind = "client"
	KindLibrary      Kind = "library"
	KindNative       Kind = "native"
	KindLogging      Kind = "logging"
	KindAsset        Kind = "asset"
	KindVirtualAsset Kind = "virtual-asset"
)

// Artifact is one file to synchronize: where it comes from, the SHA-1 it must
// have, and where it goes.
type Artifact struct {
	Kind        Kind
	Name        string
	Locator     string
	SHA1        string
	Destination string

	// err is set when the artifact cannot be placed; the task fails with it.
	err error
}

// place joins a document supplied relative path onto root, refusing paths
// that would leave it.
func place(root, rel string) (string, error) {
	native := filepath.FromSlash(rel)
	if !filepath.IsLocal(native) {
		return "", fmt.Errorf("%q: %w", rel, ErrUnsafePath)
	}
	return filepath.Join(root, native), nil
}

func (s *Syncer) assetIndexArtifact() Artifact {
	idx := s.opts.Profile.AssetIndex
	id := idx.ID
	if id == "" {
		id = s.opts.Profile.Assets
	}
	dest, err := place(s.opts.Dirs.AssetIndexes, id+".json")
	return Artifact{
		Kind:        KindAssetIndex,
		Name:        id,
		Locator:     idx.URL,
		SHA1:        idx.SHA1,
		Destination: dest,
		err:         err,
	}
}

// Plan lists every artifact the launch needs, assets included. Artifacts that
// share a destination are listed once. Artifacts whose destination would
// fall outside its directory are listed with an error and fail when synced.
func (s *Syncer) Plan(index *profile.AssetIndex) []Artifact {
	p := s.opts.Profile
	var plan []Artifact
	seen := make(map[string]bool)
	add := func(a Artifact, root, rel string) {
		a.Destination, a.err = place(root, rel)
		if a.err == nil {
			if seen[a.Destination] {
				return
			}
			seen[a.Destination] = true
		}
		plan = append(plan, a)
	}

	add(Artifact{
		Kind:    KindClient,
		Name:    p.ID,
		Locator: p.Downloads.Client.URL,
		SHA1:    p.Downloads.Client.SHA1,
	}, s.opts.Dirs.Versions, path.Join(p.ID, p.ID+".jar"))

	for _, lib := range s.activeLibraries() {
		if a := lib.Downloads.Artifact; a != nil {
			add(Artifact{
				Kind:    KindLibrary,
				Name:    lib.Name,
				Locator: a.URL,
				SHA1:    a.SHA1,
			}, s.opts.Dirs.Libraries, libraryPath(lib, *a, ""))
		}
		if classifier, native, ok := lib.NativeClassifier(s.opts.Platform); ok {
			add(Artifact{
				Kind:    KindNative,
				Name:    lib.Name,
				Locator: native.URL,
				SHA1:    native.SHA1,
			}, s.opts.Dirs.Libraries, libraryPath(lib, native, classifier))
		}
	}

	if p.Logging != nil && p.Logging.Client != nil {
		file := p.Logging.Client.File
		add(Artifact{
			Kind:    KindLogging,
			Name:    file.ID,
			Locator: file.URL,
			SHA1:    file.SHA1,
		}, s.opts.Dirs.LogConfigs, file.ID)
	}

	if index != nil {
		base := strings.TrimSuffix(s.opts.AssetsURL, "/")
		virtual := index.Virtual || index.MapToResources
		for _, name := range sortedKeys(index.Objects) {
			obj := index.Objects[name]
			rel := obj.RelativePath()
			add(Artifact{
				Kind:    KindAsset,
				Name:    name,
				Locator: base + "/" + rel,
				SHA1:    obj.Hash,
			}, s.opts.Dirs.AssetObjects, rel)
			if virtual {
				add(Artifact{
					Kind:    KindVirtualAsset,
					Name:    name,
					Locator: base + "/" + rel,
					SHA1:    obj.Hash,
				}, s.virtualRoot(), name)
			}
		}
	}

	return plan
}

// Classpath lists the active libraries' jars followed by the client jar.
// Libraries whose path would leave the libraries directory are left out;
// Sync reports them as failures.
func (s *Syncer) Classpath() []string {
	var classpath []string
	seen := make(map[string]bool)
	for _, lib := range s.activeLibraries() {
		if a := lib.Downloads.Artifact; a != nil {
			p, err := place(s.opts.Dirs.Libraries, libraryPath(lib, *a, ""))
			if err == nil && !seen[p] {
				seen[p] = true
				classpath = append(classpath, p)
			}
		}
	}
	return append(classpath, s.opts.Dirs.ClientJar(s.opts.Profile.ID))
}

func (s *Syncer) activeLibraries() []profile.Library {
	var active []profile.Library
	for _, lib := range s.opts.Profile.Libraries {
		if lib.Active(s.opts.Platform, s.opts.Features) {
			active = append(active, lib)
		}
	}
	return active
}

func (s *Syncer) virtualRoot() string {
	return filepath.Join(s.opts.Dirs.Assets, "virtual", s.assetIndexArtifact().Name)
}

// libraryPath is the download's path below the libraries directory, derived
// from the maven name when the download carries none.
func libraryPath(lib profile.Library, d profile.Download, classifier string) string {
	if d.Path != "" {
		return d.Path
	}
	return MavenPath(lib.Name, classifier)
}

// MavenPath converts "group:artifact:version[:classifier]" into the
// repository layout group/path/artifact/version/artifact-version[-classifier].jar.
// An explicit classifier argument overrides the one in the name.
func MavenPath(name, classifier string) string {
	parts := strings.Split(name, ":")
	if len(parts) < 3 {
		return path.Clean(strings.ReplaceAll(name, ":", "/")) + ".jar"
	}
	group, artifact, version := parts[0], parts[1], parts[2]
	if classifier == "" && len(parts) > 3 {
		classifier = parts[3]
	}
	file := artifact + "-" + version
	if classifier != "" {
		file += "-" + classifier
	}
	return path.Join(strings.ReplaceAll(group, ".", "/"), artifact, version, file+".jar")
}
