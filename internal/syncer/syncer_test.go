package syncer

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/klauspost/compress/zip"

	"copper/internal/fetch"
	"copper/internal/locator"
	"copper/internal/paths"
	"copper/internal/profile"
	"copper/internal/rules"
	"copper/internal/storage"
	"copper/internal/store"
)

const host = "https://example.test"

var linux = rules.Platform{OS: rules.Linux, Arch: rules.X86, Bits: 64}

type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	calls    map[string]int
}

func (f *fakeFetcher) Fetch(ctx context.Context, loc string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[loc]++
	data, ok := f.payloads[loc]
	if !ok {
		return nil, &fetch.NetworkError{Locator: loc, Err: errors.New("no route to host")}
	}
	return data, nil
}

func (f *fakeFetcher) count(loc string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[loc]
}

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

type env struct {
	fetcher *fakeFetcher
	dirs    paths.Dirs
	store   *store.Store
	natives billy.Filesystem
	profile *profile.Profile
}

// newEnv serves a client jar and an asset index holding the given objects.
func newEnv(t *testing.T, objects map[string][]byte) *env {
	t.Helper()
	e := &env{
		fetcher: &fakeFetcher{payloads: make(map[string][]byte), calls: make(map[string]int)},
		dirs:    paths.New(t.TempDir(), t.TempDir()),
		natives: memfs.New(),
	}
	e.store = store.New(storage.NewInMemoryStorage(), locator.NewInMemoryIndex(), e.fetcher, nil)

	index := profile.AssetIndex{Objects: make(map[string]profile.Object)}
	for name, data := range objects {
		obj := profile.Object{Hash: sha1Hex(data), Size: int64(len(data))}
		index.Objects[name] = obj
		e.fetcher.payloads[host+"/assets/"+obj.RelativePath()] = data
	}
	indexData, err := json.Marshal(index)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	e.fetcher.payloads[host+"/indexes/1.json"] = indexData

	client := []byte("client jar")
	e.fetcher.payloads[host+"/client.jar"] = client

	e.profile = &profile.Profile{
		ID:     "1.0",
		Assets: "1",
		AssetIndex: profile.Download{
			ID: "1", URL: host + "/indexes/1.json", SHA1: sha1Hex(indexData),
		},
		Downloads: profile.Downloads{
			Client: profile.Download{URL: host + "/client.jar", SHA1: sha1Hex(client)},
		},
	}
	return e
}

// library registers a jar download and returns the library describing it.
func (e *env) library(name string, data []byte, tree rules.Tree) profile.Library {
	url := host + "/libraries/" + name + ".jar"
	e.fetcher.payloads[url] = data
	return profile.Library{
		Name: name,
		Downloads: profile.LibraryDownloads{
			Artifact: &profile.Download{Path: name + ".jar", URL: url, SHA1: sha1Hex(data)},
		},
		Rules: tree,
	}
}

func (e *env) syncer(t *testing.T) *Syncer {
	t.Helper()
	s, err := New(Options{
		Store:     e.store,
		Profile:   e.profile,
		Dirs:      e.dirs,
		Platform:  linux,
		AssetsURL: host + "/assets",
		Natives:   e.natives,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range sortedKeys(entries) {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip Create: %v", err)
		}
		if _, err := f.Write([]byte(entries[name])); err != nil {
			t.Fatalf("zip Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip Close: %v", err)
	}
	return buf.Bytes()
}

func TestSyncAsset(t *testing.T) {
	asset := []byte("creeper.png")
	e := newEnv(t, map[string][]byte{"textures/creeper.png": asset})
	s := e.syncer(t)
	if s.State() != Resolved {
		t.Fatalf("expected resolved, got %s", s.State())
	}

	result, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if s.State() != Ready {
		t.Fatalf("expected ready, got %s", s.State())
	}

	hash := sha1Hex(asset)
	dest := filepath.Join(e.dirs.AssetObjects, hash[:2], hash)
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading asset: %v", err)
	}
	if !bytes.Equal(data, asset) {
		t.Fatalf("asset content mismatch: %q", data)
	}
	loc := host + "/assets/" + hash[:2] + "/" + hash
	if n := e.fetcher.count(loc); n != 1 {
		t.Fatalf("expected one fetch of the asset, got %d", n)
	}
	if result.AssetIndexID != "1" || result.AssetsRoot != e.dirs.Assets {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, err := os.Stat(filepath.Join(e.dirs.AssetIndexes, "1.json")); err != nil {
		t.Fatalf("asset index not written: %v", err)
	}

	if _, err := e.syncer(t).Sync(context.Background()); err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if n := e.fetcher.count(loc); n != 1 {
		t.Fatalf("valid asset should not be fetched again, got %d fetches", n)
	}
}

func TestSyncSharedObjectFetchedOnce(t *testing.T) {
	e := newEnv(t, map[string][]byte{
		"a.ogg": []byte("same"),
		"b.ogg": []byte("same"),
	})
	if _, err := e.syncer(t).Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	hash := sha1Hex([]byte("same"))
	if n := e.fetcher.count(host + "/assets/" + hash[:2] + "/" + hash); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
}

func TestSyncExcludesInactiveLibrary(t *testing.T) {
	e := newEnv(t, nil)
	windowsOnly := rules.Tree{{Action: rules.Allow, OS: &rules.OSPredicate{Name: rules.Windows}}}
	e.profile.Libraries = []profile.Library{
		e.library("common", []byte("common"), nil),
		e.library("winonly", []byte("winonly"), windowsOnly),
	}

	s := e.syncer(t)
	result, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	want := []string{
		filepath.Join(e.dirs.Libraries, "common.jar"),
		e.dirs.ClientJar("1.0"),
	}
	if !slices.Equal(result.Classpath, want) {
		t.Fatalf("classpath = %v, want %v", result.Classpath, want)
	}
	if n := e.fetcher.count(host + "/libraries/winonly.jar"); n != 0 {
		t.Fatalf("inactive library was fetched %d times", n)
	}
	if _, err := os.Stat(filepath.Join(e.dirs.Libraries, "winonly.jar")); !os.IsNotExist(err) {
		t.Fatalf("inactive library was written: %v", err)
	}
	if got := result.ClasspathString(linux); got != want[0]+":"+want[1] {
		t.Fatalf("ClasspathString = %q", got)
	}
}

func TestSyncKeepsValidFile(t *testing.T) {
	e := newEnv(t, nil)
	dest := e.dirs.ClientJar("1.0")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("client jar"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := e.syncer(t).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n := e.fetcher.count(host + "/client.jar"); n != 0 {
		t.Fatalf("valid client jar was fetched %d times", n)
	}
	if result.Reused == 0 {
		t.Fatalf("expected reused artifacts, got %+v", result)
	}
}

func TestSyncReplacesInvalidFile(t *testing.T) {
	e := newEnv(t, nil)
	dest := e.dirs.ClientJar("1.0")
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dest, []byte("truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := e.syncer(t).Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "client jar" {
		t.Fatalf("client jar not replaced: %q", data)
	}
}

func TestSyncChecksumMismatch(t *testing.T) {
	e := newEnv(t, nil)
	lib := e.library("bad", []byte("served"), nil)
	lib.Downloads.Artifact.SHA1 = sha1Hex([]byte("expected"))
	e.profile.Libraries = []profile.Library{lib}

	_, err := e.syncer(t).Sync(context.Background())
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
	if n := e.fetcher.count(lib.Downloads.Artifact.URL); n != 2 {
		t.Fatalf("expected a fetch and one refresh, got %d", n)
	}
}

func TestSyncAggregatesFailures(t *testing.T) {
	e := newEnv(t, map[string][]byte{"ok.txt": []byte("ok")})
	missing := func(name string) profile.Library {
		return profile.Library{
			Name: name,
			Downloads: profile.LibraryDownloads{
				Artifact: &profile.Download{Path: name + ".jar", URL: host + "/missing/" + name, SHA1: sha1Hex([]byte(name))},
			},
		}
	}
	e.profile.Libraries = []profile.Library{missing("one"), missing("two")}

	s := e.syncer(t)
	_, err := s.Sync(context.Background())
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected *SyncError, got %v", err)
	}
	if len(syncErr.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d: %v", len(syncErr.Failures), err)
	}
	if !errors.Is(err, fetch.ErrNetwork) {
		t.Fatalf("expected the failures to wrap ErrNetwork: %v", err)
	}
	if s.State() != Failed {
		t.Fatalf("expected failed, got %s", s.State())
	}

	hash := sha1Hex([]byte("ok"))
	if _, err := os.Stat(filepath.Join(e.dirs.AssetObjects, hash[:2], hash)); err != nil {
		t.Fatalf("healthy artifacts should still be synchronized: %v", err)
	}
}

func TestSyncAssetIndexUnavailable(t *testing.T) {
	e := newEnv(t, nil)
	e.profile.AssetIndex.URL = host + "/indexes/gone.json"

	s := e.syncer(t)
	if _, err := s.Sync(context.Background()); !errors.Is(err, fetch.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if s.State() != Failed {
		t.Fatalf("expected failed, got %s", s.State())
	}
	if n := e.fetcher.count(host + "/client.jar"); n != 0 {
		t.Fatalf("no artifact should be attempted without an asset index, got %d", n)
	}
}

func TestSyncVirtualAssets(t *testing.T) {
	asset := []byte("sound")
	e := newEnv(t, map[string][]byte{"sounds/step.ogg": asset})
	index := profile.AssetIndex{
		Virtual: true,
		Objects: map[string]profile.Object{"sounds/step.ogg": {Hash: sha1Hex(asset), Size: int64(len(asset))}},
	}
	data, err := json.Marshal(index)
	if err != nil {
		t.Fatal(err)
	}
	e.fetcher.payloads[host+"/indexes/1.json"] = data
	e.profile.AssetIndex.SHA1 = sha1Hex(data)

	result, err := e.syncer(t).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	want := filepath.Join(e.dirs.Assets, "virtual", "1")
	if result.GameAssets != want {
		t.Fatalf("GameAssets = %s, want %s", result.GameAssets, want)
	}
	got, err := os.ReadFile(filepath.Join(want, "sounds", "step.ogg"))
	if err != nil || !bytes.Equal(got, asset) {
		t.Fatalf("virtual asset: %q, %v", got, err)
	}
}

func TestExtractNatives(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "natives.jar")
	data := zipArchive(t, map[string]string{
		"libfoo.so":            "foo",
		"readme.txt":           "read me",
		"libbar.dylib":         "bar",
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0",
	})
	if err := os.WriteFile(archive, data, 0644); err != nil {
		t.Fatal(err)
	}

	fs := memfs.New()
	written, err := ExtractNatives(archive, fs, ".so")
	if err != nil {
		t.Fatalf("ExtractNatives: %v", err)
	}
	if !slices.Equal(written, []string{"libfoo.so"}) {
		t.Fatalf("written = %v", written)
	}
	for _, name := range []string{"readme.txt", "libbar.dylib", "MANIFEST.MF", "META-INF/MANIFEST.MF"} {
		if _, err := fs.Stat(name); err == nil {
			t.Fatalf("%s should not be extracted", name)
		}
	}

	if err := util.WriteFile(fs, "libfoo.so", []byte("sentinel"), 0644); err != nil {
		t.Fatal(err)
	}
	written, err = ExtractNatives(archive, fs, ".so")
	if err != nil {
		t.Fatalf("second ExtractNatives: %v", err)
	}
	if len(written) != 0 {
		t.Fatalf("existing entry was rewritten: %v", written)
	}
	content, err := util.ReadFile(fs, "libfoo.so")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "sentinel" {
		t.Fatalf("existing entry was overwritten: %q", content)
	}
}

func TestExtractNativesCorrupt(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "broken.jar")
	if err := os.WriteFile(archive, []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ExtractNatives(archive, memfs.New(), ".so"); !errors.Is(err, ErrArchiveCorrupt) {
		t.Fatalf("expected ErrArchiveCorrupt, got %v", err)
	}
}

func TestSyncNativeLibrary(t *testing.T) {
	e := newEnv(t, nil)
	jar := zipArchive(t, map[string]string{"liblwjgl.so": "lwjgl", "lwjgl.dll": "dll"})
	url := host + "/libraries/lwjgl-natives-linux.jar"
	e.fetcher.payloads[url] = jar
	e.profile.Libraries = []profile.Library{{
		Name:    "org.lwjgl:lwjgl-platform:2.9.4",
		Natives: map[string]string{"linux": "natives-linux"},
		Downloads: profile.LibraryDownloads{
			Classifiers: map[string]profile.Download{
				"natives-linux": {URL: url, SHA1: sha1Hex(jar)},
			},
		},
	}}

	result, err := e.syncer(t).Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	content, err := util.ReadFile(e.natives, "liblwjgl.so")
	if err != nil || string(content) != "lwjgl" {
		t.Fatalf("native not extracted: %q, %v", content, err)
	}
	if _, err := e.natives.Stat("lwjgl.dll"); err == nil {
		t.Fatal("foreign native was extracted")
	}
	if slices.Contains(result.Classpath, filepath.Join(e.dirs.Libraries, "org/lwjgl/lwjgl-platform/2.9.4/lwjgl-platform-2.9.4-natives-linux.jar")) {
		t.Fatal("native archive should not be on the classpath")
	}
	if _, err := os.Stat(filepath.Join(e.dirs.Libraries, "org", "lwjgl", "lwjgl-platform", "2.9.4", "lwjgl-platform-2.9.4-natives-linux.jar")); err != nil {
		t.Fatalf("native archive not placed at its maven path: %v", err)
	}
}

func TestMavenPath(t *testing.T) {
	cases := []struct{ name, classifier, want string }{
		{"com.mojang:brigadier:1.0.18", "", "com/mojang/brigadier/1.0.18/brigadier-1.0.18.jar"},
		{"org.lwjgl:lwjgl:3.3.1:natives-linux", "", "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-linux.jar"},
		{"org.lwjgl:lwjgl:3.3.1", "natives-osx", "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-osx.jar"},
	}
	for _, c := range cases {
		if got := MavenPath(c.name, c.classifier); got != c.want {
			t.Errorf("MavenPath(%q, %q) = %q, want %q", c.name, c.classifier, got, c.want)
		}
	}
}

func TestNewRequiresProfile(t *testing.T) {
	e := newEnv(t, nil)
	if _, err := New(Options{Store: e.store}); err == nil {
		t.Fatal("expected an error without a profile")
	}
}

func TestSyncRejectsEscapingPaths(t *testing.T) {
	asset := []byte("payload")
	e := newEnv(t, nil)
	hash := sha1Hex(asset)
	e.fetcher.payloads[host+"/assets/"+hash[:2]+"/"+hash] = asset
	index := profile.AssetIndex{
		Virtual: true,
		Objects: map[string]profile.Object{
			"../../../escaped.txt": {Hash: hash, Size: int64(len(asset))},
			"sounds/fine.ogg":      {Hash: hash, Size: int64(len(asset))},
		},
	}
	data, err := json.Marshal(index)
	if err != nil {
		t.Fatal(err)
	}
	e.fetcher.payloads[host+"/indexes/1.json"] = data
	e.profile.AssetIndex.SHA1 = sha1Hex(data)

	lib := e.library("sneaky", []byte("sneaky"), nil)
	lib.Downloads.Artifact.Path = "../../outside.jar"
	e.profile.Libraries = []profile.Library{lib}

	_, err = e.syncer(t).Sync(context.Background())
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("expected ErrUnsafePath, got %v", err)
	}
	var syncErr *SyncError
	if !errors.As(err, &syncErr) || len(syncErr.Failures) != 2 {
		t.Fatalf("expected the virtual asset and the library to fail: %v", err)
	}

	filepath.WalkDir(filepath.Dir(e.dirs.Cache), func(path string, d os.DirEntry, err error) error {
		if err == nil && (d.Name() == "escaped.txt" || d.Name() == "outside.jar") {
			t.Errorf("file written outside its directory: %s", path)
		}
		return nil
	})
	fine := filepath.Join(e.dirs.Assets, "virtual", "1", "sounds", "fine.ogg")
	if _, err := os.Stat(fine); err != nil {
		t.Fatalf("well formed virtual asset not written: %v", err)
	}
}

// gatedFetcher records how many fetches run at once.
type gatedFetcher struct {
	inner    *fakeFetcher
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *gatedFetcher) Fetch(ctx context.Context, loc string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return f.inner.Fetch(ctx, loc)
}

func TestSyncRespectsConcurrency(t *testing.T) {
	objects := make(map[string][]byte)
	for i := range 60 {
		objects[fmt.Sprintf("objects/%d", i)] = []byte(fmt.Sprintf("asset %d", i))
	}
	e := newEnv(t, objects)
	gated := &gatedFetcher{inner: e.fetcher}
	e.store = store.New(storage.NewInMemoryStorage(), locator.NewInMemoryIndex(), gated, nil)

	const limit = 4
	s, err := New(Options{
		Store:       e.store,
		Profile:     e.profile,
		Dirs:        e.dirs,
		Platform:    linux,
		Concurrency: limit,
		AssetsURL:   host + "/assets",
		Natives:     e.natives,
	})
	if err != nil {
		t.Fatal(err)
	}
	result, err := s.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Fetched != 62 {
		t.Fatalf("expected 62 fetched artifacts, got %d", result.Fetched)
	}
	if peak := gated.peak.Load(); peak < 1 || peak > limit {
		t.Fatalf("peak in-flight fetches %d, limit %d", peak, limit)
	}
}

func TestPlanUsesChosenClassifier(t *testing.T) {
	e := newEnv(t, nil)
	e.profile.Libraries = []profile.Library{{
		Name:    "org.lwjgl:lwjgl-platform:2.9.4",
		Natives: map[string]string{"windows": "natives-windows-${arch}"},
		Downloads: profile.LibraryDownloads{
			Classifiers: map[string]profile.Download{
				"natives-windows-64": {URL: host + "/win64.jar", SHA1: "00"},
			},
		},
	}}
	s, err := New(Options{
		Store:    e.store,
		Profile:  e.profile,
		Dirs:     e.dirs,
		Platform: rules.Platform{OS: rules.Windows, Arch: rules.X86, Bits: 64},
		Natives:  e.natives,
	})
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(e.dirs.Libraries, "org", "lwjgl", "lwjgl-platform", "2.9.4", "lwjgl-platform-2.9.4-natives-windows-64.jar")
	for _, a := range s.Plan(nil) {
		if a.Kind == KindNative {
			if a.Destination != want {
				t.Fatalf("native destination = %s, want %s", a.Destination, want)
			}
			return
		}
	}
	t.Fatal("no native artifact planned")
}
