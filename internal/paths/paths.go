// Package paths lays out the launcher's directories.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppName is the directory name used below the user cache and config roots.
const AppName = "copper"

// Dirs is the set of directories a launch reads and writes.
type Dirs struct {
	Cache        string
	Config       string
	Store        string
	Assets       string
	AssetIndexes string
	AssetObjects string
	LogConfigs   string
	Libraries    string
	Versions     string
	Natives      string
	Instances    string
}

// New derives every directory from a cache root and a config root.
func New(cacheRoot, configRoot string) Dirs {
	assets := filepath.Join(cacheRoot, "assets")
	return Dirs{
		Cache:        cacheRoot,
		Config:       configRoot,
		Store:        filepath.Join(cacheRoot, "store"),
		Assets:       assets,
		AssetIndexes: filepath.Join(assets, "indexes"),
		AssetObjects: filepath.Join(assets, "objects"),
		LogConfigs:   filepath.Join(assets, "log_configs"),
		Libraries:    filepath.Join(cacheRoot, "libraries"),
		Versions:     filepath.Join(cacheRoot, "versions"),
		Natives:      filepath.Join(cacheRoot, "natives"),
		Instances:    filepath.Join(configRoot, "instances"),
	}
}

// Default places the directories below the user's cache and config roots.
func Default() (Dirs, error) {
	cache, err := os.UserCacheDir()
	if err != nil {
		return Dirs{}, fmt.Errorf("locating cache directory: %w", err)
	}
	config, err := os.UserConfigDir()
	if err != nil {
		return Dirs{}, fmt.Errorf("locating config directory: %w", err)
	}
	return New(filepath.Join(cache, AppName), filepath.Join(config, AppName)), nil
}

// Ensure creates every directory.
func (d Dirs) Ensure() error {
	for _, dir := range []string{
		d.Cache, d.Config, d.Store, d.AssetIndexes, d.AssetObjects, d.LogConfigs,
		d.Libraries, d.Versions, d.Natives, d.Instances,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// VersionDir holds the client jar of a version.
func (d Dirs) VersionDir(id string) string {
	return filepath.Join(d.Versions, id)
}

// ClientJar is where the client jar of a version lives.
func (d Dirs) ClientJar(id string) string {
	return filepath.Join(d.VersionDir(id), id+".jar")
}

// NativesFor is the per-version directory natives are extracted into.
func (d Dirs) NativesFor(id string) string {
	return filepath.Join(d.Natives, id)
}

// InstanceDir is the game directory of a named instance.
func (d Dirs) InstanceDir(name string) string {
	return filepath.Join(d.Instances, name)
}
