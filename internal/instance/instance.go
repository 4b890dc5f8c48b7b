// Package instance keeps the per-instance settings file in a game directory.
package instance

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file inside an instance directory.
const FileName = "instance.yaml"

// Config is the persisted state of one instance.
type Config struct {
	// ID is the version the instance was last prepared for.
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Load reads the settings file in dir.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to process instance file '%s': %w", path, err)
	}
	return &c, nil
}

// Save writes c to the settings file in dir, replacing it atomically.
func Save(dir string, c *Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, FileName))
}

// Ensure creates dir and returns its settings, recording version as the
// instance's id. A missing or unreadable file is replaced by a fresh one.
func Ensure(dir, name, version string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating instance %s: %w", name, err)
	}

	c, err := Load(dir)
	switch {
	case err == nil:
		if c.ID == version && c.Name != "" {
			return c, nil
		}
		if c.ID != version {
			logger.Info("instance version changed", "instance", name, "from", c.ID, "to", version)
		}
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("creating instance file", "instance", name)
		c = &Config{}
	default:
		logger.Warn("replacing unreadable instance file", "instance", name, "error", err)
		c = &Config{}
	}

	c.ID = version
	if c.Name == "" {
		c.Name = name
	}
	if err := Save(dir, c); err != nil {
		return nil, fmt.Errorf("writing instance file for %s: %w", name, err)
	}
	return c, nil
}
