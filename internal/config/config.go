// Package config loads the launcher configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"copper/internal/documents"
)

// DefaultConcurrency caps concurrent artifact tasks when the file sets none.
const DefaultConcurrency = 32

// DefaultAssetsURL is the host asset objects are fetched from.
const DefaultAssetsURL = "https://resources.download.minecraft.net"

// Config represents the configuration in the YAML file.
type Config struct {
	// Cache is the root of the store, libraries, assets and natives.
	Cache string `yaml:"cache,omitempty"`
	// Instances holds the game directories.
	Instances   string         `yaml:"instances,omitempty"`
	Concurrency int            `yaml:"concurrency,omitempty"`
	Verify      *bool          `yaml:"verify,omitempty"`
	Launcher    LauncherConfig `yaml:"launcher,omitempty"`
	ManifestURL string         `yaml:"manifest_url,omitempty"`
	AssetsURL   string         `yaml:"assets_url,omitempty"`
	S3Region    string         `yaml:"s3_region,omitempty"`
	Player      string         `yaml:"player,omitempty"`
	// Java maps a Java major version to the executable that runs it.
	Java    map[int]string `yaml:"java,omitempty"`
	JVMArgs StringArray    `yaml:"jvm_args,omitempty"`
}

// LauncherConfig names the launcher to the game.
type LauncherConfig struct {
	Name    string `yaml:"name,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// StringArray allows a YAML field to be parsed as either a single string or a slice of strings.
type StringArray []string

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (a *StringArray) UnmarshalYAML(value *yaml.Node) error {
	var multi []string
	err := value.Decode(&multi)
	if err != nil {
		var single string
		err := value.Decode(&single)
		if err != nil {
			return err
		}
		*a = strings.Fields(single)
	} else {
		*a = multi
	}
	return nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	verify := true
	return &Config{
		Concurrency: DefaultConcurrency,
		Verify:      &verify,
		Launcher:    LauncherConfig{Name: "copper", Version: "0.1.0"},
		ManifestURL: documents.DefaultManifestURL,
		AssetsURL:   DefaultAssetsURL,
		Player:      "Player",
		Java:        map[int]string{},
	}
}

// VerifyReads reports whether stored blobs are re-hashed on every read.
func (c *Config) VerifyReads() bool {
	return c.Verify == nil || *c.Verify
}

// JavaFor returns the configured executable for a Java major version, or
// "java" when none is configured.
func (c *Config) JavaFor(major int) string {
	if exe, ok := c.Java[major]; ok && exe != "" {
		return exe
	}
	return "java"
}

// LoadConfig reads and parses a YAML configuration file, layering it over
// Default. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to process config file '%s': %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for config file '%s': %w", path, err)
	}
	baseDir := filepath.Dir(absPath)

	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	config.Cache = SubstituteString(config.Cache, baseDir)
	config.Instances = SubstituteString(config.Instances, baseDir)
	for major, exe := range config.Java {
		config.Java[major] = SubstituteString(exe, baseDir)
	}
	for i, arg := range config.JVMArgs {
		config.JVMArgs[i] = SubstituteString(arg, baseDir)
	}

	return config, nil
}

// varRegex matches environment variables ($VAR_NAME), tilde (~), asterisk (*), and escaped characters (\$, \~, \*, \\).
// It uses named capture groups for clarity:
// - `escaped`: Matches '\$', '\~', '\*' or '\\'
// - `tilde`: Matches '~'
// - `star`: Matches '*'
// - `varName`: Matches the name of an environment variable after '$'
var substitutionRegex = regexp.MustCompile(`\\(?P<escaped>[~$*])|\\(?P<escaped_backslash>\\)|(?P<tilde>~)|(?P<star>\*)|(?P<varName>\$[a-zA-Z0-9_]+)`)

// SubstituteString processes a string for environment variable substitutions
// of the form $NAME, replaced by the environment variable NAME. It also
// substitutes '~' with the user's home directory and '*' with the directory
// holding the config file. A backslash '\' in front of '$', '~', '*', or '\'
// escapes the character and the backslash is removed.
func SubstituteString(in string, baseDir string) string {
	homeDir, _ := os.UserHomeDir()

	return substitutionRegex.ReplaceAllStringFunc(in, func(match string) string {
		if strings.HasPrefix(match, `\`) {
			if match == `\\` {
				return `\`
			}
			return string(match[1])
		}

		if match == "~" {
			if homeDir != "" {
				return homeDir
			}
			return "~"
		}

		if match == "*" {
			return baseDir
		}

		if strings.HasPrefix(match, "$") {
			if val, exists := os.LookupEnv(match[1:]); exists {
				return val
			}
			return ""
		}

		return match
	})
}
