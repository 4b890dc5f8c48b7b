// Package profile holds the shapes of the remote documents the launcher
// consumes: the version manifest, version profiles and asset indexes.
package profile

import (
	"encoding/json"
	"fmt"
	"strings"

	"copper/internal/rules"
)

// Profile describes one game version: what to download and how to start it.
type Profile struct {
	ID                     string      `json:"id"`
	Type                   string      `json:"type"`
	Time                   string      `json:"time"`
	ReleaseTime            string      `json:"releaseTime"`
	Arguments              Arguments   `json:"-"`
	AssetIndex             Download    `json:"assetIndex"`
	Assets                 string      `json:"assets"`
	ComplianceLevel        int         `json:"complianceLevel,omitempty"`
	Downloads              Downloads   `json:"downloads"`
	JavaVersion            JavaVersion `json:"javaVersion"`
	Libraries              []Library   `json:"libraries"`
	Logging                *Logging    `json:"logging,omitempty"`
	MainClass              string      `json:"mainClass"`
	MinimumLauncherVersion int         `json:"minimumLauncherVersion,omitempty"`
}

// UnmarshalJSON decodes either argument format into Arguments.
func (p *Profile) UnmarshalJSON(data []byte) error {
	type plain Profile
	var doc struct {
		plain
		Arguments          *StructuredArguments `json:"arguments"`
		MinecraftArguments *string              `json:"minecraftArguments"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*p = Profile(doc.plain)

	switch {
	case doc.Arguments != nil:
		p.Arguments = Arguments{Format: StructuredFormat, Structured: *doc.Arguments}
	case doc.MinecraftArguments != nil:
		p.Arguments = Arguments{Format: LegacyFormat, Legacy: *doc.MinecraftArguments}
	default:
		return fmt.Errorf("profile %q has neither arguments nor minecraftArguments", p.ID)
	}

	if p.JavaVersion.MajorVersion == 0 {
		p.JavaVersion = DefaultJavaVersion
	}
	return nil
}

// MarshalJSON writes the arguments back in their original format.
func (p Profile) MarshalJSON() ([]byte, error) {
	type plain Profile
	doc := struct {
		plain
		Arguments          *StructuredArguments `json:"arguments,omitempty"`
		MinecraftArguments *string              `json:"minecraftArguments,omitempty"`
	}{plain: plain(p)}
	switch p.Arguments.Format {
	case StructuredFormat:
		doc.Arguments = &p.Arguments.Structured
	case LegacyFormat:
		doc.MinecraftArguments = &p.Arguments.Legacy
	}
	return json.Marshal(doc)
}

// Download is a remote file with the SHA-1 the manifest promises for it.
type Download struct {
	ID        string `json:"id,omitempty"`
	Path      string `json:"path,omitempty"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize,omitempty"`
	URL       string `json:"url"`
}

// Downloads are the version's top level files.
type Downloads struct {
	Client         Download  `json:"client"`
	ClientMappings *Download `json:"client_mappings,omitempty"`
	Server         *Download `json:"server,omitempty"`
	ServerMappings *Download `json:"server_mappings,omitempty"`
}

// JavaVersion names the Java major version the game needs.
type JavaVersion struct {
	Component    string `json:"component"`
	MajorVersion int    `json:"majorVersion"`
}

// DefaultJavaVersion applies to old profiles that predate the field.
var DefaultJavaVersion = JavaVersion{Component: "jre-legacy", MajorVersion: 8}

// Library is a jar on the classpath, possibly with native classifiers.
type Library struct {
	Name      string            `json:"name"`
	Downloads LibraryDownloads  `json:"downloads"`
	Natives   map[string]string `json:"natives,omitempty"`
	Rules     rules.Tree        `json:"rules,omitempty"`
}

// LibraryDownloads holds the main jar and the classifier downloads.
type LibraryDownloads struct {
	Artifact    *Download           `json:"artifact,omitempty"`
	Classifiers map[string]Download `json:"classifiers,omitempty"`
}

// Active reports whether the library applies to the platform and launch.
func (l Library) Active(p rules.Platform, f rules.Features) bool {
	return l.Rules.Evaluate(p, f)
}

// NativeClassifier returns the classifier key and download holding the
// library's native binaries for p. The natives map wins when present;
// otherwise the conventional natives-<os> names are tried.
func (l Library) NativeClassifier(p rules.Platform) (string, Download, bool) {
	if len(l.Downloads.Classifiers) == 0 {
		return "", Download{}, false
	}

	if len(l.Natives) > 0 {
		name, ok := l.Natives[string(p.OS)]
		if !ok {
			return "", Download{}, false
		}
		name = strings.ReplaceAll(name, "${arch}", fmt.Sprint(p.Bits))
		d, ok := l.Downloads.Classifiers[name]
		return name, d, ok
	}

	var candidates []string
	switch p.OS {
	case rules.OSX:
		candidates = []string{"natives-macos", "natives-osx"}
	case rules.Windows:
		candidates = []string{"natives-windows", fmt.Sprintf("natives-windows-%d", p.Bits)}
	default:
		candidates = []string{"natives-linux"}
	}
	for _, name := range candidates {
		if d, ok := l.Downloads.Classifiers[name]; ok {
			return name, d, true
		}
	}
	return "", Download{}, false
}

// Logging describes the client logging configuration.
type Logging struct {
	Client *LoggingClient `json:"client,omitempty"`
}

// LoggingClient is a config file plus the JVM argument that loads it. The
// argument contains a ${path} token.
type LoggingClient struct {
	Argument string   `json:"argument"`
	File     Download `json:"file"`
	Type     string   `json:"type"`
}
