// Package arguments expands a profile's argument templates into the final
// java command line.
package arguments

import (
	"slices"
	"strconv"
	"strings"

	"copper/internal/profile"
	"copper/internal/rules"
)

// LegacyJVMArguments stand in for the JVM arguments of legacy profiles, which
// only describe game arguments.
var LegacyJVMArguments = []string{
	"-Djava.library.path=${natives_directory}",
	"-cp",
	"${classpath}",
}

// Values are the token values substituted into argument templates.
type Values struct {
	AssetsIndexName    string
	AssetsRoot         string
	GameAssets         string
	Classpath          string
	ClasspathSeparator string
	GameDirectory      string
	LauncherName       string
	LauncherVersion    string
	LibraryDirectory   string
	NativesDirectory   string
	VersionName        string
	VersionType        string

	PlayerName     string
	UUID           string
	AccessToken    string
	UserType       string
	UserProperties string

	// ResolutionWidth and ResolutionHeight are substituted when positive.
	ResolutionWidth  int
	ResolutionHeight int
}

// Tokens maps each placeholder name to its value. Tokens with no value are
// left out so their placeholders survive substitution.
func (v Values) Tokens() map[string]string {
	tokens := map[string]string{
		"assets_index_name":   v.AssetsIndexName,
		"assets_root":         v.AssetsRoot,
		"game_assets":         v.GameAssets,
		"classpath":           v.Classpath,
		"classpath_separator": v.ClasspathSeparator,
		"game_directory":      v.GameDirectory,
		"launcher_name":       v.LauncherName,
		"launcher_version":    v.LauncherVersion,
		"library_directory":   v.LibraryDirectory,
		"natives_directory":   v.NativesDirectory,
		"version_name":        v.VersionName,
		"version_type":        v.VersionType,
		"auth_player_name":    v.PlayerName,
		"auth_uuid":           v.UUID,
		"auth_access_token":   v.AccessToken,
		"user_type":           v.UserType,
		"user_properties":     v.UserProperties,
	}
	if v.ResolutionWidth > 0 {
		tokens["resolution_width"] = strconv.Itoa(v.ResolutionWidth)
	}
	if v.ResolutionHeight > 0 {
		tokens["resolution_height"] = strconv.Itoa(v.ResolutionHeight)
	}
	for name, value := range tokens {
		if value == "" {
			delete(tokens, name)
		}
	}
	return tokens
}

// Assembler builds the argument vector of one launch.
type Assembler struct {
	Profile  *profile.Profile
	Platform rules.Platform
	Features rules.Features
	Values   Values
	// LoggingConfig is the path of the synchronized logging configuration, or
	// empty when the profile has none.
	LoggingConfig string
	// ExtraJVM are appended after the profile's JVM arguments. They are
	// substituted like the rest.
	ExtraJVM []string
}

// Build returns the JVM arguments, the logging argument, the main class and
// the game arguments, in that order, with every known token substituted.
func (a *Assembler) Build() []string {
	r := NewReplacer(a.Values.Tokens())

	var out []string
	for _, arg := range a.JVMArguments() {
		out = append(out, r.Replace(arg))
	}
	for _, arg := range a.ExtraJVM {
		out = append(out, r.Replace(arg))
	}
	if arg, ok := a.loggingArgument(); ok {
		out = append(out, arg)
	}
	out = append(out, a.Profile.MainClass)
	for _, arg := range a.GameArguments() {
		out = append(out, r.Replace(arg))
	}
	return out
}

// JVMArguments returns the active JVM argument templates, unsubstituted.
func (a *Assembler) JVMArguments() []string {
	if a.Profile.Arguments.Format == profile.LegacyFormat {
		return slices.Clone(LegacyJVMArguments)
	}
	return a.active(a.Profile.Arguments.Structured.JVM)
}

// GameArguments returns the active game argument templates, unsubstituted.
func (a *Assembler) GameArguments() []string {
	if a.Profile.Arguments.Format == profile.LegacyFormat {
		return a.active(a.Profile.Arguments.LegacyGameArguments())
	}
	return a.active(a.Profile.Arguments.Structured.Game)
}

func (a *Assembler) active(args []profile.Argument) []string {
	var out []string
	for _, arg := range args {
		out = append(out, arg.Active(a.Platform, a.Features)...)
	}
	return out
}

func (a *Assembler) loggingArgument() (string, bool) {
	l := a.Profile.Logging
	if l == nil || l.Client == nil || l.Client.Argument == "" || a.LoggingConfig == "" {
		return "", false
	}
	return strings.ReplaceAll(l.Client.Argument, "${path}", a.LoggingConfig), true
}

// NewReplacer substitutes ${name} for every token. The substitution is
// literal: values are never rescanned and unknown placeholders stay as they
// are.
func NewReplacer(tokens map[string]string) *strings.Replacer {
	names := make([]string, 0, len(tokens))
	for name := range tokens {
		names = append(names, name)
	}
	slices.Sort(names)
	pairs := make([]string, 0, 2*len(names))
	for _, name := range names {
		pairs = append(pairs, "${"+name+"}", tokens[name])
	}
	return strings.NewReplacer(pairs...)
}
