// Package version carries the build identity of the storyloom binary:
// the semantic version plus the commit and date a release build stamps
// in.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Stamped at build time through -ldflags
// "-X storyloom/internal/version.Version=..." and friends. The defaults
// describe a plain `go build` from source.
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build identity as one value.
type Info struct {
	Version    string
	GitCommit  string
	BuildDate  string
	GoVersion  string
	Platform   string
	Prerelease bool
}

// GetVersion returns the bare version string.
func GetVersion() string {
	return Version
}

// GetInfo collects the build identity of the running binary.
func GetInfo() Info {
	return Info{
		Version:    Version,
		GitCommit:  GitCommit,
		BuildDate:  BuildDate,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Prerelease: IsPrerelease(),
	}
}

// GetFormattedVersion returns the one-line form the version command
// prints. Unstamped fields are omitted, so a source build shows just
// "storyloom v0.3.0".
func GetFormattedVersion() string {
	var stamps []string
	if GitCommit != "unknown" && GitCommit != "" {
		stamps = append(stamps, "commit "+shortCommit(GitCommit))
	}
	if BuildDate != "unknown" && BuildDate != "" {
		stamps = append(stamps, "built "+BuildDate)
	}
	if len(stamps) == 0 {
		return fmt.Sprintf("storyloom v%s", Version)
	}
	return fmt.Sprintf("storyloom v%s (%s)", Version, strings.Join(stamps, ", "))
}

// GetDetailedVersion returns the multi-line form behind
// `version --detailed`.
func GetDetailedVersion() string {
	info := GetInfo()
	lines := []string{
		fmt.Sprintf("storyloom v%s", info.Version),
		"  commit:   " + info.GitCommit,
		"  built:    " + info.BuildDate,
		"  go:       " + info.GoVersion,
		"  platform: " + info.Platform,
		"  build:    " + buildKind(info),
	}
	return strings.Join(lines, "\n")
}

// IsPrerelease reports whether Version carries a pre-release tag such
// as -rc.1. A version that does not parse as semver counts as stable.
func IsPrerelease() bool {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return false
	}
	return sv.Prerelease() != ""
}

// IsDevelopment reports whether the binary was built without release
// stamps.
func IsDevelopment() bool {
	return GitCommit == "unknown" || BuildDate == "unknown"
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}

// buildKind labels the build. An unstamped binary is a development
// build no matter what the version string says.
func buildKind(info Info) string {
	switch {
	case IsDevelopment():
		return "development"
	case info.Prerelease:
		return "pre-release"
	default:
		return "release"
	}
}
