package redroid

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// AndroidVersion is a parsed redroid image tag such as 12.0.0_64only-latest.
//
// The tag is split into a major part (12.0.0_64only) and a revision
// (latest). The major part starts with the Android release followed by
// optional underscore separated features.
type AndroidVersion struct {
	Tag      string
	Major    string
	Release  *semver.Version
	Features []string
	Revision string
}

func ParseAndroidVersion(tag string) (AndroidVersion, error) {
	tag = strings.TrimSpace(tag)
	major, revision, _ := strings.Cut(tag, "-")
	parts := strings.Split(major, "_")
	release, err := semver.StrictNewVersion(parts[0])
	if err != nil {
		return AndroidVersion{}, fmt.Errorf("android version %q has no release number: %w", tag, err)
	}
	return AndroidVersion{
		Tag:      tag,
		Major:    major,
		Release:  release,
		Features: parts[1:],
		Revision: revision,
	}, nil
}

func (v AndroidVersion) HasFeature(name string) bool {
	return slices.Contains(v.Features, name)
}

// Legacy reports whether the release no longer receives security updates.
func (v AndroidVersion) Legacy() bool {
	return v.Release.Major() < 12
}

// MixedMode reports whether the image runs both 32 and 64-bit binaries.
func (v AndroidVersion) MixedMode() bool {
	return !v.HasFeature("64only")
}

// Satisfies reports whether the release matches a semver constraint such
// as ">= 9, < 12".
func (v AndroidVersion) Satisfies(constraint string) bool {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Check(v.Release)
}

var apiLevels = map[string]int{
	"9.0":  28,
	"10.0": 29,
	"11.0": 30,
	"12.0": 31,
	"12.1": 32,
	"13.0": 33,
	"14.0": 34,
	"15.0": 35,
	"16.0": 36,
}

// APILevel returns the Android SDK level of the release.
func (v AndroidVersion) APILevel() (int, bool) {
	level, ok := apiLevels[fmt.Sprintf("%d.%d", v.Release.Major(), v.Release.Minor())]
	return level, ok
}
