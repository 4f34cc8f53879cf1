package profile

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pirakansa/rdpatch/internal/cli/shared"
	"github.com/pirakansa/rdpatch/pkg/redroid"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName = "rdpatch.yaml"
	ProfileVersion  = 1

	DefaultImage   = "docker.io/redroid/redroid"
	DefaultAndroid = "16.0.0_64only-latest"
	DefaultEngine  = "docker"
)

//go:embed schema.json
var schemaJSON []byte

// HostArch is the architecture used when a profile does not name one.
var HostArch = string(redroid.DefaultArch(runtime.GOARCH))

// Parse decodes, normalizes and validates a profile document.
func Parse(content []byte) (*Profile, error) {
	if err := ValidateSchema(content); err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(content, &p); err != nil {
		return nil, err
	}
	NormalizeProfile(&p)
	if err := ValidateProfile(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidateSchema checks the raw document against the embedded JSON schema.
func ValidateSchema(content []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate profile schema: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid profile: %s", strings.Join(msgs, "; "))
}

// Default returns the profile used when no file is present.
func Default() *Profile {
	p := &Profile{}
	NormalizeProfile(p)
	return p
}

func NormalizeProfile(p *Profile) {
	if p.Version == 0 {
		p.Version = ProfileVersion
	}
	p.Image = strings.TrimSpace(p.Image)
	if p.Image == "" {
		p.Image = DefaultImage
	}
	p.Android = strings.TrimSpace(p.Android)
	if p.Android == "" {
		p.Android = DefaultAndroid
	}
	if strings.TrimSpace(p.Architecture) == "" {
		p.Architecture = HostArch
	}
	if p.Engine == "" {
		p.Engine = DefaultEngine
	}
	if p.Sources == nil {
		p.Sources = []Source{}
	}
}

func ValidateProfile(p *Profile) error {
	if p.Version != ProfileVersion {
		return fmt.Errorf("unsupported profile version %d", p.Version)
	}
	if _, err := p.Target(); err != nil {
		return err
	}
	if _, err := p.Request(); err != nil {
		return err
	}
	for i, src := range p.Sources {
		if err := validateSource(src); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	return nil
}

func validateSource(src Source) error {
	module, err := redroid.ParseModule(src.Module)
	if err != nil {
		return err
	}
	provider, err := redroid.ParseGMSProvider(src.Provider)
	if err != nil {
		return err
	}
	if module == redroid.ModuleGMS && provider == redroid.GMSNone {
		return errors.New("provider is required for gms sources")
	}
	if module != redroid.ModuleGMS && provider != redroid.GMSNone {
		return fmt.Errorf("provider is only valid for gms sources, got %q", src.Provider)
	}
	if src.Arch != "" {
		if _, err := redroid.ParseArch(src.Arch); err != nil {
			return err
		}
	}
	if src.Android != "" {
		if _, err := semver.NewConstraint(src.Android); err != nil {
			return fmt.Errorf("android constraint %q: %w", src.Android, err)
		}
	}
	if !IsRemoteLocation(src.URL) {
		return fmt.Errorf("url %q must be http or https", src.URL)
	}
	if _, err := shared.ParseChecksum(src.Checksum); err != nil {
		return err
	}
	return nil
}

// Target returns the build target described by the profile.
func (p *Profile) Target() (redroid.Target, error) {
	arch, err := redroid.ParseArch(p.Architecture)
	if err != nil {
		return redroid.Target{}, err
	}
	t := redroid.Target{BaseImage: p.Image, AndroidVersion: p.Android, Arch: arch}
	if err := t.Validate(); err != nil {
		return redroid.Target{}, err
	}
	return t, nil
}

// Request returns the modules selected by the profile.
func (p *Profile) Request() (redroid.Request, error) {
	gms, err := redroid.ParseGMSProvider(p.GApps)
	if err != nil {
		return redroid.Request{}, err
	}
	return redroid.Request{GMS: gms, NDK: p.NDK, Widevine: p.Widevine}, nil
}

func IsRemoteLocation(value string) bool {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
