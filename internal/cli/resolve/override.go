package resolve

import (
	"github.com/pirakansa/rdpatch/pkg/redroid"
)

// Override replaces the built-in source of a module, e.g. with a mirror.
// Empty Arch and Android match any target. Android is a semver constraint
// on the release, such as ">= 13".
type Override struct {
	Module   redroid.Module
	Provider redroid.GMSProvider
	Arch     redroid.Arch
	Android  string
	URL      string
	Archive  ArchiveKind
	Layout   Layout
	Root     string
	Into     string
	Checksum string
}

func (o Override) matches(module redroid.Module, provider redroid.GMSProvider, version string, arch redroid.Arch) bool {
	if o.Module != module || o.Provider != provider {
		return false
	}
	if o.Arch != "" && o.Arch != arch {
		return false
	}
	if o.Android == "" {
		return true
	}
	parsed, err := redroid.ParseAndroidVersion(version)
	if err != nil {
		return false
	}
	return parsed.Satisfies(o.Android)
}

// override returns the first override matching the request.
func (r *Resolver) override(module redroid.Module, provider redroid.GMSProvider, version string, arch redroid.Arch) (*Descriptor, bool, error) {
	for _, o := range r.Overrides {
		if !o.matches(module, provider, version, arch) {
			continue
		}
		archive, err := ParseArchiveKind(string(o.Archive))
		if err != nil {
			return nil, false, err
		}
		layout, err := ParseLayout(string(o.Layout))
		if err != nil {
			return nil, false, err
		}
		return &Descriptor{
			Module:   module,
			Provider: provider,
			URL:      o.URL,
			Archive:  archive,
			Layout:   layout,
			Dest:     destName(module, provider),
			Root:     o.Root,
			Into:     o.Into,
			Checksum: o.Checksum,
		}, true, nil
	}
	return nil, false, nil
}
