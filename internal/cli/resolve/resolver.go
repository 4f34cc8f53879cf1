package resolve

import (
	"fmt"

	"github.com/pirakansa/rdpatch/pkg/redroid"
)

// Resolver maps requested modules to download descriptors. It performs no
// I/O; the result depends only on its inputs and Overrides.
type Resolver struct {
	Overrides []Override
}

// ResolveAll resolves every module in request, in application order. It
// stops at the first module without a known artifact.
func (r *Resolver) ResolveAll(request redroid.Request, target redroid.Target) ([]*Descriptor, error) {
	var out []*Descriptor
	for _, module := range request.Modules() {
		desc, err := r.Resolve(module, request.GMS, target.AndroidVersion, target.Arch)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

// Resolve returns the descriptor for module. provider is only consulted
// for the GMS module.
func (r *Resolver) Resolve(module redroid.Module, provider redroid.GMSProvider, version string, arch redroid.Arch) (*Descriptor, error) {
	fail := func(format string, args ...any) error {
		return &ResolutionError{Module: module, Provider: provider, Version: version, Arch: arch, Reason: fmt.Sprintf(format, args...)}
	}
	if arch != redroid.ArchAMD64 && arch != redroid.ArchARM64 {
		return nil, fail("unsupported architecture")
	}
	if module != redroid.ModuleGMS {
		provider = redroid.GMSNone
	}

	if desc, ok, err := r.override(module, provider, version, arch); err != nil {
		return nil, fail("%v", err)
	} else if ok {
		return desc, nil
	}

	var rule func(redroid.AndroidVersion, redroid.Arch) (*Descriptor, error)
	switch module {
	case redroid.ModuleGMS:
		switch provider {
		case redroid.GMSMindTheGApps:
			rule = mindTheGApps
		case redroid.GMSOpenGApps:
			rule = openGApps
		case redroid.GMSLiteGApps:
			rule = liteGApps
		default:
			return nil, fail("unsupported gapps provider %q", provider)
		}
	case redroid.ModuleNDK:
		rule = ndkTranslation
	case redroid.ModuleWidevine:
		rule = widevine
	default:
		return nil, fail("unsupported module")
	}

	parsed, err := redroid.ParseAndroidVersion(version)
	if err != nil {
		return nil, fail("%v", err)
	}
	desc, err := rule(parsed, arch)
	if err != nil {
		return nil, fail("%v", err)
	}
	desc.Module = module
	desc.Provider = provider
	if desc.Dest == "" {
		desc.Dest = destName(module, provider)
	}
	return desc, nil
}
