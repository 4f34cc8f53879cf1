package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	pkgprofile "github.com/pirakansa/rdpatch/pkg/profile"
	"github.com/pirakansa/rdpatch/pkg/redroid"
)

type Profile = pkgprofile.Profile

// Load reads the profile at location, a local path or an http(s) URL.
// When optional is set a missing local file yields the default profile.
func Load(ctx context.Context, location string, optional bool) (*Profile, error) {
	content, err := readProfile(ctx, location)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return pkgprofile.Default(), nil
		}
		return nil, err
	}
	p, err := pkgprofile.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}
	return p, nil
}

// Overrides converts the profile's sources into resolver overrides.
func Overrides(p *Profile) ([]resolve.Override, error) {
	out := make([]resolve.Override, 0, len(p.Sources))
	for i, src := range p.Sources {
		module, err := redroid.ParseModule(src.Module)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		provider, err := redroid.ParseGMSProvider(src.Provider)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		var arch redroid.Arch
		if src.Arch != "" {
			if arch, err = redroid.ParseArch(src.Arch); err != nil {
				return nil, fmt.Errorf("sources[%d]: %w", i, err)
			}
		}
		archive, err := resolve.ParseArchiveKind(src.Archive)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		layout, err := resolve.ParseLayout(src.Layout)
		if err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		out = append(out, resolve.Override{
			Module:   module,
			Provider: provider,
			Arch:     arch,
			Android:  src.Android,
			URL:      src.URL,
			Archive:  archive,
			Layout:   layout,
			Root:     src.Root,
			Into:     src.Into,
			Checksum: src.Checksum,
		})
	}
	return out, nil
}

func readProfile(ctx context.Context, location string) ([]byte, error) {
	if pkgprofile.IsRemoteLocation(location) {
		return readRemoteProfile(ctx, location)
	}
	return os.ReadFile(location)
}

func readRemoteProfile(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("load profile failed: %s status=%d", location, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
