package commands

import (
	"github.com/pirakansa/rdpatch/internal/cli/profile"
	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	"github.com/pirakansa/rdpatch/internal/cli/shared"
	pkgprofile "github.com/pirakansa/rdpatch/pkg/profile"
	"github.com/pirakansa/rdpatch/pkg/redroid"
	"github.com/spf13/cobra"
)

// targetOptions are the flags shared by build and plan. A flag only
// overrides the profile when it was given.
type targetOptions struct {
	image    string
	android  string
	arch     string
	gapps    string
	ndk      bool
	widevine bool
}

func bindTargetFlags(cmd *cobra.Command, o *targetOptions) {
	cmd.Flags().StringVar(&o.image, "redroid-image", pkgprofile.DefaultImage, "base redroid image, without a tag")
	cmd.Flags().StringVar(&o.android, "android-version", pkgprofile.DefaultAndroid, "redroid tag to patch, e.g. 12.0.0_64only-latest")
	cmd.Flags().StringVar(&o.arch, "architecture", "", "target architecture: arm64|amd64 (default: host)")
	cmd.Flags().StringVar(&o.gapps, "gapps", "", "GMS provider: litegapps|opengapps|mindthegapps")
	cmd.Flags().BoolVarP(&o.ndk, "install-ndk-translation", "n", false, "install libndk translation")
	cmd.Flags().BoolVarP(&o.widevine, "install-widevine", "w", false, "install Widevine DRM (L3)")
}

func (o *targetOptions) apply(cmd *cobra.Command, p *profile.Profile) {
	flags := cmd.Flags()
	if flags.Changed("redroid-image") {
		p.Image = o.image
	}
	if flags.Changed("android-version") {
		p.Android = o.android
	}
	if flags.Changed("architecture") {
		p.Architecture = o.arch
	}
	if flags.Changed("gapps") {
		p.GApps = o.gapps
	}
	if flags.Changed("install-ndk-translation") {
		p.NDK = o.ndk
	}
	if flags.Changed("install-widevine") {
		p.Widevine = o.widevine
	}
}

// resolveInputs loads the profile, applies the flags and returns the build
// inputs. Every failure here is a configuration error.
func (app *appContext) resolveInputs(cmd *cobra.Command, o *targetOptions) (*profile.Profile, redroid.Target, redroid.Request, error) {
	p, err := app.loadProfile(cmd)
	if err != nil {
		return nil, redroid.Target{}, redroid.Request{}, err
	}
	o.apply(cmd, p)
	if err := pkgprofile.ValidateProfile(p); err != nil {
		return nil, redroid.Target{}, redroid.Request{}, newExitCodeError(shared.ExitConfigError, err)
	}
	target, err := p.Target()
	if err != nil {
		return nil, redroid.Target{}, redroid.Request{}, newExitCodeError(shared.ExitConfigError, err)
	}
	request, err := p.Request()
	if err != nil {
		return nil, redroid.Target{}, redroid.Request{}, newExitCodeError(shared.ExitConfigError, err)
	}
	return p, target, request, nil
}

func resolverFor(p *profile.Profile) (*resolve.Resolver, error) {
	overrides, err := profile.Overrides(p)
	if err != nil {
		return nil, newExitCodeError(shared.ExitConfigError, err)
	}
	return &resolve.Resolver{Overrides: overrides}, nil
}
