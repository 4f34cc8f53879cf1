package redroid

import (
	"fmt"
	"strings"
)

// Arch is a container platform architecture.
type Arch string

const (
	ArchAMD64 Arch = "amd64"
	ArchARM64 Arch = "arm64"
)

// SupportedArchs lists the architectures a patched image can be built for.
var SupportedArchs = []Arch{ArchAMD64, ArchARM64}

func ParseArch(value string) (Arch, error) {
	switch a := Arch(strings.ToLower(strings.TrimSpace(value))); a {
	case ArchAMD64, ArchARM64:
		return a, nil
	case "x86_64":
		return ArchAMD64, nil
	case "aarch64":
		return ArchARM64, nil
	default:
		return "", fmt.Errorf("unsupported architecture %q (want arm64 or amd64)", value)
	}
}

// HostArch maps a GOARCH value to a supported Arch. ok is false for hosts
// such as 386 or riscv64 that cannot run redroid natively.
func HostArch(goarch string) (Arch, bool) {
	arch, err := ParseArch(goarch)
	return arch, err == nil
}

// DefaultArch is the target used when none is given: the host
// architecture, or arm64 on unsupported hosts.
func DefaultArch(goarch string) Arch {
	if arch, ok := HostArch(goarch); ok {
		return arch
	}
	return ArchARM64
}

// Platform returns the OCI platform string, e.g. linux/arm64.
func (a Arch) Platform() string {
	return "linux/" + string(a)
}

// AndroidName returns the architecture name Android artifacts use.
func (a Arch) AndroidName() string {
	if a == ArchAMD64 {
		return "x86_64"
	}
	return string(a)
}

// GMSProvider selects a Google Mobile Services implementation.
type GMSProvider string

const (
	GMSNone         GMSProvider = ""
	GMSLiteGApps    GMSProvider = "litegapps"
	GMSOpenGApps    GMSProvider = "opengapps"
	GMSMindTheGApps GMSProvider = "mindthegapps"
)

func ParseGMSProvider(value string) (GMSProvider, error) {
	switch p := GMSProvider(strings.ToLower(strings.TrimSpace(value))); p {
	case GMSNone, GMSLiteGApps, GMSOpenGApps, GMSMindTheGApps:
		return p, nil
	case "none":
		return GMSNone, nil
	default:
		return "", fmt.Errorf("unsupported gapps provider %q (want litegapps, opengapps or mindthegapps)", value)
	}
}

// Module is an optional feature layered on top of the base image.
type Module string

const (
	ModuleGMS      Module = "gms"
	ModuleNDK      Module = "ndk"
	ModuleWidevine Module = "widevine"
)

// ModuleOrder is the order modules are applied in. Later modules assume
// the filesystem layout of earlier ones.
var ModuleOrder = []Module{ModuleGMS, ModuleNDK, ModuleWidevine}

func ParseModule(value string) (Module, error) {
	switch m := Module(strings.ToLower(strings.TrimSpace(value))); m {
	case ModuleGMS, ModuleNDK, ModuleWidevine:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported module %q", value)
	}
}

// Request is the set of optional modules selected for one build.
type Request struct {
	GMS      GMSProvider
	NDK      bool
	Widevine bool
}

// Has reports whether module m is requested.
func (r Request) Has(m Module) bool {
	switch m {
	case ModuleGMS:
		return r.GMS != GMSNone
	case ModuleNDK:
		return r.NDK
	case ModuleWidevine:
		return r.Widevine
	default:
		return false
	}
}

// Modules returns the requested modules in ModuleOrder.
func (r Request) Modules() []Module {
	var out []Module
	for _, m := range ModuleOrder {
		if r.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// Target identifies the base image and platform being patched.
type Target struct {
	BaseImage      string
	AndroidVersion string
	Arch           Arch
}

// BaseRef returns the base image reference including the android version tag.
func (t Target) BaseRef() string {
	return t.BaseImage + ":" + t.AndroidVersion
}

func (t Target) Validate() error {
	if t.Arch != ArchAMD64 && t.Arch != ArchARM64 {
		return fmt.Errorf("unsupported architecture %q (want arm64 or amd64)", t.Arch)
	}
	image := strings.TrimSpace(t.BaseImage)
	if image == "" {
		return fmt.Errorf("base image is required")
	}
	name := image[strings.LastIndex(image, "/")+1:]
	if strings.ContainsAny(name, ":@") {
		return fmt.Errorf("base image %q must not carry a tag or digest", t.BaseImage)
	}
	if strings.TrimSpace(t.AndroidVersion) == "" {
		return fmt.Errorf("android version is required")
	}
	if strings.ContainsAny(t.AndroidVersion, " /:@") {
		return fmt.Errorf("invalid android version tag %q", t.AndroidVersion)
	}
	return nil
}
