package resolve

import (
	"fmt"

	"github.com/pirakansa/rdpatch/pkg/redroid"
)

// ArchiveKind names the container format of a downloaded artifact.
type ArchiveKind string

const (
	ArchiveZip     ArchiveKind = "zip"
	ArchiveTarGzip ArchiveKind = "tar+gzip"
	ArchiveTarXz   ArchiveKind = "tar+xz"
	ArchiveTarZstd ArchiveKind = "tar+zstd"
)

func ParseArchiveKind(value string) (ArchiveKind, error) {
	switch k := ArchiveKind(value); k {
	case ArchiveZip, ArchiveTarGzip, ArchiveTarXz, ArchiveTarZstd:
		return k, nil
	case "":
		return ArchiveZip, nil
	default:
		return "", fmt.Errorf("unsupported archive kind %q", value)
	}
}

// Layout selects how an extracted archive is normalized into the build
// context.
type Layout string

const (
	// LayoutTree copies Root from the archive into Into.
	LayoutTree Layout = "tree"
	// LayoutOpenGApps unpacks the Core/*.tar.lz bundles of an OpenGApps zip.
	LayoutOpenGApps Layout = "opengapps"
	// LayoutLiteGApps unpacks the files/files.tar.xz payload of a LiteGApps zip.
	LayoutLiteGApps Layout = "litegapps"
)

func ParseLayout(value string) (Layout, error) {
	switch l := Layout(value); l {
	case LayoutTree, LayoutOpenGApps, LayoutLiteGApps:
		return l, nil
	case "":
		return LayoutTree, nil
	default:
		return "", fmt.Errorf("unsupported layout %q", value)
	}
}

// Descriptor tells the stager where to download a module artifact from and
// how to lay it out. Descriptors are never modified after Resolve returns.
type Descriptor struct {
	Module   redroid.Module
	Provider redroid.GMSProvider
	URL      string
	Archive  ArchiveKind
	Layout   Layout
	// Dest is the build context subdirectory the module is staged into.
	Dest string
	// Root is the directory inside the archive that holds the payload.
	Root string
	// Into is the directory below Dest that receives Root's content.
	Into string
	// Checksum is an optional "algorithm:hex" marker for the download.
	Checksum string
}

// Name returns a short display name, e.g. "mindthegapps" or "ndk".
func (d *Descriptor) Name() string {
	return destName(d.Module, d.Provider)
}

func destName(module redroid.Module, provider redroid.GMSProvider) string {
	if module == redroid.ModuleGMS {
		return string(provider)
	}
	return string(module)
}

// ResolutionError reports that no artifact is known for a module on the
// requested android version and architecture.
type ResolutionError struct {
	Module   redroid.Module
	Provider redroid.GMSProvider
	Version  string
	Arch     redroid.Arch
	Reason   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s for %s/%s: %s", destName(e.Module, e.Provider), e.Version, e.Arch, e.Reason)
}
