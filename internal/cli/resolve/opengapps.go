package resolve

import (
	"fmt"

	"github.com/pirakansa/rdpatch/pkg/redroid"
)

// The last OpenGApps pico builds target Android 10 and install on 9 to 11.
const openGAppsReleases = ">= 9, < 12"

// OpenGApps names arm64 builds after the ABI rather than the architecture.
var openGAppsArtifacts = map[redroid.Arch]pinnedArtifact{
	redroid.ArchAMD64: {"https://cfhcable.dl.sourceforge.net/project/opengapps/x86_64/20220503/open_gapps-x86_64-10.0-pico-20220503.zip", "5fb186bfb7bed8925290f79247bec4cf"},
	redroid.ArchARM64: {"https://versaweb.dl.sourceforge.net/project/opengapps/arm64/20220503/open_gapps-arm64-10.0-pico-20220503.zip?viasf=1", "2feaf25d03530892c6146687ffa08bc2"},
}

func openGApps(version redroid.AndroidVersion, arch redroid.Arch) (*Descriptor, error) {
	if !version.Satisfies(openGAppsReleases) {
		return nil, fmt.Errorf("OpenGApps supports android 9 to 11 only, use a different GMS provider for android %d", version.Release.Major())
	}
	artifact, ok := openGAppsArtifacts[arch]
	if !ok {
		return nil, fmt.Errorf("no OpenGApps build for %s", arch)
	}
	return &Descriptor{
		URL:      artifact.url,
		Archive:  ArchiveZip,
		Layout:   LayoutOpenGApps,
		Into:     "system",
		Checksum: "md5:" + artifact.md5,
	}, nil
}
