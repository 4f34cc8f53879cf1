package resolve

import (
	"fmt"

	"github.com/pirakansa/rdpatch/pkg/redroid"
)

const (
	liteGAppsReleases = ">= 11, < 15"
	liteGAppsBuild    = "v2.6"
	liteGAppsBaseURL  = "https://sourceforge.net/projects/litegapps/files/litegapps"
)

// LiteGApps builds are addressed by Android architecture and SDK level
// rather than release number:
//
//	<base>/<arch>/<sdk>/lite/<build>/[<arch>]_LiteGapps_<release>_<build>_official.zip/download
func liteGApps(version redroid.AndroidVersion, arch redroid.Arch) (*Descriptor, error) {
	if !version.Satisfies(liteGAppsReleases) {
		return nil, fmt.Errorf("no LiteGApps build for android %d", version.Release.Major())
	}
	sdk, ok := version.APILevel()
	if !ok {
		return nil, fmt.Errorf("unknown SDK level for android %s", version.Release)
	}
	name := arch.AndroidName()
	release := fmt.Sprintf("%d.%d", version.Release.Major(), version.Release.Minor())
	return &Descriptor{
		URL: fmt.Sprintf("%s/%s/%d/lite/%s/[%s]_LiteGapps_%s_%s_official.zip/download",
			liteGAppsBaseURL, name, sdk, liteGAppsBuild, name, release, liteGAppsBuild),
		Archive: ArchiveZip,
		Layout:  LayoutLiteGApps,
		Into:    "system",
	}, nil
}
