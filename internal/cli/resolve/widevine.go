package resolve

import (
	"fmt"

	"github.com/pirakansa/rdpatch/pkg/redroid"
)

const widevineRepo = "vendor_google_proprietary_widevine-prebuilt"

// Widevine prebuilts are pinned per architecture and release.
var widevineCommits = map[redroid.Arch]map[uint64]string{
	redroid.ArchAMD64: {
		11: "48d1076a570837be6cdce8252d5d143363e37cc1",
		12: "3bba8b6e9dd5ffad5b861310433f7e397e9366e8",
		13: "a8524d608431573ef1c9313822d271f78728f9a6",
	},
	redroid.ArchARM64: {
		11: "a8524d608431573ef1c9313822d271f78728f9a6",
		12: "a8524d608431573ef1c9313822d271f78728f9a6",
		13: "a8524d608431573ef1c9313822d271f78728f9a6",
	},
}

func widevine(version redroid.AndroidVersion, arch redroid.Arch) (*Descriptor, error) {
	commit, ok := widevineCommits[arch][version.Release.Major()]
	if !ok {
		return nil, fmt.Errorf("no widevine prebuilt for android %d on %s", version.Release.Major(), arch)
	}
	return &Descriptor{
		URL:     githubArchiveURL("supremegamers", widevineRepo, commit),
		Archive: ArchiveZip,
		Layout:  LayoutTree,
		Root:    widevineRepo + "-" + commit + "/prebuilts",
		Into:    "vendor",
	}, nil
}
