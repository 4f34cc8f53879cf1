package resolve

import (
	"fmt"

	"github.com/pirakansa/rdpatch/pkg/redroid"
)

type pinnedArtifact struct {
	url string
	md5 string
}

// MindTheGApps publishes one zip per release and Android architecture.
var mindTheGAppsArtifacts = map[uint64]map[string]pinnedArtifact{
	14: {
		"x86_64": {"https://github.com/s1204IT/MindTheGappsBuilder/releases/download/20240226/MindTheGapps-14.0.0-x86_64-20240226.zip", "a827a84ccb0cf5914756e8561257ed13"},
		"arm64":  {"https://github.com/s1204IT/MindTheGappsBuilder/releases/download/20240226/MindTheGapps-14.0.0-arm64-20240226.zip", "a0905cc7bf3f4f4f2e3f59a4e1fc789b"},
	},
	13: {
		"x86_64": {"https://github.com/s1204IT/MindTheGappsBuilder/releases/download/20240226/MindTheGapps-13.0.0-x86_64-20240226.zip", "eee87a540b6e778f3a114fff29e133aa"},
		"arm64":  {"https://github.com/s1204IT/MindTheGappsBuilder/releases/download/20240226/MindTheGapps-13.0.0-arm64-20240226.zip", "ebdf35e17bc1c22337762fcf15cd6e97"},
	},
	12: {
		"x86_64": {"https://github.com/s1204IT/MindTheGappsBuilder/releases/download/20240619/MindTheGapps-12.1.0-x86_64-20240619.zip", "05d6e99b6e6567e66d43774559b15fbd"},
		"arm64":  {"https://github.com/s1204IT/MindTheGappsBuilder/releases/download/20240619/MindTheGapps-12.1.0-arm64-20240619.zip", "94dd174ff16c2f0006b66b25025efd04"},
	},
}

func mindTheGApps(version redroid.AndroidVersion, arch redroid.Arch) (*Descriptor, error) {
	byArch, ok := mindTheGAppsArtifacts[version.Release.Major()]
	if !ok {
		return nil, fmt.Errorf("no MindTheGApps build for android %d", version.Release.Major())
	}
	artifact, ok := byArch[arch.AndroidName()]
	if !ok {
		return nil, fmt.Errorf("no MindTheGApps build for %s", arch.AndroidName())
	}
	return &Descriptor{
		URL:      artifact.url,
		Archive:  ArchiveZip,
		Layout:   LayoutTree,
		Root:     "system",
		Into:     "system",
		Checksum: "md5:" + artifact.md5,
	}, nil
}
