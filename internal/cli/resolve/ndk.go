package resolve

import (
	"fmt"

	"github.com/pirakansa/rdpatch/pkg/redroid"
)

const (
	ndkTranslationRepo     = "vendor_google_proprietary_ndk_translation-prebuilt"
	ndkTranslationCommit   = "9324a8914b649b885dad6f2bfd14a67e5d1520bf"
	ndkTranslationReleases = ">= 11, < 13"
)

// libndk_translation ships as a single archive for every architecture.
func ndkTranslation(version redroid.AndroidVersion, _ redroid.Arch) (*Descriptor, error) {
	if !version.Satisfies(ndkTranslationReleases) {
		return nil, fmt.Errorf("libndk translation has not been tested against android %d", version.Release.Major())
	}
	return &Descriptor{
		URL:     githubArchiveURL("supremegamers", ndkTranslationRepo, ndkTranslationCommit),
		Archive: ArchiveZip,
		Layout:  LayoutTree,
		Root:    ndkTranslationRepo + "-" + ndkTranslationCommit + "/prebuilts",
		Into:    "system",
	}, nil
}

func githubArchiveURL(owner, repo, commit string) string {
	return fmt.Sprintf("https://github.com/%s/%s/archive/%s.zip", owner, repo, commit)
}
