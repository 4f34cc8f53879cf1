package pipeline

import (
	"github.com/pirakansa/rdpatch/pkg/redroid"
)

// Warnings lists deprecation notices for a build. They never stop it.
func Warnings(target redroid.Target, request redroid.Request) []string {
	var out []string
	if version, err := redroid.ParseAndroidVersion(target.AndroidVersion); err == nil {
		switch {
		case version.Legacy():
			out = append(out, "Android "+version.Release.String()+" no longer receives security updates; update to a supported release")
		case version.MixedMode():
			out = append(out, "images running 32-bit and 64-bit binaries are unsupported; use a _64only image")
		}
	}
	if request.GMS == redroid.GMSLiteGApps {
		out = append(out, "litegapps is deprecated because it has no documentation available")
	}
	if request.NDK && target.Arch != redroid.ArchAMD64 {
		out = append(out, "ndk translation runs arm binaries on x86_64; it has no effect on "+string(target.Arch)+" images")
	}
	return out
}
