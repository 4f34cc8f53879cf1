package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	pkgprofile "github.com/pirakansa/rdpatch/pkg/profile"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an rdpatch.yaml profile template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := writeIfNotExists(pkgprofile.DefaultFileName, profileTemplate()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "initialized:", pkgprofile.DefaultFileName)
			return nil
		},
	}
	return cmd
}

func writeIfNotExists(path, content string) error {
	_, err := os.Stat(path)
	if err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func profileTemplate() string {
	return fmt.Sprintf(`version: %d
image: %s
android: %s
# architecture: arm64
# gapps: mindthegapps
ndk: false
widevine: false
engine: %s
# builder: multiarch
# cache_dir: /var/cache/rdpatch
sources: []
#  - _comment: local mirror of MindTheGApps
#    module: gms
#    provider: mindthegapps
#    arch: arm64
#    android: ">= 13, < 14"
#    url: https://mirror.example.com/MindTheGapps-13.0.0-arm64.zip
#    root: system
#    into: system
#    checksum: md5:<hex>
`, pkgprofile.ProfileVersion, pkgprofile.DefaultImage, pkgprofile.DefaultAndroid, pkgprofile.DefaultEngine)
}
