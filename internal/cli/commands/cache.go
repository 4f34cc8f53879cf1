package commands

import (
	"fmt"
	"os"

	"github.com/pirakansa/rdpatch/internal/cli/stage"
	"github.com/spf13/cobra"
)

func newCacheCmd(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the download cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the download cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := app.cacheDir(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove every cached download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := app.cacheDir(cmd)
			if err != nil {
				return err
			}
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
			app.logger(cmd).Info("removed download cache", "dir", dir)
			return nil
		},
	})
	return cmd
}

func (app *appContext) cacheDir(cmd *cobra.Command) (string, error) {
	p, err := app.loadProfile(cmd)
	if err != nil {
		return "", err
	}
	if p.CacheDir != "" {
		return p.CacheDir, nil
	}
	return stage.DefaultCacheDir()
}
