package commands

import (
	"fmt"

	"github.com/pirakansa/rdpatch/internal/cli/buildx"
	"github.com/pirakansa/rdpatch/internal/cli/pipeline"
	"github.com/pirakansa/rdpatch/internal/cli/stage"
	"github.com/spf13/cobra"
)

type buildOptions struct {
	target          targetOptions
	workDir         string
	builder         string
	force           bool
	noCache         bool
	noDownloadCache bool
}

func newBuildCmd(app *appContext) *cobra.Command {
	opts := &buildOptions{}
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a patched redroid image",
		Long: "Build a patched redroid image.\n\n" +
			"Only the image reference is written to stdout; progress and logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, target, request, err := app.resolveInputs(cmd, &opts.target)
			if err != nil {
				return err
			}
			resolver, err := resolverFor(p)
			if err != nil {
				return err
			}
			logger := app.logger(cmd)

			cacheDir := p.CacheDir
			if cacheDir == "" {
				if cacheDir, err = stage.DefaultCacheDir(); err != nil {
					logger.Warn("download cache disabled", "error", err)
				}
			}
			if opts.noDownloadCache {
				cacheDir = ""
			}
			builder := p.Builder
			if cmd.Flags().Changed("builder") {
				builder = opts.builder
			}

			pl := &pipeline.Pipeline{
				Resolver: resolver,
				Stager: &stage.Stager{
					CacheDir: cacheDir,
					Progress: cmd.ErrOrStderr(),
					Logger:   logger,
				},
				Builder: &buildx.Invoker{
					Engine:  p.Engine,
					Builder: builder,
					NoCache: opts.noCache,
					Output:  cmd.ErrOrStderr(),
					Logger:  logger,
				},
				Logger: logger,
			}
			image, err := pl.Execute(cmd.Context(), pipeline.Run{
				Target:  target,
				Request: request,
				WorkDir: opts.workDir,
				Force:   opts.force,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), image)
			return nil
		},
	}
	bindTargetFlags(cmd, &opts.target)
	cmd.Flags().StringVar(&opts.workDir, "work-dir", "", "build context directory (default: a temporary directory)")
	cmd.Flags().StringVar(&opts.builder, "builder", "", "buildx builder used for cross-architecture builds")
	cmd.Flags().BoolVar(&opts.force, "force", false, "rebuild even if the patched image already exists")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "do not use the build cache")
	cmd.Flags().BoolVar(&opts.noDownloadCache, "no-download-cache", false, "do not keep downloaded artifacts between runs")
	return cmd
}
