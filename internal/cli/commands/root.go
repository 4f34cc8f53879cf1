package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/pirakansa/rdpatch/internal/cli/buildx"
	"github.com/pirakansa/rdpatch/internal/cli/profile"
	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	"github.com/pirakansa/rdpatch/internal/cli/shared"
	"github.com/pirakansa/rdpatch/internal/cli/stage"
	pkgprofile "github.com/pirakansa/rdpatch/pkg/profile"
	"github.com/spf13/cobra"
)

type appContext struct {
	configPath string
	verbose    bool
}

func NewRootCmd(version string) *cobra.Command {
	app := &appContext{}
	cmd := &cobra.Command{
		Use:   "rdpatch",
		Short: "Build redroid images patched with GMS, NDK translation and Widevine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&app.configPath, "config", pkgprofile.DefaultFileName, "path or URL of the build profile")
	cmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newBuildCmd(app))
	cmd.AddCommand(newPlanCmd(app))
	cmd.AddCommand(newCacheCmd(app))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}

func Execute(ctx context.Context, version string) int {
	if err := NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return mapExitCode(err)
	}
	return shared.ExitOK
}

func mapExitCode(err error) int {
	var codeErr *exitCodeError
	if errors.As(err, &codeErr) {
		return codeErr.code
	}
	var resErr *resolve.ResolutionError
	if errors.As(err, &resErr) {
		return shared.ExitResolve
	}
	var fetchErr *stage.FetchError
	if errors.As(err, &fetchErr) {
		return shared.ExitFetch
	}
	var buildErr *buildx.BuildError
	if errors.As(err, &buildErr) {
		return shared.ExitBuild
	}
	return shared.ExitFailure
}

// loadProfile reads the configured profile. Only the default location may
// be absent.
func (app *appContext) loadProfile(cmd *cobra.Command) (*profile.Profile, error) {
	optional := app.configPath == pkgprofile.DefaultFileName
	p, err := profile.Load(cmd.Context(), app.configPath, optional)
	if err != nil {
		return nil, newExitCodeError(shared.ExitConfigError, err)
	}
	return p, nil
}

func (app *appContext) logger(cmd *cobra.Command) *slog.Logger {
	return shared.NewLogger(cmd.ErrOrStderr(), app.verbose)
}

type exitCodeError struct {
	code int
	err  error
}

func newExitCodeError(code int, err error) *exitCodeError {
	return &exitCodeError{code: code, err: err}
}

func (e *exitCodeError) Error() string {
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}
