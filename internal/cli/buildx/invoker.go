package buildx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/pirakansa/rdpatch/internal/cli/plan"
	"github.com/pirakansa/rdpatch/internal/cli/shared"
	"github.com/pirakansa/rdpatch/pkg/redroid"
)

// DefaultEngine is the container CLI used when Invoker.Engine is empty.
const DefaultEngine = "docker"

type ProfileKind string

const (
	ProfileNative ProfileKind = "native"
	ProfileCross  ProfileKind = "cross"
)

// Profile is the builder configuration selected for one target.
type Profile struct {
	Kind     ProfileKind
	Platform string
	// Builder is the buildx builder instance; empty means the current one.
	Builder string
}

// Invoker drives `docker buildx` to turn a plan into a tagged image.
type Invoker struct {
	Engine  string
	Builder string
	// HostArch defaults to runtime.GOARCH; empty on unsupported hosts.
	HostArch redroid.Arch
	NoCache  bool
	Runner   Runner
	// Output receives the engine's own output; defaults to os.Stderr.
	Output io.Writer
	Logger *slog.Logger
}

// Profile picks the native profile when the target runs on the host
// architecture and the emulated cross profile otherwise. A cross profile is
// only returned when the builder lists the target platform.
func (i *Invoker) Profile(ctx context.Context, target redroid.Target) (Profile, error) {
	platform := target.Arch.Platform()
	if target.Arch == i.hostArch() {
		return Profile{Kind: ProfileNative, Platform: platform}, nil
	}

	args := []string{"buildx", "inspect", "--bootstrap"}
	if i.Builder != "" {
		args = append(args, i.Builder)
	}
	var stdout bytes.Buffer
	if err := i.runner().Run(ctx, i.engine(), args, &stdout, i.output()); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Profile{}, ctxErr
		}
		return Profile{}, &BuildError{Reason: ReasonUnsupportedArch, Platform: platform, Err: fmt.Errorf("inspect buildx builder: %w", err)}
	}
	platforms := parsePlatforms(stdout.String())
	i.logger().Debug("buildx builder platforms", "builder", i.Builder, "platforms", strings.Join(platforms, ","))
	for _, p := range platforms {
		if p == platform {
			return Profile{Kind: ProfileCross, Platform: platform, Builder: i.Builder}, nil
		}
	}
	return Profile{}, &BuildError{
		Reason:   ReasonUnsupportedArch,
		Platform: platform,
		Err:      fmt.Errorf("builder cannot emulate %s (host %s); install binfmt handlers or pick another builder", platform, i.hostArch()),
	}
}

// parsePlatforms reads the Platforms lines of `docker buildx inspect`.
func parsePlatforms(out string) []string {
	var platforms []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		value, ok := strings.CutPrefix(line, "Platforms:")
		if !ok {
			continue
		}
		for _, p := range strings.Split(value, ",") {
			p = strings.TrimSuffix(strings.TrimSpace(p), "*")
			if p != "" {
				platforms = append(platforms, p)
			}
		}
	}
	return platforms
}

// Exists reports whether image is already present in the local image store.
func (i *Invoker) Exists(ctx context.Context, image string) (bool, error) {
	err := i.runner().Run(ctx, i.engine(), []string{"image", "inspect", image}, io.Discard, io.Discard)
	if err == nil {
		return true, nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

// Build builds p from contextDir and returns the tagged image reference.
// The tag is applied by the builder only when every stage succeeded.
func (i *Invoker) Build(ctx context.Context, p *plan.Plan, contextDir string) (string, error) {
	profile, err := i.Profile(ctx, p.Target)
	if err != nil {
		return "", err
	}
	i.logger().Info("building image", "image", p.Image, "platform", profile.Platform, "profile", string(profile.Kind))

	if err := i.pullBase(ctx, p); err != nil {
		return "", err
	}

	args := []string{"buildx", "build",
		"--platform", p.Platform,
		"--progress", "plain",
		"--load",
		"-t", p.Image,
	}
	if profile.Builder != "" {
		args = append(args, "--builder", profile.Builder)
	}
	if i.NoCache {
		args = append(args, "--no-cache")
	}
	args = append(args, contextDir)

	tracker := newStageTracker()
	out := io.MultiWriter(i.output(), tracker)
	if err := i.runner().Run(ctx, i.engine(), args, out, out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		stage := tracker.FailedStage()
		if stage == "" {
			stage = p.Final()
		}
		return "", &BuildError{Reason: ReasonStageFailed, Stage: stage, Platform: p.Platform, Err: err}
	}
	return p.Image, nil
}

func (i *Invoker) pullBase(ctx context.Context, p *plan.Plan) error {
	ref := p.Target.BaseRef()
	i.logger().Info("pulling base image", "image", ref, "platform", p.Platform)
	var stderr bytes.Buffer
	args := []string{"image", "pull", "--platform", p.Platform, ref}
	err := i.runner().Run(ctx, i.engine(), args, i.output(), io.MultiWriter(i.output(), &stderr))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	reason := ReasonStageFailed
	if strings.Contains(stderr.String(), "no matching manifest") {
		reason = ReasonUnsupportedArch
		err = fmt.Errorf("%s is not published for %s: %w", ref, p.Platform, err)
	}
	return &BuildError{Reason: reason, Stage: plan.BaseStage, Platform: p.Platform, Err: err}
}

func (i *Invoker) engine() string {
	if i.Engine == "" {
		return DefaultEngine
	}
	return i.Engine
}

func (i *Invoker) hostArch() redroid.Arch {
	if i.HostArch != "" {
		return i.HostArch
	}
	// Hosts without a native redroid platform always build cross.
	arch, _ := redroid.HostArch(runtime.GOARCH)
	return arch
}

func (i *Invoker) runner() Runner {
	if i.Runner == nil {
		return ExecRunner{}
	}
	return i.Runner
}

func (i *Invoker) output() io.Writer {
	if i.Output == nil {
		return os.Stderr
	}
	return i.Output
}

func (i *Invoker) logger() *slog.Logger {
	if i.Logger == nil {
		return shared.DiscardLogger()
	}
	return i.Logger
}
