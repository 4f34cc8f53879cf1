package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pirakansa/rdpatch/internal/cli/plan"
	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	"github.com/pirakansa/rdpatch/internal/cli/shared"
	"github.com/pirakansa/rdpatch/internal/cli/stage"
	"github.com/pirakansa/rdpatch/pkg/redroid"
)

// Builder turns a composed plan into an image.
type Builder interface {
	Exists(ctx context.Context, image string) (bool, error)
	Build(ctx context.Context, p *plan.Plan, contextDir string) (string, error)
}

// Run describes one image build. All state of a run lives here and in
// its WorkDir; nothing depends on the process working directory.
type Run struct {
	Target  redroid.Target
	Request redroid.Request
	// WorkDir is the build context. When empty a temporary directory is
	// created and removed when the run ends.
	WorkDir string
	// Force rebuilds even when the patched image already exists.
	Force bool
}

// Pipeline resolves, stages, composes and builds in that order. Every
// requested module is resolved before anything is downloaded.
type Pipeline struct {
	Resolver *resolve.Resolver
	Stager   *stage.Stager
	Builder  Builder
	Logger   *slog.Logger
}

// Execute runs the build and returns the patched image reference.
func (p *Pipeline) Execute(ctx context.Context, run Run) (string, error) {
	if err := run.Target.Validate(); err != nil {
		return "", err
	}
	descs, err := p.resolver().ResolveAll(run.Request, run.Target)
	if err != nil {
		return "", err
	}
	for _, w := range Warnings(run.Target, run.Request) {
		p.logger().Warn(w)
	}

	image := plan.ImageRef(run.Target, run.Request)
	if !run.Force {
		exists, err := p.Builder.Exists(ctx, image)
		if err != nil {
			return "", err
		}
		if exists {
			p.logger().Info("image already exists, skipping build", "image", image)
			return image, nil
		}
	}

	workDir, cleanup, err := p.workDir(run.WorkDir)
	if err != nil {
		return "", err
	}
	defer cleanup()

	artifacts := make([]*stage.Artifact, 0, len(descs))
	for _, desc := range descs {
		artifact, err := p.Stager.Stage(ctx, desc, workDir)
		if err != nil {
			return "", err
		}
		defer func() {
			if err := artifact.Remove(); err != nil {
				p.logger().Warn("remove staged artifact", "module", string(artifact.Module), "error", err)
			}
		}()
		artifacts = append(artifacts, artifact)
	}

	pl, err := plan.Compose(run.Request, run.Target, artifacts)
	if err != nil {
		return "", err
	}
	if err := WriteContext(workDir, pl); err != nil {
		return "", err
	}
	p.logger().Debug("build plan", "stages", pl.StageNames(), "context", workDir)
	return p.Builder.Build(ctx, pl, workDir)
}

// WriteContext writes the Dockerfile and .dockerignore for pl into dir.
func WriteContext(dir string, pl *plan.Plan) error {
	if err := renameio.WriteFile(filepath.Join(dir, plan.DockerfileName), []byte(pl.Dockerfile()), 0o644); err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dir, ".dockerignore"), []byte(pl.DockerIgnore()), 0o644)
}

func (p *Pipeline) workDir(dir string) (string, func(), error) {
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", nil, err
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return "", nil, err
		}
		return abs, func() {}, nil
	}
	temp, err := os.MkdirTemp("", "rdpatch-")
	if err != nil {
		return "", nil, err
	}
	return temp, func() {
		if err := os.RemoveAll(temp); err != nil {
			p.logger().Warn("remove build context", "dir", temp, "error", err)
		}
	}, nil
}

func (p *Pipeline) resolver() *resolve.Resolver {
	if p.Resolver == nil {
		return &resolve.Resolver{}
	}
	return p.Resolver
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return shared.DiscardLogger()
	}
	return p.Logger
}
