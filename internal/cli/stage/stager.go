package stage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	"github.com/pirakansa/rdpatch/internal/cli/shared"
	"github.com/pirakansa/rdpatch/pkg/redroid"
	"gopkg.in/yaml.v3"
)

// MetaDir holds staging markers inside the build context.
const MetaDir = ".rdpatch"

// Stager downloads module artifacts and extracts them into a build context.
type Stager struct {
	Client *http.Client
	// CacheDir enables the download cache for artifacts with a checksum.
	CacheDir string
	// Progress receives download progress bars; nil disables them.
	Progress io.Writer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Artifact is a module extracted into the build context.
type Artifact struct {
	Module redroid.Module
	// Dest is the build context relative directory holding the module.
	Dest string
	// Dir is the absolute path of Dest. It is empty for planned artifacts.
	Dir    string
	marker string
}

// Planned returns the artifact desc would stage into, without touching
// the filesystem.
func Planned(desc *resolve.Descriptor) *Artifact {
	return &Artifact{Module: desc.Module, Dest: desc.Dest}
}

// Remove deletes the staged files. It is safe to call more than once.
func (a *Artifact) Remove() error {
	if a.Dir == "" {
		return nil
	}
	err := os.RemoveAll(a.Dir)
	if a.marker != "" {
		if rmErr := os.Remove(a.marker); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}
	return err
}

type stagingMarker struct {
	URL      string `yaml:"url"`
	Checksum string `yaml:"checksum,omitempty"`
	Archive  string `yaml:"archive"`
	Layout   string `yaml:"layout"`
	Root     string `yaml:"root,omitempty"`
	Into     string `yaml:"into,omitempty"`
	StagedAt string `yaml:"staged_at"`
}

func (m stagingMarker) sameSource(other stagingMarker) bool {
	m.StagedAt, other.StagedAt = "", ""
	return m == other
}

func markerFor(desc *resolve.Descriptor) stagingMarker {
	return stagingMarker{
		URL:      desc.URL,
		Checksum: desc.Checksum,
		Archive:  string(desc.Archive),
		Layout:   string(desc.Layout),
		Root:     desc.Root,
		Into:     desc.Into,
	}
}

// Stage downloads desc and extracts it into workDir/desc.Dest. A module
// already staged from the same source is reused. On failure nothing new
// is left in workDir.
func (s *Stager) Stage(ctx context.Context, desc *resolve.Descriptor, workDir string) (*Artifact, error) {
	if err := validateDest(desc.Dest); err != nil {
		return nil, err
	}
	checksum, err := shared.ParseChecksum(desc.Checksum)
	if err != nil {
		return nil, fetchError(ReasonIntegrity, desc.URL, err)
	}

	artifact := &Artifact{
		Module: desc.Module,
		Dest:   desc.Dest,
		Dir:    filepath.Join(workDir, desc.Dest),
		marker: filepath.Join(workDir, MetaDir, desc.Dest+".yaml"),
	}
	want := markerFor(desc)
	if s.alreadyStaged(artifact, want) {
		s.logger().Info("reusing staged artifact", "module", desc.Name(), "dir", artifact.Dir)
		return artifact, nil
	}
	if err := artifact.Remove(); err != nil {
		return nil, err
	}

	s.logger().Info("fetching artifact", "module", desc.Name(), "url", desc.URL)
	archivePath, release, err := s.fetch(ctx, desc, checksum, workDir)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := checkFormat(archivePath, desc.Archive); err != nil {
		return nil, fetchError(ReasonFormat, desc.URL, err)
	}
	if err := extract(desc, archivePath, workDir, artifact.Dir); err != nil {
		return nil, fetchError(ReasonFormat, desc.URL, err)
	}

	want.StagedAt = s.now().UTC().Format(time.RFC3339)
	if err := writeMarker(artifact.marker, want); err != nil {
		_ = artifact.Remove()
		return nil, err
	}
	s.logger().Debug("staged artifact", "module", desc.Name(), "dir", artifact.Dir)
	return artifact, nil
}

// extract unpacks into a sibling directory first and renames it into place
// once complete, so dir never holds a partial tree.
func extract(desc *resolve.Descriptor, archivePath, workDir, dir string) error {
	partial, err := os.MkdirTemp(workDir, "."+desc.Dest+".partial-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(partial)
	if err := unpack(desc, archivePath, partial); err != nil {
		return err
	}
	if err := os.Chmod(partial, 0o755); err != nil {
		return err
	}
	return os.Rename(partial, dir)
}

func (s *Stager) alreadyStaged(artifact *Artifact, want stagingMarker) bool {
	b, err := os.ReadFile(artifact.marker)
	if err != nil {
		return false
	}
	var got stagingMarker
	if err := yaml.Unmarshal(b, &got); err != nil {
		return false
	}
	if !got.sameSource(want) {
		return false
	}
	info, err := os.Stat(artifact.Dir)
	return err == nil && info.IsDir()
}

func writeMarker(path string, m stagingMarker) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, b, 0o644)
}

func validateDest(dest string) error {
	if dest == "" || dest == "." || dest == ".." || strings.ContainsAny(dest, `/\`) || strings.HasPrefix(dest, ".") {
		return fmt.Errorf("invalid staging directory name %q", dest)
	}
	return nil
}

func (s *Stager) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *Stager) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return shared.DiscardLogger()
}

func (s *Stager) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
