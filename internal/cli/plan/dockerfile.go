package plan

import (
	"fmt"
	"strings"

	"github.com/pirakansa/rdpatch/internal/cli/stage"
)

// DockerfileName is the build description file inside the build context.
const DockerfileName = "Dockerfile"

// Dockerfile renders the plan as a multi-stage Dockerfile. Lines always
// end in \n, whatever the host convention.
func (p *Plan) Dockerfile() string {
	var b strings.Builder
	b.WriteString("# syntax=docker/dockerfile:1\n")
	fmt.Fprintf(&b, "# %s\n", p.Image)
	for _, s := range p.Stages {
		fmt.Fprintf(&b, "FROM %s AS %s\n", s.From, s.Name)
		for _, src := range s.Copies {
			fmt.Fprintf(&b, "COPY %s /\n", src)
		}
	}
	return b.String()
}

// DockerIgnore keeps staging bookkeeping out of the build context.
func (p *Plan) DockerIgnore() string {
	return strings.Join([]string{
		stage.MetaDir,
		stage.DownloadDir,
		".*.partial-*",
		"",
	}, "\n")
}
