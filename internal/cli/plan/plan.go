package plan

import (
	"fmt"
	"strings"

	"github.com/pirakansa/rdpatch/internal/cli/stage"
	"github.com/pirakansa/rdpatch/pkg/redroid"
)

// BaseStage is the name of the stage holding the unmodified base image.
const BaseStage = "base"

// Stage is one layer-producing step of the build.
type Stage struct {
	Name string
	// From is the base image reference for the first stage and the name of
	// the previous stage otherwise.
	From string
	// Copies are build context directories copied onto the image root.
	Copies []string
}

// Plan is the ordered build of one patched image.
type Plan struct {
	Target   redroid.Target
	Request  redroid.Request
	Platform string
	Tag      string
	Image    string
	Stages   []Stage
}

// Final returns the name of the stage producing the tagged image.
func (p *Plan) Final() string {
	return p.Stages[len(p.Stages)-1].Name
}

// StageNames lists stage names in build order.
func (p *Plan) StageNames() []string {
	names := make([]string, 0, len(p.Stages))
	for _, s := range p.Stages {
		names = append(names, s.Name)
	}
	return names
}

// Tag returns the deterministic tag of the image built for target and
// request, e.g. 11.0.0-latest_patched_opengapps_ndk_widevine-amd64.
func Tag(target redroid.Target, request redroid.Request) string {
	var b strings.Builder
	b.WriteString(target.AndroidVersion)
	b.WriteString("_patched")
	for _, m := range request.Modules() {
		b.WriteString("_")
		if m == redroid.ModuleGMS {
			b.WriteString(string(request.GMS))
		} else {
			b.WriteString(string(m))
		}
	}
	b.WriteString("-")
	b.WriteString(string(target.Arch))
	return b.String()
}

// ImageRef returns the full reference of the patched image.
func ImageRef(target redroid.Target, request redroid.Request) string {
	return target.BaseImage + ":" + Tag(target, request)
}

// Compose orders the staged artifacts into build stages. Stages always
// follow redroid.ModuleOrder; modules that were not requested get no stage.
func Compose(request redroid.Request, target redroid.Target, artifacts []*stage.Artifact) (*Plan, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	byModule := map[redroid.Module]*stage.Artifact{}
	for _, a := range artifacts {
		if !request.Has(a.Module) {
			return nil, fmt.Errorf("artifact %s staged for module %s which was not requested", a.Dest, a.Module)
		}
		if _, dup := byModule[a.Module]; dup {
			return nil, fmt.Errorf("module %s staged more than once", a.Module)
		}
		byModule[a.Module] = a
	}

	p := &Plan{
		Target:   target,
		Request:  request,
		Platform: target.Arch.Platform(),
		Tag:      Tag(target, request),
		Image:    ImageRef(target, request),
		Stages:   []Stage{{Name: BaseStage, From: target.BaseRef()}},
	}
	for _, m := range request.Modules() {
		a, ok := byModule[m]
		if !ok {
			return nil, fmt.Errorf("module %s was requested but not staged", m)
		}
		p.Stages = append(p.Stages, Stage{
			Name:   string(m),
			From:   p.Final(),
			Copies: []string{a.Dest},
		})
	}
	return p, nil
}
