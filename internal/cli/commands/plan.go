package commands

import (
	"github.com/pirakansa/rdpatch/internal/cli/pipeline"
	"github.com/pirakansa/rdpatch/internal/cli/plan"
	"github.com/pirakansa/rdpatch/internal/cli/stage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type planOutput struct {
	Image      string       `yaml:"image"`
	Platform   string       `yaml:"platform"`
	Stages     []string     `yaml:"stages"`
	Sources    []planSource `yaml:"sources,omitempty"`
	Warnings   []string     `yaml:"warnings,omitempty"`
	Dockerfile string       `yaml:"dockerfile"`
}

type planSource struct {
	Module   string `yaml:"module"`
	Dest     string `yaml:"dest"`
	URL      string `yaml:"url"`
	Checksum string `yaml:"checksum,omitempty"`
}

func newPlanCmd(app *appContext) *cobra.Command {
	opts := &targetOptions{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Preview the image tag, sources and Dockerfile without downloading",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, target, request, err := app.resolveInputs(cmd, opts)
			if err != nil {
				return err
			}
			resolver, err := resolverFor(p)
			if err != nil {
				return err
			}
			descs, err := resolver.ResolveAll(request, target)
			if err != nil {
				return err
			}

			out := planOutput{Warnings: pipeline.Warnings(target, request)}
			artifacts := make([]*stage.Artifact, 0, len(descs))
			for _, desc := range descs {
				artifacts = append(artifacts, stage.Planned(desc))
				out.Sources = append(out.Sources, planSource{
					Module:   string(desc.Module),
					Dest:     desc.Dest,
					URL:      desc.URL,
					Checksum: desc.Checksum,
				})
			}
			pl, err := plan.Compose(request, target, artifacts)
			if err != nil {
				return err
			}
			out.Image = pl.Image
			out.Platform = pl.Platform
			out.Stages = pl.StageNames()
			out.Dockerfile = pl.Dockerfile()

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	bindTargetFlags(cmd, opts)
	return cmd
}
