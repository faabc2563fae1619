// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln-cli/internal/modelcache"
	"kiln-cli/internal/provision"
)

var (
	planFile string

	planCmd = &cobra.Command{
		Use:   "plan",
		Short: "Show what a bake would do without building anything",
		Long: `Plan resolves the recipe, computes the image tags a bake would produce,
and reports each step's cache status. Nothing is built or downloaded.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := loadRecipe(planFile)
			if err != nil {
				return err
			}

			engine, err := newEngine()
			if err != nil {
				return err
			}
			provisioner := newProvisioner(engine, false)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", TitleStyle.Render("recipe"), r.FilePath)
			fmt.Fprintf(out, "%s %s\n", SubtitleStyle.Render("base  "), r.Base)
			fmt.Fprintf(out, "%s %s\n\n", SubtitleStyle.Render("path  "), r.ModuleSearchPath())

			for _, target := range r.Targets() {
				steps, err := provision.Plan(r, target)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "%s %s\n", TitleStyle.Render("target"), target)
				for _, step := range steps {
					fmt.Fprintf(out, "  %s", step)
					switch step {
					case provision.StepRuntime:
						tag, err := provisioner.RuntimeImageTag(r)
						if err != nil {
							return err
						}
						exists, _ := engine.ImageExists(cmd.Context(), tag) //nolint:errcheck // Error treated as "not found"
						fmt.Fprintf(out, " -> %s%s", CmdStyle.Render(tag.String()), cachedMarker(exists))

					case provision.StepModelCache:
						warm := provisioner.Warmer().IsWarm(modelcache.ModelID(r.Model.ID))
						fmt.Fprintf(out, " -> %s%s", r.Model.ID, cachedMarker(warm))

					case provision.StepModelLayer:
						// The agent tag depends on the snapshot manifest, which
						// may not exist yet; report the dependency instead.
						fmt.Fprintf(out, " -> kiln-agent:<runtime+snapshot hash>")
					}
					fmt.Fprintln(out)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
)

func cachedMarker(cached bool) string {
	if cached {
		return SuccessStyle.Render(" (cached)")
	}
	return WarningStyle.Render(" (stale)")
}

func init() {
	planCmd.Flags().StringVarP(&planFile, "file", "f", "", "path to the recipe (default: nearest kilnfile.cue)")
}
