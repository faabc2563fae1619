// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln-cli/internal/issue"
	"kiln-cli/internal/modelcache"
	"kiln-cli/internal/provision"
)

var (
	warmFile string

	warmCmd = &cobra.Command{
		Use:   "warm [model-id]",
		Short: "Pre-fetch the embedding model snapshot into the local cache",
		Long: `Warm downloads the embedding model's files into the host-side cache so
subsequent bakes of the full target need no registry access. Warming is
idempotent: an already-complete snapshot is left untouched.

Without arguments the model comes from the recipe; an explicit model id
overrides it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id modelcache.ModelID
			if len(args) == 1 {
				id = modelcache.ModelID(args[0])
				if err := id.Validate(); err != nil {
					return err
				}
			} else {
				r, err := loadRecipe(warmFile)
				if err != nil {
					return err
				}
				if r.Model == nil {
					return fmt.Errorf("recipe declares no model; pass a model id explicitly")
				}
				id = modelcache.ModelID(r.Model.ID)
			}

			cfg := currentConfig()
			provisionCfg := provision.DefaultConfig()
			if cfg.CacheDir != "" {
				provisionCfg.Apply(provision.WithCacheDir(cfg.CacheDir))
			}
			warmer := newWarmer(cfg, provisionCfg)

			dir, err := warmer.Warm(cmd.Context(), id)
			if err != nil {
				printIssuePage(issue.ModelResolveFailedId)
				return &ExitError{Code: 1, Err: err}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
				SuccessStyle.Render("warm"),
				id,
				SubtitleStyle.Render(dir),
			)
			return nil
		},
	}
)

func init() {
	warmCmd.Flags().StringVarP(&warmFile, "file", "f", "", "path to the recipe (default: nearest kilnfile.cue)")
}
