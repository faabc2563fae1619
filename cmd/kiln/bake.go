// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"kiln-cli/internal/provision"
	"kiln-cli/internal/recipe"
	"kiln-cli/internal/watch"
)

var (
	bakeFile         string
	bakeTarget       string
	bakeForceRebuild bool
	bakeWatch        bool

	bakeCmd = &cobra.Command{
		Use:   "bake",
		Short: "Bake agent runtime images from the recipe",
		Long: `Bake builds the images the recipe declares. The slim target holds the
runtime (dependencies installed, sources on the module search path); the
full target adds the pre-cached embedding model on top.

Images are cached by a content hash of their inputs: an unchanged recipe
reuses the existing image instead of rebuilding. With --watch, bake keeps
running and re-bakes whenever the recipe or its source trees change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, err := newEngine()
			if err != nil {
				return err
			}
			provisioner := newProvisioner(engine, bakeForceRebuild)

			if err := runBake(cmd, provisioner); err != nil {
				return err
			}
			if !bakeWatch {
				return nil
			}
			return runBakeWatch(cmd, provisioner)
		},
	}
)

// runBake bakes every selected target once, printing one status line each.
func runBake(cmd *cobra.Command, provisioner *provision.BakeProvisioner) error {
	r, err := loadRecipe(bakeFile)
	if err != nil {
		return err
	}

	targets, err := targetsFor(r, bakeTarget)
	if err != nil {
		return err
	}

	for _, target := range targets {
		result, err := provisioner.Bake(cmd.Context(), r, target)
		if err != nil {
			printIssuePage(bakeIssueID(err))
			return &ExitError{Code: 1, Err: err}
		}

		status := "baked"
		if result.Cached {
			status = "cached"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
			SuccessStyle.Render(status),
			target,
			CmdStyle.Render(result.ImageTag.String()),
		)
	}
	return nil
}

// runBakeWatch blocks, re-baking on every change to the recipe or its source
// trees. A re-bake failure is reported but keeps the watch alive so the next
// edit gets another attempt. When the kilnfile itself changes, the watcher
// is torn down and rebuilt so edits to the project/shared paths move the
// watch onto the new trees.
func runBakeWatch(cmd *cobra.Command, provisioner *provision.BakeProvisioner) error {
	fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("watching for changes (ctrl-c to stop)"))

	for {
		r, err := loadRecipe(bakeFile)
		if err != nil {
			return err
		}

		var rewatch atomic.Bool
		watchCtx, stopWatch := context.WithCancel(cmd.Context())

		w, err := watch.New(watch.Config{
			Recipe: r,
			OnChange: func(_ context.Context, changed []string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
					SubtitleStyle.Render("changed:"),
					strings.Join(changed, ", "),
				)
				if err := runBake(cmd, provisioner); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", ErrorStyle.Render("re-bake failed:"), err)
				}
				if needsRewatch(r, changed) {
					rewatch.Store(true)
					stopWatch()
				}
				return nil
			},
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
		})
		if err != nil {
			stopWatch()
			return err
		}

		err = w.Run(watchCtx)
		stopWatch()
		if err != nil {
			return err
		}
		if !rewatch.Load() {
			// The command context was cancelled; a clean stop.
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("recipe changed; re-deriving watched trees"))
	}
}

// needsRewatch reports whether a change set invalidates the watched tree
// set. Only the recipe file can do that; source edits never move the roots.
func needsRewatch(r *recipe.Recipe, changed []string) bool {
	name := filepath.Base(r.FilePath)
	for _, c := range changed {
		if c == name {
			return true
		}
	}
	return false
}

func init() {
	bakeCmd.Flags().StringVarP(&bakeFile, "file", "f", "", "path to the recipe (default: nearest kilnfile.cue)")
	bakeCmd.Flags().StringVarP(&bakeTarget, "target", "t", "", "bake a single target (slim or full)")
	bakeCmd.Flags().BoolVar(&bakeForceRebuild, "force-rebuild", false, "rebuild even when a cached image exists")
	bakeCmd.Flags().BoolVarP(&bakeWatch, "watch", "w", false, "re-bake when the recipe or source trees change")
}
