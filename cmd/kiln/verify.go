// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kiln-cli/internal/container"
	"kiln-cli/internal/provision"
	"kiln-cli/internal/recipe"
	"kiln-cli/internal/verify"
)

var (
	verifyFile   string
	verifyTarget string

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Run offline checks against the baked images",
		Long: `Verify runs each check inside the baked image with networking disabled:
module search path roots importable, the project installed, and (for the
full target) the baked model snapshot present with the expected
dimensionality. A pass proves the image works with no registry access.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := loadRecipe(verifyFile)
			if err != nil {
				return err
			}

			targets, err := targetsFor(r, verifyTarget)
			if err != nil {
				return err
			}

			engine, err := newEngine()
			if err != nil {
				return err
			}

			lock, err := provision.ReadLock(r)
			if err != nil {
				return fmt.Errorf("no %s found; run 'kiln bake' first: %w", provision.LockFileName, err)
			}

			verifier := verify.NewVerifier(engine)
			failed := false

			for _, target := range targets {
				image, ok := lockImage(lock, target)
				if !ok {
					return fmt.Errorf("target %q has no baked image recorded; run 'kiln bake --target %s'", target, target)
				}

				report, err := verifier.Verify(cmd.Context(), r, target, image)
				if err != nil {
					return &ExitError{Code: 1, Err: err}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s %s\n", TitleStyle.Render("verify"), target, CmdStyle.Render(image.String()))
				for _, res := range report.Results {
					if res.Passed {
						fmt.Fprintf(out, "  %s %s\n", SuccessStyle.Render("ok  "), res.Name)
					} else {
						failed = true
						fmt.Fprintf(out, "  %s %s\n", ErrorStyle.Render("FAIL"), res.Name)
						if res.Detail != "" {
							fmt.Fprintf(out, "       %s\n", SubtitleStyle.Render(res.Detail))
						}
					}
				}
			}

			if failed {
				return &ExitError{Code: 1, Err: fmt.Errorf("verification failed")}
			}
			return nil
		},
	}
)

// lockImage finds the recorded image for a target in the lock file.
func lockImage(lock *provision.Lock, target recipe.Target) (container.ImageTag, bool) {
	for _, t := range lock.Targets {
		if t.Target == string(target) {
			return container.ImageTag(t.Image), true
		}
	}
	return "", false
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyFile, "file", "f", "", "path to the recipe (default: nearest kilnfile.cue)")
	verifyCmd.Flags().StringVarP(&verifyTarget, "target", "t", "", "verify a single target (slim or full)")
}
