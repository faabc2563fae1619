// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"kiln-cli/internal/container"
	"kiln-cli/internal/provision"
	"kiln-cli/internal/recipe"
)

var (
	shellFile   string
	shellTarget string

	shellCmd = &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive shell inside the baked image",
		Long: `Shell starts a container from the baked image with a pseudo-terminal
attached, dropping you into the exact environment the agent runs in:
same module search path, same installed dependencies, same model snapshot
(full target).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := loadRecipe(shellFile)
			if err != nil {
				return err
			}

			target := recipe.TargetSlim
			if shellTarget != "" {
				target = recipe.Target(shellTarget)
				if err := target.Validate(); err != nil {
					return err
				}
			}

			engine, err := newEngine()
			if err != nil {
				return err
			}

			lock, err := provision.ReadLock(r)
			if err != nil {
				return fmt.Errorf("no %s found; run 'kiln bake' first: %w", provision.LockFileName, err)
			}
			image, ok := lockImage(lock, target)
			if !ok {
				return fmt.Errorf("target %q has no baked image recorded; run 'kiln bake --target %s'", target, target)
			}

			cli, ok := engine.(cliEngine)
			if !ok {
				return fmt.Errorf("engine %s does not support interactive sessions", engine.Name())
			}

			runArgs := cli.BuildRunArgs(container.RunOptions{
				Image:       image,
				Command:     []string{"/bin/sh"},
				Remove:      true,
				Interactive: true,
				TTY:         true,
				WorkDir:     r.ProjectMount(),
			})

			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", SubtitleStyle.Render("attaching to"), CmdStyle.Render(image.String()))
			return attachPTY(cli.CreateCommand(cmd.Context(), runArgs...))
		},
	}
)

// cliEngine is the slice of engine behavior interactive sessions need: the
// raw argv for a run plus a command wired to the engine binary.
type cliEngine interface {
	container.Engine
	BuildRunArgs(opts container.RunOptions) []string
	CreateCommand(ctx context.Context, args ...string) *exec.Cmd
}

func init() {
	shellCmd.Flags().StringVarP(&shellFile, "file", "f", "", "path to the recipe (default: nearest kilnfile.cue)")
	shellCmd.Flags().StringVarP(&shellTarget, "target", "t", "slim", "image target to enter (slim or full)")
}
