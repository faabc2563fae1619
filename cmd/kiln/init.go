// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kiln-cli/internal/recipe"
)

// starterKilnfile is the template written by 'kiln init'. It assumes the
// common layout: agent sources in ./agent, shared libraries in ./shared.
const starterKilnfile = `// Kiln bake recipe
// Adjust paths to match your project layout.

base:    "python:3.11-slim"
project: "./agent"
shared:  "./shared"

// Dependency manifest, relative to project.
manifest: "requirements.txt"

// In-image module search roots, in mount order: project first, shared
// second. Both become importable via PYTHONPATH.
modulePath: ["/agent", "/agent/shared"]

// Embedding model baked into the full target. Remove this block to bake
// only the slim (model-less) image.
model: {
	id:        "sentence-transformers/all-MiniLM-L6-v2"
	dir:       "/app/model"
	dimension: 384
}
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter recipe in the current directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to resolve working directory: %w", err)
		}

		path := filepath.Join(cwd, recipe.DefaultFileName)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", recipe.DefaultFileName)
		}

		if err := os.WriteFile(path, []byte(starterKilnfile), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("created"), path)
		fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("Edit the recipe, then run 'kiln bake'."))
		return nil
	},
}
