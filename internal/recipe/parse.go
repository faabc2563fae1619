// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"kiln-cli/internal/cueval"
)

//go:embed kilnfile_schema.cue
var kilnfileSchema string

// Parse reads and parses a kilnfile from the given path. The result is
// schema-validated and structurally validated; callers get either a usable
// recipe or an error naming every problem found.
func Parse(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read kilnfile at %s: %w", path, err)
	}

	return ParseBytes(data, path)
}

// ParseBytes parses kilnfile content from bytes. The path is used for error
// messages and for resolving relative host paths in the recipe.
func ParseBytes(data []byte, path string) (*Recipe, error) {
	r, err := cueval.Decode[Recipe](
		kilnfileSchema,
		data,
		"#Kilnfile",
		cueval.WithFilename(path),
	)
	if err != nil {
		return nil, err
	}

	r.FilePath = path

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return r, nil
}

// Find locates a kilnfile starting from dir: the directory itself, then its
// ancestors up to the filesystem root. Returns ErrKilnfileNotFound when no
// recipe exists anywhere on the walk up.
func Find(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	for {
		candidate := filepath.Join(current, DefaultFileName)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w: searched %s and ancestors", ErrKilnfileNotFound, dir)
		}
		current = parent
	}
}
