// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the recipe filename kiln looks for.
const DefaultFileName = "kilnfile.cue"

// Target selects an image variant.
type Target string

const (
	// TargetSlim bakes the runtime image without the model layer.
	TargetSlim Target = "slim"
	// TargetFull bakes the runtime image plus the baked-in model layer.
	TargetFull Target = "full"
)

// ErrKilnfileNotFound is returned when no recipe file can be located.
var ErrKilnfileNotFound = errors.New("kilnfile not found")

type (
	// ModelSpec names the embedding model baked into the full target.
	ModelSpec struct {
		// ID is the registry identifier, e.g.
		// "sentence-transformers/all-MiniLM-L6-v2".
		ID string `json:"id"`

		// Dir is the fixed in-image directory for the cached snapshot.
		Dir string `json:"dir"`

		// Dimension is the expected embedding dimensionality.
		Dimension int `json:"dimension"`
	}

	// Recipe is a parsed and schema-validated kilnfile.
	Recipe struct {
		// Base pins the interpreter runtime image.
		Base string `json:"base"`

		// Project is the host path of the agent source tree.
		Project string `json:"project"`

		// Shared is the host path of the shared library tree (optional).
		Shared string `json:"shared,omitempty"`

		// Manifest is the dependency manifest path, relative to Project.
		Manifest string `json:"manifest"`

		// ModulePath lists the in-image module search roots in mount order.
		ModulePath []string `json:"modulePath"`

		// Model configures the embedding model (required for the full target).
		Model *ModelSpec `json:"model,omitempty"`

		// DeclaredTargets is the optional explicit target list from the file.
		DeclaredTargets []Target `json:"targets,omitempty"`

		// FilePath is where the recipe was loaded from. Relative host paths
		// in the recipe resolve against its directory.
		FilePath string `json:"-"`
	}
)

// Validate reports whether the target is a known variant.
func (t Target) Validate() error {
	switch t {
	case TargetSlim, TargetFull:
		return nil
	default:
		return fmt.Errorf("unknown target %q (valid: slim, full)", t)
	}
}

// Dir returns the directory containing the recipe file.
func (r *Recipe) Dir() string {
	return filepath.Dir(r.FilePath)
}

// ProjectDir returns the project path resolved against the recipe location.
func (r *Recipe) ProjectDir() string {
	return r.resolve(r.Project)
}

// SharedDir returns the shared path resolved against the recipe location,
// or "" when no shared tree is configured.
func (r *Recipe) SharedDir() string {
	if r.Shared == "" {
		return ""
	}
	return r.resolve(r.Shared)
}

// ManifestPath returns the dependency manifest's host path.
func (r *Recipe) ManifestPath() string {
	return filepath.Join(r.ProjectDir(), r.Manifest)
}

// ProjectMount returns the in-image directory the project is copied to:
// the first module search path entry.
func (r *Recipe) ProjectMount() string {
	return r.ModulePath[0]
}

// SharedMount returns the in-image directory the shared tree is copied to:
// the second module search path entry, or "" when there is none.
func (r *Recipe) SharedMount() string {
	if len(r.ModulePath) < 2 {
		return ""
	}
	return r.ModulePath[1]
}

// ModuleSearchPath returns the module search path value written into the
// image environment, entries joined with ":".
func (r *Recipe) ModuleSearchPath() string {
	return strings.Join(r.ModulePath, ":")
}

// Targets returns the targets this recipe can bake. An explicit list wins;
// otherwise a recipe with a model bakes both variants and a model-less
// recipe bakes only slim.
func (r *Recipe) Targets() []Target {
	if len(r.DeclaredTargets) > 0 {
		return r.DeclaredTargets
	}
	if r.Model != nil {
		return []Target{TargetSlim, TargetFull}
	}
	return []Target{TargetSlim}
}

// HasTarget reports whether the recipe can bake the given target.
func (r *Recipe) HasTarget(t Target) bool {
	for _, candidate := range r.Targets() {
		if candidate == t {
			return true
		}
	}
	return false
}

func (r *Recipe) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.Dir(), path)
}

// Validate checks recipe semantics beyond the CUE schema: host paths exist,
// the module search path covers both source trees, and targets are
// satisfiable. All problems are reported together.
func (r *Recipe) Validate() error {
	var errs []error

	if info, err := os.Stat(r.ProjectDir()); err != nil || !info.IsDir() {
		errs = append(errs, fmt.Errorf("project directory %s does not exist", r.ProjectDir()))
	}

	if r.Shared != "" {
		if info, err := os.Stat(r.SharedDir()); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("shared directory %s does not exist", r.SharedDir()))
		}
		if r.SharedMount() == "" {
			errs = append(errs, errors.New("shared tree configured but modulePath has no entry for it"))
		}
	}

	if _, err := os.Stat(r.ManifestPath()); err != nil {
		errs = append(errs, fmt.Errorf("dependency manifest %s does not exist", r.ManifestPath()))
	}

	seen := make(map[string]bool, len(r.ModulePath))
	for _, entry := range r.ModulePath {
		if seen[entry] {
			errs = append(errs, fmt.Errorf("duplicate module search path entry %q", entry))
		}
		seen[entry] = true
	}

	for _, t := range r.DeclaredTargets {
		if err := t.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	if r.HasTarget(TargetFull) && r.Model == nil {
		errs = append(errs, errors.New("full target requires a model block"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
