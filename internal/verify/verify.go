// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"kiln-cli/internal/container"
	"kiln-cli/internal/recipe"
)

type (
	// Check is one verification probe: a named script run inside the image.
	Check struct {
		// Name identifies the check in reports.
		Name string
		// Script is the python source executed inside the container.
		Script string
	}

	// CheckResult reports one check's outcome.
	CheckResult struct {
		Name   string
		Passed bool
		// Detail holds the script's output when the check fails.
		Detail string
	}

	// Report aggregates the results of a verification run.
	Report struct {
		Image   container.ImageTag
		Results []CheckResult
	}

	// Verifier runs checks against baked images.
	Verifier struct {
		engine container.Engine
	}
)

// NewVerifier creates a Verifier on the given engine.
func NewVerifier(engine container.Engine) *Verifier {
	return &Verifier{engine: engine}
}

// Passed reports whether every check in the report passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Failures returns the names of failed checks.
func (r *Report) Failures() []string {
	var names []string
	for _, res := range r.Results {
		if !res.Passed {
			names = append(names, res.Name)
		}
	}
	return names
}

// searchPathScript asserts that every module search path root is visible to
// the interpreter's import machinery.
const searchPathScript = `
import os, sys

roots = os.environ.get("PYTHONPATH", "").split(":")
missing = [r for r in roots if r and r not in sys.path]
if missing:
    print("module search path roots missing from sys.path:", missing)
    raise SystemExit(1)
`

// editableInstallScript asserts that the project was installed into the
// interpreter's environment (editable installs register distribution
// metadata like any other install).
const editableInstallScript = `
import importlib.metadata

dists = [d.metadata["Name"] for d in importlib.metadata.distributions() if d.metadata["Name"]]
if not dists:
    print("no installed distributions found")
    raise SystemExit(1)
`

// modelSnapshotScript asserts the baked snapshot is complete and declares
// the expected dimensionality. Pure-stdlib on purpose: it must work in any
// image and must not trigger a framework's registry fallback.
const modelSnapshotScript = `
import json, os

model_dir = os.environ["KILN_MODEL_DIR"]
expected = int(os.environ["KILN_EXPECTED_DIMENSION"])

manifest = os.path.join(model_dir, "snapshot.toml")
if not os.path.isfile(manifest):
    print("snapshot manifest missing:", manifest)
    raise SystemExit(1)

with open(os.path.join(model_dir, "config.json")) as f:
    config = json.load(f)
if config.get("hidden_size") != expected:
    print("dimension mismatch: config declares", config.get("hidden_size"), "expected", expected)
    raise SystemExit(1)
`

// offlineGuardScript asserts the offline switches are baked in, so model
// loaders fail fast instead of reaching for the registry.
const offlineGuardScript = `
import os

for var in ("HF_HUB_OFFLINE", "TRANSFORMERS_OFFLINE"):
    if os.environ.get(var) != "1":
        print("offline switch not set:", var)
        raise SystemExit(1)
`

// Checks returns the checks applicable to a target.
func Checks(r *recipe.Recipe, target recipe.Target) []Check {
	checks := []Check{
		{Name: "module-search-path", Script: searchPathScript},
		{Name: "editable-install", Script: editableInstallScript},
	}
	if target == recipe.TargetFull && r.Model != nil {
		checks = append(checks,
			Check{Name: "model-snapshot", Script: modelSnapshotScript},
			Check{Name: "offline-guard", Script: offlineGuardScript},
		)
	}
	return checks
}

// Verify runs every applicable check against the image. All checks run with
// networking disabled; a check that needs the network is a failing check.
func (v *Verifier) Verify(ctx context.Context, r *recipe.Recipe, target recipe.Target, image container.ImageTag) (*Report, error) {
	report := &Report{Image: image}

	for _, check := range Checks(r, target) {
		var output bytes.Buffer

		env := map[string]string{}
		if target == recipe.TargetFull && r.Model != nil {
			env["KILN_EXPECTED_DIMENSION"] = fmt.Sprintf("%d", r.Model.Dimension)
		}

		result, err := v.engine.Run(ctx, container.RunOptions{
			Image:   image,
			Command: []string{"python", "-c", check.Script},
			Env:     env,
			Network: "none",
			Remove:  true,
			Stdout:  &output,
			Stderr:  &output,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to run check %s: %w", check.Name, err)
		}
		if result.Error != nil {
			return nil, fmt.Errorf("failed to run check %s: %w", check.Name, result.Error)
		}

		report.Results = append(report.Results, CheckResult{
			Name:   check.Name,
			Passed: result.ExitCode == 0,
			Detail: strings.TrimSpace(output.String()),
		})
	}

	return report, nil
}
