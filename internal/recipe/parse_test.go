// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestTree creates a minimal project/shared layout and returns a
// kilnfile body pointing at it.
func writeTestTree(t *testing.T) (dir string) {
	t.Helper()

	dir = t.TempDir()
	for _, sub := range []string{"agent", "shared"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatalf("failed to create %s: %v", sub, err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "agent", "requirements.txt"), []byte("requests==2.32.0\n"), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return dir
}

const validKilnfile = `
base:     "python:3.11-slim"
project:  "./agent"
shared:   "./shared"
manifest: "requirements.txt"

modulePath: ["/agent", "/agent/shared"]

model: {
	id:        "sentence-transformers/all-MiniLM-L6-v2"
	dir:       "/app/model"
	dimension: 384
}
`

func writeKilnfile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write kilnfile: %v", err)
	}
	return path
}

func TestParse_Valid(t *testing.T) {
	t.Parallel()

	dir := writeTestTree(t)
	path := writeKilnfile(t, dir, validKilnfile)

	r, err := Parse(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Base != "python:3.11-slim" {
		t.Errorf("Base = %q", r.Base)
	}
	if r.ProjectMount() != "/agent" {
		t.Errorf("ProjectMount = %q", r.ProjectMount())
	}
	if r.SharedMount() != "/agent/shared" {
		t.Errorf("SharedMount = %q", r.SharedMount())
	}
	if r.ModuleSearchPath() != "/agent:/agent/shared" {
		t.Errorf("ModuleSearchPath = %q", r.ModuleSearchPath())
	}
	if r.Model == nil || r.Model.Dimension != 384 {
		t.Errorf("Model = %+v", r.Model)
	}
	if r.ManifestPath() != filepath.Join(dir, "agent", "requirements.txt") {
		t.Errorf("ManifestPath = %q", r.ManifestPath())
	}
}

func TestParse_DefaultsApplied(t *testing.T) {
	t.Parallel()

	dir := writeTestTree(t)
	path := writeKilnfile(t, dir, `
base:    "python:3.11-slim"
project: "./agent"
modulePath: ["/agent"]
model: {
	id:        "sentence-transformers/all-MiniLM-L6-v2"
	dimension: 384
}
`)

	r, err := Parse(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Manifest != "requirements.txt" {
		t.Errorf("expected manifest default, got %q", r.Manifest)
	}
	if r.Model.Dir != "/app/model" {
		t.Errorf("expected model dir default, got %q", r.Model.Dir)
	}
}

func TestParse_SchemaViolations(t *testing.T) {
	t.Parallel()

	dir := writeTestTree(t)

	cases := []struct {
		name    string
		content string
	}{
		{"empty base", `
base:    ""
project: "./agent"
modulePath: ["/agent"]
`},
		{"relative module path entry", `
base:    "python:3.11-slim"
project: "./agent"
modulePath: ["agent"]
`},
		{"zero dimension", `
base:    "python:3.11-slim"
project: "./agent"
modulePath: ["/agent"]
model: {
	id:        "sentence-transformers/all-MiniLM-L6-v2"
	dimension: 0
}
`},
		{"unknown target", `
base:    "python:3.11-slim"
project: "./agent"
modulePath: ["/agent"]
targets: ["fat"]
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeKilnfile(t, t.TempDir(), tc.content)
			// Reuse the valid tree dir where the content references it.
			_ = dir
			if _, err := ParseBytes([]byte(tc.content), path); err == nil {
				t.Error("expected schema violation")
			}
		})
	}
}

func TestParse_MissingProjectDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir() // no agent/ tree
	path := writeKilnfile(t, dir, `
base:    "python:3.11-slim"
project: "./agent"
modulePath: ["/agent"]
`)

	_, err := Parse(path)
	if err == nil {
		t.Fatal("expected validation error for missing project dir")
	}
	if !strings.Contains(err.Error(), "project directory") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse_MissingManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "agent"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := writeKilnfile(t, dir, `
base:    "python:3.11-slim"
project: "./agent"
modulePath: ["/agent"]
`)

	_, err := Parse(path)
	if err == nil {
		t.Fatal("expected validation error for missing manifest")
	}
	if !strings.Contains(err.Error(), "manifest") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParse_FullTargetRequiresModel(t *testing.T) {
	t.Parallel()

	dir := writeTestTree(t)
	path := writeKilnfile(t, dir, `
base:    "python:3.11-slim"
project: "./agent"
modulePath: ["/agent"]
targets: ["full"]
`)

	_, err := Parse(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "model") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTargets_Defaults(t *testing.T) {
	t.Parallel()

	withModel := &Recipe{Model: &ModelSpec{ID: "m", Dir: "/app/model", Dimension: 384}}
	if got := withModel.Targets(); len(got) != 2 {
		t.Errorf("expected both targets with model, got %v", got)
	}

	withoutModel := &Recipe{}
	got := withoutModel.Targets()
	if len(got) != 1 || got[0] != TargetSlim {
		t.Errorf("expected slim only without model, got %v", got)
	}

	explicit := &Recipe{DeclaredTargets: []Target{TargetSlim}}
	if got := explicit.Targets(); len(got) != 1 || got[0] != TargetSlim {
		t.Errorf("explicit targets should win, got %v", got)
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	dir := writeTestTree(t)
	path := writeKilnfile(t, dir, validKilnfile)

	// Direct hit.
	found, err := Find(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != path {
		t.Errorf("Find = %q, want %q", found, path)
	}

	// Ancestor walk from a nested directory.
	nested := filepath.Join(dir, "agent")
	found, err = Find(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != path {
		t.Errorf("Find from nested = %q, want %q", found, path)
	}
}

func TestFind_NotFound(t *testing.T) {
	t.Parallel()

	_, err := Find(t.TempDir())
	if !errors.Is(err, ErrKilnfileNotFound) {
		t.Errorf("expected ErrKilnfileNotFound, got %v", err)
	}
}
