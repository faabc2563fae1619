// SPDX-License-Identifier: MPL-2.0

package verify

import (
	"context"
	"strings"
	"testing"

	"kiln-cli/internal/container"
	"kiln-cli/internal/recipe"
)

// scriptedEngine returns canned exit codes per check, keyed by a substring
// of the script, and records the run options for assertions.
type scriptedEngine struct {
	runs      []container.RunOptions
	exitCodes map[string]int // script substring -> exit code
}

var _ container.Engine = (*scriptedEngine)(nil)

func (e *scriptedEngine) Name() string                                 { return "scripted" }
func (e *scriptedEngine) Available() bool                              { return true }
func (e *scriptedEngine) Version(context.Context) (string, error)      { return "0.0.0", nil }
func (e *scriptedEngine) Build(context.Context, container.BuildOptions) error { return nil }

func (e *scriptedEngine) Run(_ context.Context, opts container.RunOptions) (*container.RunResult, error) {
	e.runs = append(e.runs, opts)

	script := opts.Command[len(opts.Command)-1]
	for marker, code := range e.exitCodes {
		if strings.Contains(script, marker) {
			if code != 0 && opts.Stdout != nil {
				_, _ = opts.Stdout.Write([]byte("check failed\n"))
			}
			return &container.RunResult{ExitCode: code}, nil
		}
	}
	return &container.RunResult{ExitCode: 0}, nil
}

func (e *scriptedEngine) ImageExists(context.Context, container.ImageTag) (bool, error) {
	return true, nil
}

func (e *scriptedEngine) RemoveImage(context.Context, container.ImageTag, bool) error {
	return nil
}

func fullRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Base:       "python:3.11-slim",
		Project:    "./agent",
		Shared:     "./shared",
		Manifest:   "requirements.txt",
		ModulePath: []string{"/agent", "/agent/shared"},
		Model: &recipe.ModelSpec{
			ID:        "sentence-transformers/all-MiniLM-L6-v2",
			Dir:       "/app/model",
			Dimension: 384,
		},
		FilePath: "/work/kilnfile.cue",
	}
}

func TestChecks_PerTarget(t *testing.T) {
	t.Parallel()

	r := fullRecipe()

	slim := Checks(r, recipe.TargetSlim)
	if len(slim) != 2 {
		t.Errorf("slim target has %d checks, want 2", len(slim))
	}

	full := Checks(r, recipe.TargetFull)
	if len(full) != 4 {
		t.Errorf("full target has %d checks, want 4", len(full))
	}
}

func TestVerify_AllPass(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{}
	report, err := NewVerifier(engine).Verify(context.Background(), fullRecipe(), recipe.TargetFull, "kiln-agent:abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Passed() {
		t.Errorf("expected all checks to pass: %v", report.Failures())
	}
	if len(report.Results) != 4 {
		t.Errorf("ran %d checks, want 4", len(report.Results))
	}
}

func TestVerify_RunsOffline(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{}
	_, err := NewVerifier(engine).Verify(context.Background(), fullRecipe(), recipe.TargetFull, "kiln-agent:abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, run := range engine.runs {
		if run.Network != "none" {
			t.Errorf("check ran with network %q, must be none", run.Network)
		}
		if !run.Remove {
			t.Error("check containers must be removed after exit")
		}
	}
}

func TestVerify_FailureReported(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{exitCodes: map[string]int{"snapshot.toml": 1}}
	report, err := NewVerifier(engine).Verify(context.Background(), fullRecipe(), recipe.TargetFull, "kiln-agent:abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Passed() {
		t.Fatal("expected a failing check")
	}
	failures := report.Failures()
	if len(failures) != 1 || failures[0] != "model-snapshot" {
		t.Errorf("failures = %v, want [model-snapshot]", failures)
	}

	for _, res := range report.Results {
		if res.Name == "model-snapshot" && res.Detail == "" {
			t.Error("failed check must carry its output")
		}
	}
}

func TestVerify_DimensionEnvPassed(t *testing.T) {
	t.Parallel()

	engine := &scriptedEngine{}
	_, err := NewVerifier(engine).Verify(context.Background(), fullRecipe(), recipe.TargetFull, "kiln-agent:abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, run := range engine.runs {
		if run.Env["KILN_EXPECTED_DIMENSION"] != "384" {
			t.Errorf("expected dimension env on every check, got %v", run.Env)
		}
	}
}
