// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"os/exec"
	"slices"
	"strings"
	"testing"
)

// fakeExec returns an ExecCommandFunc that records the invocation and runs
// /usr/bin/true (or /usr/bin/false) instead of a real container engine.
func fakeExec(t *testing.T, calls *[][]string, fail bool) ExecCommandFunc {
	t.Helper()
	return func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		*calls = append(*calls, append([]string{name}, arg...))
		bin := "true"
		if fail {
			bin = "false"
		}
		return exec.CommandContext(ctx, bin)
	}
}

func TestBuildArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker", WithName("docker"))

	args := e.BuildArgs(BuildOptions{
		ContextDir: "/tmp/ctx",
		Dockerfile: "Dockerfile",
		Tag:        "kiln-runtime:abc123",
		NoCache:    true,
		BuildArgs:  map[string]string{"B": "2", "A": "1"},
	})

	want := []string{
		"build",
		"-f", "/tmp/ctx/Dockerfile",
		"-t", "kiln-runtime:abc123",
		"--no-cache",
		"--build-arg", "A=1",
		"--build-arg", "B=2",
		"/tmp/ctx",
	}
	if !slices.Equal(args, want) {
		t.Errorf("BuildArgs = %v, want %v", args, want)
	}
}

func TestBuildArgs_AbsoluteDockerfile(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")

	args := e.BuildArgs(BuildOptions{
		ContextDir: "/tmp/ctx",
		Dockerfile: "/elsewhere/Dockerfile",
		Tag:        "t:1",
	})

	if !slices.Contains(args, "/elsewhere/Dockerfile") {
		t.Errorf("absolute Dockerfile path should be used as-is, got %v", args)
	}
}

func TestRunArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")

	args := e.RunArgs(RunOptions{
		Image:   "kiln-agent:abc123",
		Command: []string{"python", "-c", "pass"},
		Remove:  true,
		Network: "none",
		WorkDir: "/agent",
		Env:     map[string]string{"PYTHONPATH": "/agent:/agent/shared"},
		Volumes: []VolumeMount{{HostPath: "/host/data", ContainerPath: "/data", ReadOnly: true}},
	})

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"run",
		"--rm",
		"--network none",
		"-w /agent",
		"-e PYTHONPATH=/agent:/agent/shared",
		"-v /host/data:/data:ro",
		"kiln-agent:abc123 python -c pass",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("RunArgs missing %q in %q", want, joined)
		}
	}
}

func TestRunArgs_Transformer(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/podman", WithRunArgsTransformer(injectKeepID))

	args := e.RunArgs(RunOptions{Image: "t:1"})
	if len(args) < 2 || args[1] != "--userns=keep-id" {
		t.Errorf("expected --userns=keep-id after run verb, got %v", args)
	}
}

func TestRemoveImageArgs(t *testing.T) {
	t.Parallel()

	e := NewBaseCLIEngine("/usr/bin/docker")

	if got := e.RemoveImageArgs("t:1", false); !slices.Equal(got, []string{"rmi", "t:1"}) {
		t.Errorf("RemoveImageArgs = %v", got)
	}
	if got := e.RemoveImageArgs("t:1", true); !slices.Equal(got, []string{"rmi", "-f", "t:1"}) {
		t.Errorf("RemoveImageArgs force = %v", got)
	}
}

func TestBuild_ValidatesOptions(t *testing.T) {
	t.Parallel()

	var calls [][]string
	e := NewBaseCLIEngine("/usr/bin/docker", WithExecCommand(fakeExec(t, &calls, false)))

	err := e.Build(context.Background(), BuildOptions{ContextDir: "", Tag: "t:1"})
	if err == nil {
		t.Fatal("expected validation error for empty context dir")
	}
	if len(calls) != 0 {
		t.Error("engine binary should not be invoked on invalid options")
	}
}

func TestBuild_Failure(t *testing.T) {
	t.Parallel()

	var calls [][]string
	e := NewBaseCLIEngine("/usr/bin/docker", WithName("docker"), WithExecCommand(fakeExec(t, &calls, true)))

	err := e.Build(context.Background(), BuildOptions{ContextDir: "/tmp/ctx", Tag: "t:1"})
	if err == nil {
		t.Fatal("expected build failure to surface as error")
	}
	if len(calls) != 1 {
		t.Errorf("expected 1 engine invocation, got %d", len(calls))
	}
}

func TestRun_ExitCodeNotError(t *testing.T) {
	t.Parallel()

	var calls [][]string
	e := NewBaseCLIEngine("/usr/bin/docker", WithExecCommand(fakeExec(t, &calls, true)))

	result, err := e.Run(context.Background(), RunOptions{Image: "t:1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode == 0 {
		t.Error("expected non-zero exit code")
	}
	if result.Error != nil {
		t.Errorf("command exit status should not populate Error, got %v", result.Error)
	}
}

func TestImageExists(t *testing.T) {
	t.Parallel()

	t.Run("present", func(t *testing.T) {
		t.Parallel()
		var calls [][]string
		e := NewBaseCLIEngine("/usr/bin/docker", WithExecCommand(fakeExec(t, &calls, false)))

		exists, err := e.ImageExists(context.Background(), "t:1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !exists {
			t.Error("expected image to exist")
		}
	})

	t.Run("absent", func(t *testing.T) {
		t.Parallel()
		var calls [][]string
		e := NewBaseCLIEngine("/usr/bin/docker", WithExecCommand(fakeExec(t, &calls, true)))

		exists, err := e.ImageExists(context.Background(), "t:1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if exists {
			t.Error("expected image to be absent")
		}
	})
}
