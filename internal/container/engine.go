// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

type (
	// ImageTag identifies a container image (e.g. "kiln-runtime:ab12cd34ef56").
	ImageTag string

	// ContainerID identifies a created container.
	ContainerID string

	// Engine is the interface the bake pipeline drives. Implementations shell
	// out to a container CLI; tests inject a fake exec function instead.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available reports whether the engine binary works on this system.
		Available() bool
		// Version returns the engine's server version.
		Version(ctx context.Context) (string, error)

		// Build builds an image from a Dockerfile.
		Build(ctx context.Context, opts BuildOptions) error
		// Run runs a command in a container.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// ImageExists checks whether an image is present locally.
		ImageExists(ctx context.Context, image ImageTag) (bool, error)
		// RemoveImage removes a local image.
		RemoveImage(ctx context.Context, image ImageTag, force bool) error
	}

	// BuildOptions configures an image build.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the Dockerfile path, relative to ContextDir.
		Dockerfile string
		// Tag is the tag applied to the built image.
		Tag ImageTag
		// BuildArgs are build-time variables.
		BuildArgs map[string]string
		// NoCache disables the engine's layer cache.
		NoCache bool
		// Stdout receives build progress output.
		Stdout io.Writer
		// Stderr receives build error output.
		Stderr io.Writer
	}

	// RunOptions configures a container run.
	RunOptions struct {
		// Image is the image to run.
		Image ImageTag
		// Command is the command executed inside the container.
		Command []string
		// WorkDir is the working directory inside the container.
		WorkDir string
		// Env contains environment variables.
		Env map[string]string
		// Volumes are bind mounts applied to the container.
		Volumes []VolumeMount
		// Network selects the container network ("none" disables networking,
		// which is how offline verification runs).
		Network string
		// Remove removes the container after it exits.
		Remove bool
		// Name is an optional container name.
		Name string
		// Interactive keeps stdin open.
		Interactive bool
		// TTY allocates a pseudo-terminal.
		TTY bool
		// Stdin, Stdout, Stderr wire the container's standard streams.
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// RunResult reports the outcome of a container run.
	RunResult struct {
		// ExitCode is the command's exit code inside the container.
		ExitCode int
		// Error holds infrastructure failures (engine binary missing, etc.).
		// A non-zero ExitCode from the containerized command is not an Error.
		Error error
	}

	// VolumeMount is a host-to-container bind mount.
	VolumeMount struct {
		HostPath      string
		ContainerPath string
		ReadOnly      bool
	}

	// EngineType selects a concrete engine implementation.
	EngineType string

	// ErrEngineNotAvailable is returned when no usable engine is found.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

const (
	EngineTypeDocker EngineType = "docker"
	EngineTypePodman EngineType = "podman"
	// EngineTypeAuto picks whichever engine is available.
	EngineTypeAuto EngineType = "auto"
)

// ErrInvalidImageTag is the sentinel wrapped by invalid tag errors.
var ErrInvalidImageTag = errors.New("invalid image tag")

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine %q is not available: %s", e.Engine, e.Reason)
}

// String returns the string form of the image tag.
func (t ImageTag) String() string { return string(t) }

// Validate returns an error if the tag is empty or whitespace-only.
func (t ImageTag) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return fmt.Errorf("%w: must be non-empty", ErrInvalidImageTag)
	}
	return nil
}

// String returns the bind mount in "host:container[:ro]" format.
func (v VolumeMount) String() string {
	s := v.HostPath + ":" + v.ContainerPath
	if v.ReadOnly {
		s += ":ro"
	}
	return s
}

// Validate checks that both sides of the mount are set.
func (v VolumeMount) Validate() error {
	if strings.TrimSpace(v.HostPath) == "" {
		return fmt.Errorf("invalid volume mount %q: host path must be non-empty", v.String())
	}
	if strings.TrimSpace(v.ContainerPath) == "" {
		return fmt.Errorf("invalid volume mount %q: container path must be non-empty", v.String())
	}
	return nil
}

// Validate checks BuildOptions before the engine is invoked, so bad input
// fails with a clear message instead of a cryptic CLI error.
func (o BuildOptions) Validate() error {
	if strings.TrimSpace(o.ContextDir) == "" {
		return errors.New("build options: context directory must be set")
	}
	if err := o.Tag.Validate(); err != nil {
		return fmt.Errorf("build options: %w", err)
	}
	return nil
}

// Validate checks RunOptions before the engine is invoked.
func (o RunOptions) Validate() error {
	if err := o.Image.Validate(); err != nil {
		return fmt.Errorf("run options: %w", err)
	}
	for _, v := range o.Volumes {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("run options: %w", err)
		}
	}
	return nil
}

// NewEngine returns the preferred engine, falling back to the other CLI
// engine when the preferred one is not available.
func NewEngine(preferred EngineType) (Engine, error) {
	switch preferred {
	case EngineTypeAuto, "":
		return AutoDetectEngine()

	case EngineTypePodman:
		if e := NewPodmanEngine(); e.Available() {
			return e, nil
		}
		if e := NewDockerEngine(); e.Available() {
			return e, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "podman",
			Reason: "podman is not installed or not accessible, and docker fallback is also not available",
		}

	case EngineTypeDocker:
		if e := NewDockerEngine(); e.Available() {
			return e, nil
		}
		if e := NewPodmanEngine(); e.Available() {
			return e, nil
		}
		return nil, &ErrEngineNotAvailable{
			Engine: "docker",
			Reason: "docker is not installed or not accessible, and podman fallback is also not available",
		}

	default:
		return nil, fmt.Errorf("unknown container engine type: %s", preferred)
	}
}

// AutoDetectEngine finds any available container engine, preferring Docker.
func AutoDetectEngine() (Engine, error) {
	if docker := NewDockerEngine(); docker.Available() {
		return docker, nil
	}
	if podman := NewPodmanEngine(); podman.Available() {
		return podman, nil
	}
	return nil, &ErrEngineNotAvailable{
		Engine: "any",
		Reason: "no container engine (docker or podman) is available on this system",
	}
}
