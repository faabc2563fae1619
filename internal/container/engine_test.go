// SPDX-License-Identifier: MPL-2.0

package container

import (
	"strings"
	"testing"
)

func TestImageTagValidate(t *testing.T) {
	t.Parallel()

	if err := ImageTag("kiln-runtime:abc").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ImageTag("  ").Validate(); err == nil {
		t.Error("expected error for whitespace-only tag")
	}
}

func TestVolumeMountString(t *testing.T) {
	t.Parallel()

	v := VolumeMount{HostPath: "/h", ContainerPath: "/c"}
	if v.String() != "/h:/c" {
		t.Errorf("String() = %q", v.String())
	}

	v.ReadOnly = true
	if v.String() != "/h:/c:ro" {
		t.Errorf("String() = %q", v.String())
	}
}

func TestVolumeMountValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mount   VolumeMount
		wantErr bool
	}{
		{"valid", VolumeMount{HostPath: "/h", ContainerPath: "/c"}, false},
		{"missing host", VolumeMount{ContainerPath: "/c"}, true},
		{"missing container", VolumeMount{HostPath: "/h"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.mount.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRunOptionsValidate(t *testing.T) {
	t.Parallel()

	opts := RunOptions{Image: ""}
	if err := opts.Validate(); err == nil {
		t.Error("expected error for empty image")
	}

	opts = RunOptions{Image: "t:1", Volumes: []VolumeMount{{HostPath: "", ContainerPath: "/c"}}}
	err := opts.Validate()
	if err == nil {
		t.Fatal("expected error for invalid mount")
	}
	if !strings.Contains(err.Error(), "host path") {
		t.Errorf("expected host path complaint, got: %v", err)
	}
}

func TestNewEngine_UnknownType(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(EngineType("lxc")); err == nil {
		t.Error("expected error for unknown engine type")
	}
}

func TestErrEngineNotAvailable(t *testing.T) {
	t.Parallel()

	err := &ErrEngineNotAvailable{Engine: "docker", Reason: "not installed"}
	if !strings.Contains(err.Error(), "docker") || !strings.Contains(err.Error(), "not installed") {
		t.Errorf("unexpected message: %v", err)
	}
}
