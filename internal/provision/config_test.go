// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ForceRebuild {
		t.Error("ForceRebuild should default to false")
	}
	if !cfg.WriteLockFile {
		t.Error("WriteLockFile should default to true")
	}
	if cfg.BuildOutput == nil {
		t.Error("BuildOutput should have a default")
	}
}

func TestConfigApply(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Apply(
		WithForceRebuild(true),
		WithCacheDir("/tmp/kiln-test-cache"),
		WithTagSuffix("t1"),
		WithBuildOutput(&buf),
		WithLockFile(false),
	)

	if !cfg.ForceRebuild {
		t.Error("WithForceRebuild not applied")
	}
	if cfg.CacheDir != "/tmp/kiln-test-cache" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.TagSuffix != "t1" {
		t.Errorf("TagSuffix = %q", cfg.TagSuffix)
	}
	if cfg.BuildOutput != &buf {
		t.Error("WithBuildOutput not applied")
	}
	if cfg.WriteLockFile {
		t.Error("WithLockFile(false) not applied")
	}
}
