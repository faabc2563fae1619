// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"io"
	"os"
	"path/filepath"
)

type (
	// Config holds configuration for the bake pipeline.
	Config struct {
		// ForceRebuild bypasses cached images and forces a rebuild.
		ForceRebuild bool

		// CacheDir is the root of kiln's host-side cache (model snapshots,
		// build metadata). Default: ~/.cache/kiln
		CacheDir string

		// TagSuffix is an optional suffix appended to baked image tags.
		// This enables test isolation by making each test's images unique.
		// Can be set via the KILN_BAKE_TAG_SUFFIX environment variable.
		TagSuffix string

		// BuildOutput receives engine build progress. Default: os.Stderr.
		BuildOutput io.Writer

		// WriteLockFile controls whether a kiln.lock is written next to the
		// recipe after a successful bake.
		WriteLockFile bool
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	cacheDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".cache", "kiln")
	}

	return &Config{
		ForceRebuild:  false,
		CacheDir:      cacheDir,
		TagSuffix:     os.Getenv("KILN_BAKE_TAG_SUFFIX"),
		BuildOutput:   os.Stderr,
		WriteLockFile: true,
	}
}

// WithForceRebuild returns an Option that sets ForceRebuild on the config.
func WithForceRebuild(force bool) Option {
	return func(c *Config) {
		c.ForceRebuild = force
	}
}

// WithCacheDir returns an Option that sets CacheDir on the config.
func WithCacheDir(dir string) Option {
	return func(c *Config) {
		c.CacheDir = dir
	}
}

// WithTagSuffix returns an Option that sets TagSuffix on the config.
// This is primarily used for test isolation so parallel tests don't
// compete for the same baked image tags.
func WithTagSuffix(suffix string) Option {
	return func(c *Config) {
		c.TagSuffix = suffix
	}
}

// WithBuildOutput returns an Option that redirects build progress output.
func WithBuildOutput(w io.Writer) Option {
	return func(c *Config) {
		c.BuildOutput = w
	}
}

// WithLockFile returns an Option that toggles kiln.lock writing.
func WithLockFile(enabled bool) Option {
	return func(c *Config) {
		c.WriteLockFile = enabled
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
