// SPDX-License-Identifier: MPL-2.0

// Package config loads kiln's tool configuration. Settings layer in the
// usual order: built-in defaults, then the user's config.cue (validated
// against an embedded CUE schema), then KILN_* environment variables.
// Recipe files are a separate concern; see the recipe package.
package config
