// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for kiln.
//
// This package implements the Cobra command hierarchy for the kiln CLI:
// the root command plus subcommands for baking images, warming the model
// cache, inspecting the bake plan, verifying baked images, and managing
// configuration.
package cmd
