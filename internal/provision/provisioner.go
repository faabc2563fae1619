// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"

	"kiln-cli/internal/container"
	"kiln-cli/internal/recipe"
)

type (
	// Provisioner bakes agent runtime images from recipes. Implementations
	// cache baked images by content hash so unchanged recipes reuse the
	// previous image instead of rebuilding.
	Provisioner interface {
		// Bake builds (or reuses) the image for the given target. The
		// returned Result names the image and the environment the agent
		// runs with. Temporary build resources are removed before Bake
		// returns; the cached image itself is never touched.
		Bake(ctx context.Context, r *recipe.Recipe, target recipe.Target) (*Result, error)
	}

	// Result contains the output of a bake.
	Result struct {
		// ImageTag is the baked image (e.g. "kiln-agent:ab12cd34ef56").
		ImageTag container.ImageTag

		// RuntimeTag is the intermediate runtime image the target was built
		// from. For the slim target this equals ImageTag.
		RuntimeTag container.ImageTag

		// Cached reports whether the image was reused from the cache rather
		// than rebuilt.
		Cached bool

		// EnvVars are environment variables agent containers should run
		// with. These mirror what the Dockerfile bakes in, for callers that
		// run the image through other tooling.
		EnvVars map[string]string
	}
)
