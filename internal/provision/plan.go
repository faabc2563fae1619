// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"fmt"

	"kiln-cli/internal/dag"
	"kiln-cli/internal/recipe"
)

// Step names one unit of the bake pipeline.
type Step string

const (
	// StepRuntime builds the runtime image: source trees copied in,
	// dependencies installed, module search path configured.
	StepRuntime Step = "runtime"

	// StepModelCache warms the embedding model snapshot on the host.
	StepModelCache Step = "model-cache"

	// StepModelLayer bakes the warmed snapshot on top of the runtime image.
	StepModelLayer Step = "model-layer"
)

// Plan returns the ordered steps baking the given target requires. Edges
// encode the pipeline's fail-fast property: a broken dependency manifest
// fails the runtime step before any model download starts, and the model
// layer never builds from an unwarmed cache.
func Plan(r *recipe.Recipe, target recipe.Target) ([]Step, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if !r.HasTarget(target) {
		return nil, fmt.Errorf("recipe does not declare target %q", target)
	}

	g := dag.New()
	g.AddNode(string(StepRuntime))

	if target == recipe.TargetFull {
		g.AddEdge(string(StepRuntime), string(StepModelCache))
		g.AddEdge(string(StepModelCache), string(StepModelLayer))
	}

	order, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	steps := make([]Step, len(order))
	for i, name := range order {
		steps[i] = Step(name)
	}
	return steps, nil
}
