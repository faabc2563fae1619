// SPDX-License-Identifier: MPL-2.0

package dag

import (
	"errors"
	"slices"
	"testing"
)

func TestTopologicalSort_Linear(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("runtime", "model-cache")
	g.AddEdge("model-cache", "model-layer")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"runtime", "model-cache", "model-layer"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalSort_Deterministic(t *testing.T) {
	t.Parallel()

	// Two independent roots: insertion order decides.
	g := New()
	g.AddNode("b")
	g.AddNode("a")
	g.AddEdge("b", "c")
	g.AddEdge("a", "c")

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"b", "a", "c"}
	if !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalSort_Cycle(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("x", "y")
	g.AddEdge("y", "x")

	_, err := g.TopologicalSort()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(cycleErr.Cycle) == 0 {
		t.Error("cycle error should name participating nodes")
	}
}

func TestTopologicalSort_Empty(t *testing.T) {
	t.Parallel()

	order, err := New().TopologicalSort()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order != nil {
		t.Errorf("expected nil order for empty graph, got %v", order)
	}
}

func TestDependencies(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdge("runtime", "model-layer")
	g.AddEdge("model-cache", "model-layer")

	deps := g.Dependencies("model-layer")
	want := []string{"runtime", "model-cache"}
	if !slices.Equal(deps, want) {
		t.Errorf("Dependencies = %v, want %v", deps, want)
	}

	if deps := g.Dependencies("runtime"); deps != nil {
		t.Errorf("expected no dependencies for root, got %v", deps)
	}
}
