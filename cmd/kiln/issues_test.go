// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"kiln-cli/internal/issue"
	"kiln-cli/internal/modelcache"
	"kiln-cli/internal/recipe"
)

// These tests swap the package-level issueOut writer, so they do not run
// in parallel.

func captureIssueOut(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := issueOut
	issueOut = &buf
	t.Cleanup(func() { issueOut = prev })
	return &buf
}

func TestBakeIssueID(t *testing.T) {
	wrapped := fmt.Errorf("bake target full: %w",
		fmt.Errorf("%w: registry unreachable", modelcache.ErrModelResolve))
	if got := bakeIssueID(wrapped); got != issue.ModelResolveFailedId {
		t.Errorf("model resolution failure mapped to page %d", got)
	}

	if got := bakeIssueID(errors.New("engine build failed")); got != issue.BakeFailedId {
		t.Errorf("generic bake failure mapped to page %d", got)
	}
}

func TestPrintIssuePage(t *testing.T) {
	buf := captureIssueOut(t)

	printIssuePage(issue.KilnfileNotFoundId)
	if buf.Len() == 0 {
		t.Fatal("expected a rendered page on issueOut")
	}

	buf.Reset()
	printIssuePage(issue.Id(0))
	if buf.Len() != 0 {
		t.Errorf("unknown id should print nothing, got %q", buf.String())
	}
}

func TestIssuePagesMatchCommandFlags(t *testing.T) {
	if bakeCmd.Flags().Lookup("file") == nil {
		t.Fatal("bake command lost its --file flag")
	}

	notFound := string(issue.Lookup(issue.KilnfileNotFoundId).MarkdownMsg())
	if !strings.Contains(notFound, "--file") {
		t.Error("kilnfile-not-found page should point at --file")
	}
	if strings.Contains(notFound, "--kilnfile") {
		t.Error("kilnfile-not-found page references a flag that does not exist")
	}

	model := string(issue.Lookup(issue.ModelResolveFailedId).MarkdownMsg())
	if strings.Contains(model, "--model") {
		t.Error("model page references a flag that does not exist")
	}
	if !strings.Contains(model, "kiln warm") {
		t.Error("model page should suggest the warm command")
	}
}

func TestLoadRecipe_MissingKilnfilePrintsPage(t *testing.T) {
	t.Chdir(t.TempDir())
	buf := captureIssueOut(t)

	_, err := loadRecipe("")
	if err == nil {
		t.Fatal("expected an error in a directory without a kilnfile")
	}
	if !errors.Is(err, recipe.ErrKilnfileNotFound) {
		t.Errorf("unexpected error: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected the kilnfile-not-found page on issueOut")
	}
}
