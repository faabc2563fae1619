// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"kiln-cli/internal/config"
	"kiln-cli/internal/issue"
	"kiln-cli/internal/modelcache"
)

// issueOut receives rendered issue pages. Package-level so tests can
// capture the output.
var issueOut io.Writer = os.Stderr

// printIssuePage renders the long-form help page for a known failure mode.
// The page is best-effort help on top of the returned error, so rendering
// problems are swallowed.
func printIssuePage(id issue.Id) {
	page := issue.Lookup(id)
	if page == nil {
		return
	}
	rendered, err := page.Render(issueStyle())
	if err != nil {
		return
	}
	fmt.Fprint(issueOut, rendered)
}

// issueStyle maps the configured color scheme to a glamour style name.
func issueStyle() string {
	if currentConfig().UI.ColorScheme == config.ColorSchemeLight {
		return "light"
	}
	return "dark"
}

// bakeIssueID picks the help page for a failed bake: model resolution
// problems get the model page, everything else the generic build page.
func bakeIssueID(err error) issue.Id {
	if errors.Is(err, modelcache.ErrModelResolve) {
		return issue.ModelResolveFailedId
	}
	return issue.BakeFailedId
}
