// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a known issue page.
type Id int

const (
	EngineNotFoundId Id = iota + 1
	KilnfileNotFoundId
	KilnfileParseErrorId
	ModelResolveFailedId
	BakeFailedId
)

type (
	// MarkdownMsg is markdown text rendered to the terminal.
	MarkdownMsg string

	// HttpLink is a documentation or reference URL.
	HttpLink string

	// Issue is a longer-form help page shown for well-known failure modes.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

// Render renders the issue markdown for terminal display.
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 {
		extraMd += "\n\n## See also:\n"
		for _, link := range i.docLinks {
			extraMd += "- " + string(link) + "\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	engineNotFoundIssue = &Issue{
		id: EngineNotFoundId,
		mdMsg: `
# No container engine found!

kiln needs Docker or Podman to bake images, and neither responded.

## Things you can try:
- Install Docker: https://docs.docker.com/get-docker/
- Or install Podman: https://podman.io/getting-started/installation
- If installed, make sure the daemon is running:
~~~
$ docker info
~~~
- Select an engine explicitly in your config:
~~~toml
container_engine = "podman"
~~~`,
	}

	kilnfileNotFoundIssue = &Issue{
		id: KilnfileNotFoundId,
		mdMsg: `
# No kilnfile found!

We looked for a kilnfile.cue but couldn't find one.

## Things you can try:
- Create a starter kilnfile in the current directory:
~~~
$ kiln init
~~~
- Or point kiln at an existing recipe:
~~~
$ kiln bake --file /path/to/kilnfile.cue
~~~`,
	}

	kilnfileParseErrorIssue = &Issue{
		id: KilnfileParseErrorId,
		mdMsg: `
# Failed to parse kilnfile!

Your kilnfile contains syntax errors or invalid configuration.

## Common issues:
- Invalid CUE syntax (missing quotes, braces, etc.)
- Unknown field names
- A model block without an id
- Module path entries that don't start with "/"

## Example of a valid kilnfile:
~~~cue
base:     "python:3.11-slim"
project:  "./agent"
shared:   "./shared"
manifest: "requirements.txt"

modulePath: ["/agent", "/agent/shared"]

model: {
	id:        "sentence-transformers/all-MiniLM-L6-v2"
	dir:       "/app/model"
	dimension: 384
}
~~~`,
	}

	modelResolveFailedIssue = &Issue{
		id: ModelResolveFailedId,
		mdMsg: `
# Failed to resolve the embedding model!

The named model could not be fetched into the local cache. An image baked
without its model cannot embed anything offline, so the bake stops here.

## Things you can try:
- Check the model id for typos (e.g. "sentence-transformers/all-MiniLM-L6-v2")
- Check network access to the model registry
- If the registry is temporarily down, re-run the bake later; an already
  warm cache is reused without any network access:
~~~
$ kiln warm sentence-transformers/all-MiniLM-L6-v2
~~~`,
	}

	bakeFailedIssue = &Issue{
		id: BakeFailedId,
		mdMsg: `
# Image bake failed!

The container engine reported a build error.

## Common causes:
- The dependency manifest names a package that doesn't exist
- The project's packaging metadata is malformed (editable install fails)
- The base image could not be pulled

## Things you can try:
- Re-run with verbose output to see the full engine log:
~~~
$ kiln bake --verbose
~~~
- Pull the base image manually to rule out registry problems`,
	}

	issues = map[Id]*Issue{
		EngineNotFoundId:     engineNotFoundIssue,
		KilnfileNotFoundId:   kilnfileNotFoundIssue,
		KilnfileParseErrorId: kilnfileParseErrorIssue,
		ModelResolveFailedId: modelResolveFailedIssue,
		BakeFailedId:         bakeFailedIssue,
	}
)

// Lookup returns the issue page for the given id, or nil if unknown.
func Lookup(id Id) *Issue {
	return issues[id]
}
