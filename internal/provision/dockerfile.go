// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"fmt"
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"kiln-cli/internal/container"
	"kiln-cli/internal/recipe"
)

// generateRuntimeDockerfile renders the Dockerfile for the runtime image:
// source trees copied to their module search path roots, dependencies
// installed from the manifest, the project installed in editable mode, and
// the module search path exported. The build context layout is fixed:
// project/ and (optionally) shared/ at the context root.
func generateRuntimeDockerfile(r *recipe.Recipe) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "FROM %s\n\n", r.Base)

	sb.WriteString("# Source trees land on the module search path roots\n")
	fmt.Fprintf(&sb, "COPY project/ %s/\n", r.ProjectMount())
	if r.SharedDir() != "" {
		fmt.Fprintf(&sb, "COPY shared/ %s/\n", r.SharedMount())
	}
	sb.WriteString("\n")

	sb.WriteString("# Install pinned dependencies, then the project itself in editable mode\n")
	manifestPath := path.Join(r.ProjectMount(), r.Manifest)
	fmt.Fprintf(&sb, "RUN python -m pip install --no-cache-dir -r %s\n", manifestPath)
	fmt.Fprintf(&sb, "RUN python -m pip install --no-cache-dir -e %s\n\n", r.ProjectMount())

	sb.WriteString("# Make every source root importable\n")
	fmt.Fprintf(&sb, "ENV PYTHONPATH=%q\n", r.ModuleSearchPath())
	fmt.Fprintf(&sb, "WORKDIR %s\n", r.ProjectMount())

	return sb.String()
}

// generateModelDockerfile renders the Dockerfile for the full image: the
// warmed model snapshot copied to its fixed in-image directory on top of
// the runtime image, with registry access disabled so any attempt to reach
// the network at load time fails loudly instead of silently downloading.
func generateModelDockerfile(runtimeTag container.ImageTag, model *recipe.ModelSpec) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "FROM %s\n\n", runtimeTag)

	sb.WriteString("# Baked model snapshot; loaders must read it from disk\n")
	fmt.Fprintf(&sb, "COPY model/ %s/\n\n", model.Dir)

	fmt.Fprintf(&sb, "ENV KILN_MODEL_DIR=%q\n", model.Dir)
	sb.WriteString("ENV HF_HUB_OFFLINE=\"1\"\n")
	sb.WriteString("ENV TRANSFORMERS_OFFLINE=\"1\"\n")

	return sb.String()
}

// validateRunLines parses every RUN instruction's shell command and reports
// the first one that does not parse. Catches quoting mistakes at generation
// time instead of minutes into an image build.
func validateRunLines(dockerfile string) error {
	parser := syntax.NewParser()

	for _, line := range strings.Split(dockerfile, "\n") {
		cmd, ok := strings.CutPrefix(line, "RUN ")
		if !ok {
			continue
		}
		if _, err := parser.Parse(strings.NewReader(cmd), "Dockerfile"); err != nil {
			return fmt.Errorf("generated RUN instruction does not parse: %q: %w", cmd, err)
		}
	}
	return nil
}
