// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"kiln-cli/internal/config"
	"kiln-cli/internal/container"
	"kiln-cli/internal/issue"
	"kiln-cli/internal/modelcache"
	"kiln-cli/internal/provision"
	"kiln-cli/internal/recipe"
)

// loadRecipe resolves and parses the recipe: an explicit --file wins,
// otherwise the working directory and its ancestors are searched.
func loadRecipe(fileFlag string) (*recipe.Recipe, error) {
	path := fileFlag
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		path, err = recipe.Find(cwd)
		if err != nil {
			printIssuePage(issue.KilnfileNotFoundId)
			return nil, issue.NewErrorContext().
				WithOperation("locate recipe").
				WithResource(recipe.DefaultFileName).
				WithSuggestion("Run 'kiln init' to create a starter recipe.").
				WithSuggestion("Or pass an explicit path with --file.").
				Wrap(err).
				BuildError()
		}
	}

	r, err := recipe.Parse(path)
	if err != nil {
		printIssuePage(issue.KilnfileParseErrorId)
		return nil, issue.NewErrorContext().
			WithOperation("parse recipe").
			WithResource(path).
			WithSuggestion("Check the recipe against the kilnfile schema.").
			Wrap(err).
			BuildError()
	}
	return r, nil
}

// newEngine builds the container engine the config selects.
func newEngine() (container.Engine, error) {
	engine, err := container.NewEngine(container.EngineType(currentConfig().ContainerEngine))
	if err != nil {
		printIssuePage(issue.EngineNotFoundId)
		return nil, issue.NewErrorContext().
			WithOperation("select container engine").
			WithSuggestion("Install Docker or Podman and ensure its daemon is running.").
			WithSuggestion("Or set container_engine in the kiln config.").
			Wrap(err).
			BuildError()
	}
	return engine, nil
}

// newWarmer builds a model cache warmer honoring config overrides.
func newWarmer(cfg *config.Config, provisionCfg *provision.Config) *modelcache.Warmer {
	var opts []modelcache.WarmerOption
	if cfg.RegistryURL != "" {
		opts = append(opts, modelcache.WithClient(
			modelcache.NewRegistryClient(modelcache.WithRegistryURL(cfg.RegistryURL)),
		))
	}
	return modelcache.NewWarmer(provisionCfg.CacheDir, opts...)
}

// newProvisioner wires the bake provisioner from tool config and flags.
func newProvisioner(engine container.Engine, forceRebuild bool) *provision.BakeProvisioner {
	cfg := currentConfig()

	provisionCfg := provision.DefaultConfig()
	provisionCfg.Apply(provision.WithForceRebuild(forceRebuild))
	if cfg.CacheDir != "" {
		provisionCfg.Apply(provision.WithCacheDir(cfg.CacheDir))
	}

	return provision.NewBakeProvisioner(engine, provisionCfg,
		provision.WithModelWarmer(newWarmer(cfg, provisionCfg)),
	)
}

// targetsFor resolves the --target flag against the recipe: empty means
// every declared target.
func targetsFor(r *recipe.Recipe, targetFlag string) ([]recipe.Target, error) {
	if targetFlag == "" {
		return r.Targets(), nil
	}

	t := recipe.Target(targetFlag)
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if !r.HasTarget(t) {
		return nil, fmt.Errorf("recipe does not declare target %q", t)
	}
	return []recipe.Target{t}, nil
}
