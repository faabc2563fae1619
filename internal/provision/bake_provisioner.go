// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"kiln-cli/internal/container"
	"kiln-cli/internal/issue"
	"kiln-cli/internal/modelcache"
	"kiln-cli/internal/recipe"
)

// Compile-time interface check
var _ Provisioner = (*BakeProvisioner)(nil)

// BakeProvisioner bakes agent runtime images with a container engine.
//
// Baked images are cached based on a hash of:
// - Base image reference
// - Dependency manifest contents
// - Project and shared source trees
// - Module search path
// - Model snapshot manifest (full target only)
//
// This allows fast reuse when nothing the image depends on has changed.
type BakeProvisioner struct {
	engine container.Engine
	warmer *modelcache.Warmer
	config *Config
	logger *log.Logger
}

// ProvisionerOption customizes a BakeProvisioner.
type ProvisionerOption func(*BakeProvisioner)

// WithModelWarmer overrides the model cache warmer. Tests point it at a
// fake registry.
func WithModelWarmer(w *modelcache.Warmer) ProvisionerOption {
	return func(p *BakeProvisioner) { p.warmer = w }
}

// WithProvisionLogger overrides the provisioner's logger.
func WithProvisionLogger(l *log.Logger) ProvisionerOption {
	return func(p *BakeProvisioner) { p.logger = l }
}

// NewBakeProvisioner creates a new BakeProvisioner.
func NewBakeProvisioner(engine container.Engine, cfg *Config, opts ...ProvisionerOption) *BakeProvisioner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	p := &BakeProvisioner{
		engine: engine,
		warmer: modelcache.NewWarmer(cfg.CacheDir),
		config: cfg,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "bake",
		}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the provisioner's configuration.
func (p *BakeProvisioner) Config() *Config {
	return p.config
}

// Warmer returns the model cache warmer the provisioner uses.
func (p *BakeProvisioner) Warmer() *modelcache.Warmer {
	return p.warmer
}

// Bake runs the step plan for the target and returns the resulting image.
func (p *BakeProvisioner) Bake(ctx context.Context, r *recipe.Recipe, target recipe.Target) (*Result, error) {
	steps, err := Plan(r, target)
	if err != nil {
		return nil, err
	}

	var (
		runtimeTag container.ImageTag
		runtimeKey string
		finalTag   container.ImageTag
		finalKey   string
		modelDir   string
		cached     bool
	)

	for _, step := range steps {
		switch step {
		case StepRuntime:
			runtimeTag, runtimeKey, cached, err = p.bakeRuntime(ctx, r)
			if err != nil {
				return nil, err
			}
			finalTag, finalKey = runtimeTag, runtimeKey

		case StepModelCache:
			modelDir, err = p.warmer.Warm(ctx, modelcache.ModelID(r.Model.ID))
			if err != nil {
				return nil, err
			}

		case StepModelLayer:
			var layerCached bool
			finalTag, finalKey, layerCached, err = p.bakeModelLayer(ctx, r, runtimeTag, runtimeKey, modelDir)
			if err != nil {
				return nil, err
			}
			cached = cached && layerCached

		default:
			return nil, fmt.Errorf("unknown bake step %q", step)
		}
	}

	if p.config.WriteLockFile {
		if err := writeLock(r, target, finalTag, runtimeTag, finalKey); err != nil {
			return nil, err
		}
	}

	return &Result{
		ImageTag:   finalTag,
		RuntimeTag: runtimeTag,
		Cached:     cached,
		EnvVars:    buildEnvVars(r, target),
	}, nil
}

// RuntimeImageTag returns the tag the runtime image would get, without
// building anything. Useful for plan output and cache inspection.
func (p *BakeProvisioner) RuntimeImageTag(r *recipe.Recipe) (container.ImageTag, error) {
	key, err := p.runtimeCacheKey(r)
	if err != nil {
		return "", err
	}
	return p.buildTag("kiln-runtime", key), nil
}

// IsBaked checks whether the runtime image for the recipe's current state
// already exists.
func (p *BakeProvisioner) IsBaked(ctx context.Context, r *recipe.Recipe) (bool, error) {
	tag, err := p.RuntimeImageTag(r)
	if err != nil {
		return false, err
	}
	return p.engine.ImageExists(ctx, tag)
}

// bakeRuntime builds or reuses the runtime image.
func (p *BakeProvisioner) bakeRuntime(ctx context.Context, r *recipe.Recipe) (container.ImageTag, string, bool, error) {
	key, err := p.runtimeCacheKey(r)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to calculate cache key: %w", err)
	}
	tag := p.buildTag("kiln-runtime", key)

	if !p.config.ForceRebuild {
		exists, _ := p.engine.ImageExists(ctx, tag) //nolint:errcheck // Error treated as "not found"
		if exists {
			p.logger.Debug("runtime image cached", "tag", tag)
			return tag, key, true, nil
		}
	}

	dockerfile := generateRuntimeDockerfile(r)
	if err := validateRunLines(dockerfile); err != nil {
		return "", "", false, err
	}

	buildCtx, cleanup, err := p.prepareRuntimeContext(r, dockerfile)
	if err != nil {
		return "", "", false, err
	}
	defer cleanup()

	p.logger.Info("baking runtime image", "tag", tag, "base", r.Base)
	if err := p.buildImage(ctx, buildCtx, tag); err != nil {
		return "", "", false, issue.NewErrorContext().
			WithOperation("baking runtime image").
			WithResource(tag.String()).
			WithSuggestion("Check the dependency manifest for unresolvable or conflicting packages.").
			WithSuggestion("Ensure the project root has a pyproject.toml or setup.py for the editable install.").
			Wrap(err).
			BuildError()
	}

	return tag, key, false, nil
}

// bakeModelLayer builds or reuses the full image: runtime plus model.
func (p *BakeProvisioner) bakeModelLayer(ctx context.Context, r *recipe.Recipe, runtimeTag container.ImageTag, runtimeKey, modelDir string) (container.ImageTag, string, bool, error) {
	key, err := p.modelLayerCacheKey(r, runtimeKey, modelDir)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to calculate cache key: %w", err)
	}
	tag := p.buildTag("kiln-agent", key)

	if !p.config.ForceRebuild {
		exists, _ := p.engine.ImageExists(ctx, tag) //nolint:errcheck // Error treated as "not found"
		if exists {
			p.logger.Debug("agent image cached", "tag", tag)
			return tag, key, true, nil
		}
	}

	dockerfile := generateModelDockerfile(runtimeTag, r.Model)
	if err := validateRunLines(dockerfile); err != nil {
		return "", "", false, err
	}

	buildCtx, cleanup, err := p.prepareModelContext(modelDir, dockerfile)
	if err != nil {
		return "", "", false, err
	}
	defer cleanup()

	p.logger.Info("baking agent image", "tag", tag, "model", r.Model.ID)
	if err := p.buildImage(ctx, buildCtx, tag); err != nil {
		return "", "", false, issue.NewErrorContext().
			WithOperation("baking agent image").
			WithResource(tag.String()).
			WithSuggestion("Retry with --force-rebuild if the runtime image is stale.").
			Wrap(err).
			BuildError()
	}

	return tag, key, false, nil
}

// buildTag constructs an image tag with the optional suffix.
// When TagSuffix is set, the format is "<repo>:<hash>-<suffix>".
func (p *BakeProvisioner) buildTag(repo, cacheKey string) container.ImageTag {
	hash := cacheKey[:12]
	if p.config.TagSuffix != "" {
		return container.ImageTag(fmt.Sprintf("%s:%s-%s", repo, hash, p.config.TagSuffix))
	}
	return container.ImageTag(fmt.Sprintf("%s:%s", repo, hash))
}

// runtimeCacheKey generates a unique key over everything the runtime image
// is built from. The manifest is hashed by content: a version bump must
// change the key even when file metadata stays put.
func (p *BakeProvisioner) runtimeCacheKey(r *recipe.Recipe) (string, error) {
	h := sha256.New()

	h.Write([]byte("image:" + r.Base))

	manifestHash, err := CalculateFileHash(r.ManifestPath())
	if err != nil {
		return "", fmt.Errorf("failed to hash dependency manifest: %w", err)
	}
	h.Write([]byte("manifest:" + manifestHash))

	projectHash, err := CalculateDirHash(r.ProjectDir())
	if err != nil {
		return "", fmt.Errorf("failed to hash project tree: %w", err)
	}
	h.Write([]byte("project:" + projectHash))

	if shared := r.SharedDir(); shared != "" {
		sharedHash, err := CalculateDirHash(shared)
		if err != nil {
			return "", fmt.Errorf("failed to hash shared tree: %w", err)
		}
		h.Write([]byte("shared:" + sharedHash))
	}

	h.Write([]byte("path:" + r.ModuleSearchPath()))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// modelLayerCacheKey extends the runtime key with the snapshot manifest, so
// a re-warmed model produces a new agent image.
func (p *BakeProvisioner) modelLayerCacheKey(r *recipe.Recipe, runtimeKey, modelDir string) (string, error) {
	h := sha256.New()
	h.Write([]byte("runtime:" + runtimeKey))

	snapHash, err := CalculateFileHash(filepath.Join(modelDir, modelcache.SnapshotFileName))
	if err != nil {
		return "", fmt.Errorf("failed to hash model snapshot manifest: %w", err)
	}
	h.Write([]byte("snapshot:" + snapHash))
	h.Write([]byte("dir:" + r.Model.Dir))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// buildImage runs the engine build with progress wired to the configured
// output.
func (p *BakeProvisioner) buildImage(ctx context.Context, buildCtx string, tag container.ImageTag) error {
	return p.engine.Build(ctx, container.BuildOptions{
		ContextDir: buildCtx,
		Dockerfile: "Dockerfile",
		Tag:        tag,
		Stdout:     p.config.BuildOutput,
		Stderr:     p.config.BuildOutput,
	})
}

// prepareRuntimeContext creates a temporary build context holding the
// project tree, the shared tree, and the generated Dockerfile.
func (p *BakeProvisioner) prepareRuntimeContext(r *recipe.Recipe, dockerfile string) (string, func(), error) {
	tmpDir, cleanup, err := p.newContextDir()
	if err != nil {
		return "", nil, err
	}

	if err := CopyDir(r.ProjectDir(), filepath.Join(tmpDir, "project")); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to copy project tree: %w", err)
	}
	if shared := r.SharedDir(); shared != "" {
		if err := CopyDir(shared, filepath.Join(tmpDir, "shared")); err != nil {
			cleanup()
			return "", nil, fmt.Errorf("failed to copy shared tree: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	return tmpDir, cleanup, nil
}

// prepareModelContext creates a temporary build context holding the warmed
// model snapshot and the generated Dockerfile.
func (p *BakeProvisioner) prepareModelContext(modelDir, dockerfile string) (string, func(), error) {
	tmpDir, cleanup, err := p.newContextDir()
	if err != nil {
		return "", nil, err
	}

	if err := CopyDir(modelDir, filepath.Join(tmpDir, "model")); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to copy model snapshot: %w", err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	return tmpDir, cleanup, nil
}

// newContextDir creates a temporary directory for a build context.
//
// Note: Docker installed via Snap has limited filesystem access and cannot
// read /tmp, so contexts are created under the cache directory (a visible
// path under the user's home by default) instead of the system temp dir.
func (p *BakeProvisioner) newContextDir() (string, func(), error) {
	parent := filepath.Join(p.config.CacheDir, "build")
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create build context parent directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(parent, "ctx-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	cleanup := func() {
		_ = os.RemoveAll(tmpDir) // Cleanup temp dir; error non-critical
	}
	return tmpDir, cleanup, nil
}

// buildEnvVars returns the environment agent containers run with. The
// Dockerfile bakes the same values in; these exist for callers launching
// the image through other tooling.
func buildEnvVars(r *recipe.Recipe, target recipe.Target) map[string]string {
	env := map[string]string{
		"PYTHONPATH": r.ModuleSearchPath(),
	}
	if target == recipe.TargetFull && r.Model != nil {
		env["KILN_MODEL_DIR"] = r.Model.Dir
		env["HF_HUB_OFFLINE"] = "1"
		env["TRANSFORMERS_OFFLINE"] = "1"
	}
	return env
}
