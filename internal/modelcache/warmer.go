// SPDX-License-Identifier: MPL-2.0

package modelcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"kiln-cli/internal/issue"
)

// ErrModelResolve marks failures to produce a usable model snapshot: an
// unknown id, a registry that keeps failing, or a snapshot whose contents
// don't match the expected model shape. Callers branch on it with errors.Is
// to distinguish model problems from image build problems.
var ErrModelResolve = errors.New("model could not be resolved")

// Warmer populates and inspects the local model cache. Warming is
// idempotent: a model whose snapshot manifest already exists is left
// untouched.
type Warmer struct {
	cacheDir string
	client   *RegistryClient
	logger   *log.Logger
}

// WarmerOption customizes a Warmer.
type WarmerOption func(*Warmer)

// WithClient overrides the registry client.
func WithClient(c *RegistryClient) WarmerOption {
	return func(w *Warmer) { w.client = c }
}

// WithLogger overrides the warmer's logger.
func WithLogger(l *log.Logger) WarmerOption {
	return func(w *Warmer) { w.logger = l }
}

// NewWarmer creates a Warmer rooted at cacheDir. Snapshots live under
// <cacheDir>/models/<flattened-model-id>.
func NewWarmer(cacheDir string, opts ...WarmerOption) *Warmer {
	w := &Warmer{
		cacheDir: cacheDir,
		client:   NewRegistryClient(),
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "model-cache",
		}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ModelDir returns the snapshot directory a model warms into. Bare and
// namespaced forms of the same id share one directory.
func (w *Warmer) ModelDir(id ModelID) string {
	return filepath.Join(w.cacheDir, "models", id.Normalize().DirName())
}

// IsWarm reports whether a complete snapshot for the model exists. Only the
// manifest's presence is checked here; integrity verification is a separate,
// more expensive step.
func (w *Warmer) IsWarm(id ModelID) bool {
	_, err := os.Stat(filepath.Join(w.ModelDir(id), SnapshotFileName))
	return err == nil
}

// Verify re-checks a warmed snapshot against its manifest: every file
// present, sizes and digests matching, declared dimensionality as expected.
func (w *Warmer) Verify(id ModelID) error {
	id = id.Normalize()
	model, err := Lookup(id)
	if err != nil {
		return err
	}

	dir := w.ModelDir(id)
	snap, err := ReadSnapshot(dir)
	if err != nil {
		return fmt.Errorf("model %s is not warmed: %w", id, err)
	}
	if snap.Dimension != model.Dimension {
		return fmt.Errorf("snapshot of %s declares dimension %d, expected %d", id, snap.Dimension, model.Dimension)
	}
	return VerifySnapshot(dir, snap)
}

// Warm ensures a complete snapshot of the model exists in the cache and
// returns its directory. Files download into a staging directory next to
// the final location; only after every file lands, the dimensionality check
// passes, and the manifest is written does the staging directory get
// promoted with a rename. Any failure discards staging entirely.
func (w *Warmer) Warm(ctx context.Context, id ModelID) (string, error) {
	id = id.Normalize()
	model, err := Lookup(id)
	if err != nil {
		return "", issue.NewErrorContext().
			WithOperation("warm model cache").
			WithResource(string(id)).
			WithSuggestion("Check the model id for typos.").
			Wrap(fmt.Errorf("%w: %w", ErrModelResolve, err)).
			BuildError()
	}

	dir := w.ModelDir(id)
	if w.IsWarm(id) {
		w.logger.Debug("snapshot already warm", "model", id, "dir", dir)
		return dir, nil
	}

	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", parent, err)
	}

	staging, err := os.MkdirTemp(parent, id.DirName()+".staging-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	w.logger.Info("warming model snapshot", "model", id, "files", len(model.Files))

	snap := Snapshot{
		ModelID:   id,
		Dimension: model.Dimension,
		WarmedAt:  time.Now().UTC(),
	}
	for _, file := range model.Files {
		sum, size, err := w.client.DownloadFile(ctx, id, file, filepath.Join(staging, file))
		if err != nil {
			return "", issue.NewErrorContext().
				WithOperation("warm model cache").
				WithResource(string(id)).
				WithSuggestion("Check network connectivity to the model registry.").
				WithSuggestion("Retry; transient registry errors are common.").
				Wrap(fmt.Errorf("%w: %w", ErrModelResolve, err)).
				BuildError()
		}
		w.logger.Debug("downloaded", "file", file, "bytes", size)
		snap.Files = append(snap.Files, SnapshotFile{Path: file, SHA256: sum, Size: size})
	}

	if err := checkDimension(staging, model.Dimension); err != nil {
		return "", issue.NewErrorContext().
			WithOperation("warm model cache").
			WithResource(string(id)).
			WithSuggestion("The registry copy of the model does not match its expected shape; report this upstream.").
			Wrap(fmt.Errorf("%w: %w", ErrModelResolve, err)).
			BuildError()
	}

	if err := WriteSnapshot(staging, snap); err != nil {
		return "", err
	}

	// A stale incomplete directory (no manifest, interrupted earlier run)
	// may occupy the final path; it is safe to discard.
	if _, statErr := os.Stat(dir); statErr == nil {
		if err := os.RemoveAll(dir); err != nil {
			return "", fmt.Errorf("failed to clear stale snapshot directory %s: %w", dir, err)
		}
	}
	if err := os.Rename(staging, dir); err != nil {
		return "", fmt.Errorf("failed to promote snapshot into %s: %w", dir, err)
	}

	w.logger.Info("model snapshot warmed", "model", id, "dir", dir)
	return dir, nil
}

// checkDimension parses the downloaded transformer config and compares its
// hidden size against the expected embedding dimensionality.
func checkDimension(dir string, want int) error {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return fmt.Errorf("snapshot has no readable config.json: %w", err)
	}

	var cfg struct {
		HiddenSize int `json:"hidden_size"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse model config.json: %w", err)
	}
	if cfg.HiddenSize != want {
		return fmt.Errorf("model config declares hidden size %d, expected %d", cfg.HiddenSize, want)
	}
	return nil
}
