// SPDX-License-Identifier: MPL-2.0

// Package watch monitors a recipe's inputs and fires a debounced callback
// when they change.
//
// The watched set is derived from the recipe: the project tree, the shared
// tree (when configured), and the recipe file itself. Events within the
// debounce window are coalesced so the callback fires once with the full set
// of changed paths, which lets callers re-bake exactly once per burst of
// editor activity.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"kiln-cli/internal/recipe"
)

// defaultDebounce is the delay before firing the onChange callback after the
// last filesystem event. Rapid successive events (an editor writing then
// renaming a temp file, a formatter touching many sources) coalesce into a
// single callback.
const defaultDebounce = 500 * time.Millisecond

// defaultIgnores lists path patterns that never trigger a re-bake. They
// mirror the directories excluded from the build context, plus editor and OS
// noise: none of these affect the baked image, so rebuilding on them would
// only churn.
var defaultIgnores = []string{
	"**/.git/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/.mypy_cache/**",
	"**/.pytest_cache/**",
	"**/*.pyc",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Recipe supplies the watched inputs: its project tree, shared tree,
		// and the recipe file itself. Required.
		Recipe *recipe.Recipe

		// Ignore are additional doublestar-compatible glob patterns for paths
		// that should never trigger callbacks, merged with the built-in
		// defaults. Patterns match paths relative to the tree they live in.
		Ignore []string

		// Debounce is the quiet period after the last event before the
		// callback fires. Zero or negative values fall back to
		// defaultDebounce.
		Debounce time.Duration

		// OnChange is called after the debounce window closes with the
		// deduplicated list of changed paths. A nil callback is a no-op.
		OnChange func(ctx context.Context, changed []string) error

		// Stdout and Stderr are the output writers for informational and
		// error messages respectively. nil values default to
		// os.Stdout / os.Stderr.
		Stdout io.Writer
		Stderr io.Writer
	}

	// Watcher monitors a recipe's inputs and fires a debounced callback when
	// they change. Run must be called exactly once; a second call returns an
	// error.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		ignores  []string
		roots    []string
		kilnfile string
		stdout   io.Writer
		stderr   io.Writer
		debounce time.Duration
		started  atomic.Bool
	}
)

// New creates a Watcher for the given recipe. It registers every
// non-ignored directory under the recipe's source trees plus the recipe
// file's own directory for monitoring.
func New(cfg Config) (*Watcher, error) {
	if cfg.Recipe == nil {
		return nil, fmt.Errorf("watch: recipe is required")
	}

	kilnfile, err := filepath.Abs(cfg.Recipe.FilePath)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve recipe path: %w", err)
	}

	roots, err := recipeRoots(cfg.Recipe)
	if err != nil {
		return nil, err
	}

	// Validate all patterns eagerly so invalid globs fail at construction
	// time rather than silently failing to match at runtime.
	if err := validatePatterns(cfg.Ignore); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	ignores := make([]string, 0, len(defaultIgnores)+len(cfg.Ignore))
	ignores = append(ignores, defaultIgnores...)
	ignores = append(ignores, cfg.Ignore...)

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		ignores:  ignores,
		roots:    roots,
		kilnfile: kilnfile,
		stdout:   stdout,
		stderr:   stderr,
		debounce: debounce,
	}

	if err := w.addDirectories(); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			fmt.Fprintf(stderr, "watch: close after init failure: %v\n", closeErr)
		}
		return nil, err
	}

	return w, nil
}

// recipeRoots returns the directories whose contents feed the baked image:
// the project tree and, when configured, the shared tree. Duplicate and
// nested roots collapse to the outermost entry so a tree is never walked
// twice.
func recipeRoots(r *recipe.Recipe) ([]string, error) {
	candidates := []string{r.ProjectDir()}
	if shared := r.SharedDir(); shared != "" {
		candidates = append(candidates, shared)
	}

	var roots []string
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve source tree %q: %w", c, err)
		}
		covered := false
		for _, existing := range roots {
			if abs == existing || strings.HasPrefix(abs, existing+string(filepath.Separator)) {
				covered = true
				break
			}
		}
		if !covered {
			roots = append(roots, abs)
		}
	}
	return roots, nil
}

// Run blocks until ctx is cancelled, processing filesystem events and
// dispatching debounced callbacks. It returns nil on clean context
// cancellation and propagates any fatal watcher errors. Run must be called
// exactly once; a second call returns an error immediately.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		running atomic.Bool
	)

	// fire drains the pending set and invokes the OnChange callback. It may
	// be scheduled by time.AfterFunc after the context is cancelled, so
	// ctx.Err() is checked as a best-effort guard; the callback receives ctx
	// and should check it for cancellation-sensitive work. The atomic
	// skip-if-busy guard prevents overlapping callbacks when a bake takes
	// longer than the debounce period.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			fmt.Fprintf(w.stderr, "watch: skipping re-bake (previous run still in progress)\n")
			// Reschedule so pending events are not permanently lost when no
			// further filesystem events arrive.
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		if len(pending) == 0 {
			mu.Unlock()
			return
		}
		changed := slices.Collect(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		slices.Sort(changed)

		if w.cfg.OnChange != nil {
			if err := w.cfg.OnChange(ctx, changed); err != nil {
				fmt.Fprintf(w.stderr, "watch: callback error: %v\n", err)
			}
		}
	}

	// Drain the timer channel on exit. The timer is accessed under mu
	// because it is written by the event loop under the same lock.
	defer func() {
		mu.Lock()
		localTimer := timer
		mu.Unlock()
		if localTimer != nil && !localTimer.Stop() {
			select {
			case <-localTimer.C:
			default:
			}
		}
		if closeErr := w.fsw.Close(); closeErr != nil {
			fmt.Fprintf(w.stderr, "watch: close fsnotify: %v\n", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: fsnotify event channel closed unexpectedly")
			}

			rel, relevant := w.classify(evt.Name)
			if !relevant {
				continue
			}

			// Auto-add newly created directories so recursive watches extend
			// to directories created after startup.
			if evt.Has(fsnotify.Create) {
				w.maybeAddDir(evt.Name)
			}

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: fsnotify error channel closed unexpectedly")
			}
			// Resource exhaustion (inotify limit, file descriptor limits)
			// means the watcher is fundamentally broken. The fatal set is
			// platform-specific (watcher_fatal_*.go).
			if isFatalFsnotifyError(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			fmt.Fprintf(w.stderr, "watch: fsnotify error: %v\n", err)
		}
	}
}

// classify maps an event path to a display path and reports whether it
// should trigger a re-bake. The recipe file always triggers; paths inside a
// source tree trigger unless an ignore pattern matches; everything else
// (siblings of the recipe file, unrelated paths) is noise.
func (w *Watcher) classify(name string) (string, bool) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", false
	}

	if abs == w.kilnfile {
		return filepath.Base(w.kilnfile), true
	}

	for _, root := range w.roots {
		if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
			continue
		}
		rel, relErr := filepath.Rel(root, abs)
		if relErr != nil {
			return "", false
		}
		if w.isIgnored(rel) {
			return "", false
		}
		return rel, true
	}
	return "", false
}

// addDirectories registers every non-ignored directory under the source
// trees, plus the recipe file's own directory so edits to the recipe are
// seen. The recipe directory is watched non-recursively; classify filters
// its events down to the recipe file itself.
func (w *Watcher) addDirectories() error {
	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			return err
		}
	}

	recipeDir := filepath.Dir(w.kilnfile)
	if err := w.fsw.Add(recipeDir); err != nil {
		return fmt.Errorf("watch: add recipe directory %q: %w", recipeDir, err)
	}
	return nil
}

// addTree walks root and adds every non-ignored directory to the fsnotify
// watcher. Ignore filtering on files is applied when events arrive (see
// classify); directories are skipped here so the walk never descends into
// ignored trees.
func (w *Watcher) addTree(root string) error {
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, walkDirErr error) error {
		if walkDirErr != nil {
			// Best-effort: skip directories we cannot access rather than
			// aborting the entire walk. Log to stderr so users know which
			// paths are not being watched.
			fmt.Fprintf(w.stderr, "watch: skipping inaccessible path %q: %v\n", path, walkDirErr)
			return nil //nolint:nilerr // intentional skip of inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil //nolint:nilerr // skip paths that cannot be made relative
		}

		if rel != "." && (w.isIgnored(rel) || w.isIgnored(rel+"/")) {
			return filepath.SkipDir
		}

		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("watch: walk source tree: %w", walkErr)
	}
	return nil
}

// maybeAddDir adds path to the fsnotify watcher if it is a non-ignored
// directory inside one of the source trees. This extends monitoring to
// directories created after the initial walk.
func (w *Watcher) maybeAddDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	if _, relevant := w.classify(path); !relevant {
		return
	}

	if addErr := w.fsw.Add(path); addErr != nil {
		fmt.Fprintf(w.stderr, "watch: add new directory %q: %v\n", path, addErr)
	}
}

// isIgnored returns true if the given tree-relative path matches any ignore
// pattern.
func (w *Watcher) isIgnored(rel string) bool {
	// Normalise to forward slashes for consistent glob matching.
	normalized := filepath.ToSlash(rel)
	for _, pat := range w.ignores {
		if matched, matchErr := doublestar.Match(pat, normalized); matchErr == nil && matched {
			return true
		}
	}
	return false
}

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string {
	out := make([]string, len(defaultIgnores))
	copy(out, defaultIgnores)
	return out
}

// isFatalFsnotifyError reports whether err matches one of the platform's
// unrecoverable watcher conditions.
func isFatalFsnotifyError(err error) bool {
	for _, fatal := range fatalFsnotifyErrnos {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}

// validatePatterns checks that every pattern is a valid doublestar glob.
func validatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if _, err := doublestar.Match(pat, ""); err != nil {
			return fmt.Errorf("watch: invalid ignore pattern %q: %w", pat, err)
		}
	}
	return nil
}
