// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"kiln-cli/internal/container"
	"kiln-cli/internal/recipe"
)

// LockFileName is written next to the recipe after a successful bake. It
// records which images a recipe state produced, so later runs (and CI) can
// tell whether the baked images still match the sources.
const LockFileName = "kiln.lock"

type (
	// Lock is the serialized form of kiln.lock.
	Lock struct {
		BakedAt time.Time    `toml:"baked_at"`
		Targets []LockTarget `toml:"targets"`
	}

	// LockTarget records one baked target.
	LockTarget struct {
		Target     string `toml:"target"`
		Image      string `toml:"image"`
		RuntimeTag string `toml:"runtime_image"`
		CacheKey   string `toml:"cache_key"`
	}
)

// writeLock upserts a target entry in the recipe's kiln.lock.
func writeLock(r *recipe.Recipe, target recipe.Target, image, runtimeTag container.ImageTag, cacheKey string) error {
	path := filepath.Join(r.Dir(), LockFileName)

	lock := Lock{}
	if data, err := os.ReadFile(path); err == nil {
		// A corrupt lock file is replaced rather than failing the bake.
		_ = toml.Unmarshal(data, &lock)
	}

	entry := LockTarget{
		Target:     string(target),
		Image:      image.String(),
		RuntimeTag: runtimeTag.String(),
		CacheKey:   cacheKey,
	}

	replaced := false
	for i, t := range lock.Targets {
		if t.Target == entry.Target {
			lock.Targets[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		lock.Targets = append(lock.Targets, entry)
	}
	lock.BakedAt = time.Now().UTC()

	data, err := toml.Marshal(lock)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", LockFileName, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadLock loads the kiln.lock next to the recipe, if present.
func ReadLock(r *recipe.Recipe) (*Lock, error) {
	path := filepath.Join(r.Dir(), LockFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &lock, nil
}
