// SPDX-License-Identifier: MPL-2.0

package modelcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// SnapshotFileName is the manifest written at the root of every complete
// snapshot. Its presence is the completeness marker: a model directory
// without it is treated as absent.
const SnapshotFileName = "snapshot.toml"

type (
	// Snapshot is the manifest of a warmed model: which files the snapshot
	// holds and their digests, so later runs can verify integrity without
	// touching the registry.
	Snapshot struct {
		ModelID   ModelID        `toml:"model_id"`
		Dimension int            `toml:"dimension"`
		WarmedAt  time.Time      `toml:"warmed_at"`
		Files     []SnapshotFile `toml:"files"`
	}

	// SnapshotFile records one file of a snapshot.
	SnapshotFile struct {
		Path   string `toml:"path"`
		SHA256 string `toml:"sha256"`
		Size   int64  `toml:"size"`
	}
)

// WriteSnapshot writes the manifest into dir.
func WriteSnapshot(dir string, snap Snapshot) error {
	data, err := toml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot manifest: %w", err)
	}

	path := filepath.Join(dir, SnapshotFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot manifest at %s: %w", path, err)
	}
	return nil
}

// ReadSnapshot loads the manifest from dir. A missing manifest means the
// snapshot is incomplete or absent; callers should treat that as "not
// warmed" rather than an integrity failure.
func ReadSnapshot(dir string) (*Snapshot, error) {
	path := filepath.Join(dir, SnapshotFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot manifest at %s: %w", path, err)
	}

	var snap Snapshot
	if err := toml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot manifest at %s: %w", path, err)
	}
	return &snap, nil
}

// VerifySnapshot re-hashes every file the manifest names and reports the
// first mismatch. Used before reusing a cached snapshot in a bake.
func VerifySnapshot(dir string, snap *Snapshot) error {
	for _, f := range snap.Files {
		path := filepath.Join(dir, f.Path)

		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("snapshot file %s is missing: %w", f.Path, err)
		}
		if info.Size() != f.Size {
			return fmt.Errorf("snapshot file %s has size %d, manifest says %d", f.Path, info.Size(), f.Size)
		}

		sum, err := hashFile(path)
		if err != nil {
			return err
		}
		if sum != f.SHA256 {
			return fmt.Errorf("snapshot file %s failed checksum verification", f.Path)
		}
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
