// SPDX-License-Identifier: MPL-2.0

package modelcache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

const testModelID = ModelID("sentence-transformers/all-MiniLM-L6-v2")

// fakeRegistry serves known-model files over the hub resolve layout and
// counts requests so tests can assert cache hits never touch the network.
type fakeRegistry struct {
	requests   atomic.Int64
	failures   atomic.Int64 // remaining requests to fail with 503
	hiddenSize int
	missing    string // file path to 404
}

func (f *fakeRegistry) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)

		if f.failures.Load() > 0 {
			f.failures.Add(-1)
			w.Header().Set("Retry-After", "0")
			http.Error(w, "temporarily overloaded", http.StatusServiceUnavailable)
			return
		}

		prefix := "/" + string(testModelID) + "/resolve/main/"
		file, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok || file == f.missing {
			http.NotFound(w, r)
			return
		}

		if file == "config.json" {
			fmt.Fprintf(w, `{"hidden_size": %d}`, f.hiddenSize)
			return
		}
		fmt.Fprintf(w, "content of %s", file)
	})
}

func newTestWarmer(t *testing.T, reg *fakeRegistry) (*Warmer, string) {
	t.Helper()

	if reg.hiddenSize == 0 {
		reg.hiddenSize = 384
	}
	srv := httptest.NewServer(reg.handler())
	t.Cleanup(srv.Close)

	cacheDir := t.TempDir()
	client := NewRegistryClient(
		WithRegistryURL(srv.URL),
		WithRetryPolicy(3, time.Millisecond),
	)
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.FatalLevel})
	return NewWarmer(cacheDir, WithClient(client), WithLogger(logger)), cacheDir
}

func TestWarm_PopulatesSnapshot(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	warmer, _ := newTestWarmer(t, reg)

	dir, err := warmer.Warm(context.Background(), testModelID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !warmer.IsWarm(testModelID) {
		t.Error("expected IsWarm after successful warm")
	}

	model, err := Lookup(testModelID)
	if err != nil {
		t.Fatal(err)
	}
	for _, file := range model.Files {
		if _, err := os.Stat(filepath.Join(dir, file)); err != nil {
			t.Errorf("expected %s in snapshot: %v", file, err)
		}
	}

	snap, err := ReadSnapshot(dir)
	if err != nil {
		t.Fatalf("failed to read snapshot manifest: %v", err)
	}
	if snap.ModelID != testModelID {
		t.Errorf("manifest model id = %q", snap.ModelID)
	}
	if snap.Dimension != 384 {
		t.Errorf("manifest dimension = %d", snap.Dimension)
	}
	if len(snap.Files) != len(model.Files) {
		t.Errorf("manifest lists %d files, want %d", len(snap.Files), len(model.Files))
	}

	if err := warmer.Verify(testModelID); err != nil {
		t.Errorf("fresh snapshot failed verification: %v", err)
	}
}

func TestWarm_Idempotent(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	warmer, _ := newTestWarmer(t, reg)

	if _, err := warmer.Warm(context.Background(), testModelID); err != nil {
		t.Fatalf("first warm failed: %v", err)
	}
	after := reg.requests.Load()

	if _, err := warmer.Warm(context.Background(), testModelID); err != nil {
		t.Fatalf("second warm failed: %v", err)
	}
	if reg.requests.Load() != after {
		t.Errorf("second warm made %d registry requests, want 0", reg.requests.Load()-after)
	}
}

func TestWarm_FailureLeavesNoPartialSnapshot(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{missing: "model.safetensors"}
	warmer, cacheDir := newTestWarmer(t, reg)

	_, err := warmer.Warm(context.Background(), testModelID)
	if err == nil {
		t.Fatal("expected warm to fail")
	}

	if warmer.IsWarm(testModelID) {
		t.Error("failed warm must not mark the model warm")
	}
	if _, statErr := os.Stat(warmer.ModelDir(testModelID)); !os.IsNotExist(statErr) {
		t.Error("failed warm must not leave the snapshot directory behind")
	}

	// No staging leftovers either.
	entries, readErr := os.ReadDir(filepath.Join(cacheDir, "models"))
	if readErr == nil && len(entries) != 0 {
		t.Errorf("cache holds leftover entries after failed warm: %v", entries)
	}
}

func TestWarm_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	reg.failures.Store(2)
	warmer, _ := newTestWarmer(t, reg)

	if _, err := warmer.Warm(context.Background(), testModelID); err != nil {
		t.Fatalf("warm should survive transient registry errors: %v", err)
	}
}

func TestWarm_UnknownModel(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	warmer, _ := newTestWarmer(t, reg)

	_, err := warmer.Warm(context.Background(), ModelID("nobody/no-such-model"))
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if !errors.Is(err, ErrModelResolve) {
		t.Errorf("unknown model error should report as a resolution failure: %v", err)
	}
	if reg.requests.Load() != 0 {
		t.Error("unknown model must fail before any registry request")
	}
}

func TestWarm_BareNameSharesCanonicalSnapshot(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	warmer, _ := newTestWarmer(t, reg)

	dir, err := warmer.Warm(context.Background(), ModelID("all-MiniLM-L6-v2"))
	if err != nil {
		t.Fatalf("bare model name failed to warm: %v", err)
	}
	if filepath.Base(dir) != "sentence-transformers--all-MiniLM-L6-v2" {
		t.Errorf("bare name warmed into %q, want the canonical directory", dir)
	}

	if !warmer.IsWarm(ModelID("all-MiniLM-L6-v2")) || !warmer.IsWarm(testModelID) {
		t.Error("bare and namespaced ids must address the same snapshot")
	}

	// The canonical id must reuse the snapshot, not re-download.
	after := reg.requests.Load()
	if _, err := warmer.Warm(context.Background(), testModelID); err != nil {
		t.Fatalf("canonical warm after bare warm failed: %v", err)
	}
	if reg.requests.Load() != after {
		t.Error("canonical id re-downloaded a snapshot the bare id already warmed")
	}
}

func TestWarm_DimensionMismatch(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{hiddenSize: 768}
	warmer, _ := newTestWarmer(t, reg)

	_, err := warmer.Warm(context.Background(), testModelID)
	if err == nil {
		t.Fatal("expected dimension mismatch to fail the warm")
	}
	if !strings.Contains(err.Error(), "hidden size") {
		t.Errorf("unexpected error: %v", err)
	}
	if warmer.IsWarm(testModelID) {
		t.Error("mismatched snapshot must not be promoted")
	}
}

func TestVerify_DetectsCorruption(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	warmer, _ := newTestWarmer(t, reg)

	dir, err := warmer.Warm(context.Background(), testModelID)
	if err != nil {
		t.Fatalf("warm failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "vocab.txt"), []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := warmer.Verify(testModelID); err == nil {
		t.Error("expected verification to catch the tampered file")
	}
}

func TestModelID_DirName(t *testing.T) {
	t.Parallel()

	if got := testModelID.DirName(); got != "sentence-transformers--all-MiniLM-L6-v2" {
		t.Errorf("DirName = %q", got)
	}
}

func TestModelID_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id   ModelID
		want ModelID
	}{
		{"all-MiniLM-L6-v2", "sentence-transformers/all-MiniLM-L6-v2"},
		{"sentence-transformers/all-MiniLM-L6-v2", "sentence-transformers/all-MiniLM-L6-v2"},
		{"other-org/some-model", "other-org/some-model"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := tt.id.Normalize(); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestLookup_BareName(t *testing.T) {
	t.Parallel()

	m, err := Lookup(ModelID("all-MiniLM-L6-v2"))
	if err != nil {
		t.Fatalf("bare name must resolve under the default owner: %v", err)
	}
	if m.ID != testModelID {
		t.Errorf("bare name resolved to %q, want %q", m.ID, testModelID)
	}
}

func TestModelID_Validate(t *testing.T) {
	t.Parallel()

	for _, good := range []ModelID{testModelID, "all-MiniLM-L6-v2"} {
		if err := good.Validate(); err != nil {
			t.Errorf("valid id %q rejected: %v", good, err)
		}
	}
	for _, bad := range []ModelID{"", "a/b/c", "/name", "owner/"} {
		if err := bad.Validate(); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}
