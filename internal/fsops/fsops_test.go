package fsops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

func TestPromoteRenamesStagingIntoPlace(t *testing.T) {
	root := t.TempDir()
	staging := filepath.Join(root, "staging", "v1.0.0")
	target := filepath.Join(root, "releases", "v1.0.0")

	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	os.WriteFile(filepath.Join(staging, "app"), []byte("bin"), 0o755)

	if err := Promote(staging, target); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if !AlreadyPromoted(target) {
		t.Error("expected target to exist after Promote")
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Error("expected staging directory to be gone after rename")
	}
}

func TestPromoteFailsWhenTargetExists(t *testing.T) {
	root := t.TempDir()
	staging := filepath.Join(root, "staging", "v1.0.0")
	target := filepath.Join(root, "releases", "v1.0.0")
	os.MkdirAll(staging, 0o755)
	os.MkdirAll(target, 0o755)

	err := Promote(staging, target)
	if !errkind.Is(err, errkind.Promotion) {
		t.Fatalf("expected Promotion error, got %v", err)
	}
}

func TestSwitchBinsCreatesRelativeSymlinks(t *testing.T) {
	root := t.TempDir()
	releaseDir := filepath.Join(root, "releases", "v1.0.0")
	binDir := filepath.Join(root, "bin")
	os.MkdirAll(releaseDir, 0o755)
	os.WriteFile(filepath.Join(releaseDir, "app"), []byte("#!/bin/sh"), 0o755)

	if err := SwitchBins(releaseDir, binDir, "v1.0.0"); err != nil {
		t.Fatalf("SwitchBins: %v", err)
	}

	target, err := os.Readlink(filepath.Join(binDir, "app"))
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	want := filepath.Join("..", "releases", "v1.0.0", "app")
	if target != want {
		t.Errorf("symlink target = %q, want %q", target, want)
	}
}

func TestSwitchBinsRemovesStaleSymlinkForDroppedBinary(t *testing.T) {
	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	os.MkdirAll(binDir, 0o755)

	oldRelease := filepath.Join(root, "releases", "v1.0.0")
	os.MkdirAll(oldRelease, 0o755)
	os.WriteFile(filepath.Join(oldRelease, "helper"), []byte("x"), 0o755)
	os.WriteFile(filepath.Join(oldRelease, "app"), []byte("x"), 0o755)
	if err := SwitchBins(oldRelease, binDir, "v1.0.0"); err != nil {
		t.Fatalf("SwitchBins (old): %v", err)
	}

	newRelease := filepath.Join(root, "releases", "v2.0.0")
	os.MkdirAll(newRelease, 0o755)
	os.WriteFile(filepath.Join(newRelease, "app"), []byte("x"), 0o755)
	if err := SwitchBins(newRelease, binDir, "v2.0.0"); err != nil {
		t.Fatalf("SwitchBins (new): %v", err)
	}

	if _, err := os.Lstat(filepath.Join(binDir, "helper")); !os.IsNotExist(err) {
		t.Error("expected stale helper symlink to be removed")
	}
	target, err := os.Readlink(filepath.Join(binDir, "app"))
	if err != nil {
		t.Fatalf("Readlink app: %v", err)
	}
	if target != filepath.Join("..", "releases", "v2.0.0", "app") {
		t.Errorf("app symlink not switched to new release: %q", target)
	}
}

func TestSwitchBinsIgnoresNonReleaseSymlinks(t *testing.T) {
	root := t.TempDir()
	binDir := filepath.Join(root, "bin")
	os.MkdirAll(binDir, 0o755)
	os.Symlink("/usr/bin/env", filepath.Join(binDir, "unrelated"))

	releaseDir := filepath.Join(root, "releases", "v1.0.0")
	os.MkdirAll(releaseDir, 0o755)
	os.WriteFile(filepath.Join(releaseDir, "app"), []byte("x"), 0o755)

	if err := SwitchBins(releaseDir, binDir, "v1.0.0"); err != nil {
		t.Fatalf("SwitchBins: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(binDir, "unrelated")); err != nil {
		t.Error("expected unrelated non-release symlink to survive")
	}
}

func TestPruneKeepsKeepTagAndRetainMinusOneMostRecent(t *testing.T) {
	root := t.TempDir()
	tags := []string{"v1.0.0", "v1.1.0", "v1.2.0", "v1.3.0", "v1.4.0"}
	base := time.Now().Add(-time.Hour)
	for i, tag := range tags {
		dir := filepath.Join(root, tag)
		os.MkdirAll(dir, 0o755)
		mtime := base.Add(time.Duration(i) * time.Minute)
		os.Chtimes(dir, mtime, mtime)
	}

	// keepTag is the oldest by mtime, forcing Prune to keep it despite rank.
	if err := Prune(root, "v1.0.0", 3); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d remaining releases, want 3: %v", len(entries), names(entries))
	}

	want := map[string]bool{"v1.0.0": true, "v1.4.0": true, "v1.3.0": true}
	for _, e := range entries {
		if !want[e.Name()] {
			t.Errorf("unexpected surviving release %q", e.Name())
		}
	}
}

func TestPruneRetainLessThanOneTreatedAsOne(t *testing.T) {
	root := t.TempDir()
	for _, tag := range []string{"v1.0.0", "v1.1.0"} {
		os.MkdirAll(filepath.Join(root, tag), 0o755)
	}
	if err := Prune(root, "v1.1.0", 0); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 || entries[0].Name() != "v1.1.0" {
		t.Fatalf("got %v, want only v1.1.0 kept", names(entries))
	}
}

func names(entries []os.DirEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name()
	}
	return out
}
