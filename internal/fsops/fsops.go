// Package fsops implements the three filesystem transitions that make
// up the install pipeline's atomicity story: promoting a staging
// directory into the immutable release store, switching per-binary
// symlinks to point at a new release, and pruning old releases by
// retention count.
//
// Grounded on the extract-to-temp-then-rename swap in the teacher's
// internal/apps/install.go (installUpdate), generalized from an
// unconditional "remove old, rename new" swap to the spec's
// no-overwrite promote plus independent per-binary symlink switching.
package fsops

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// Promote renames stagingDir to targetDir. It fails if targetDir
// already exists — promotion never overwrites an existing release —
// and fsyncs targetDir's parent directory on success so the rename is
// durable before the caller proceeds to switch bins.
func Promote(stagingDir, targetDir string) error {
	if _, err := os.Lstat(targetDir); err == nil {
		return errkind.New(errkind.Promotion, fmt.Sprintf("target already exists: %s", targetDir))
	} else if !os.IsNotExist(err) {
		return errkind.Wrap(errkind.Promotion, "stat target", err)
	}

	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return errkind.Wrap(errkind.Promotion, "create releases directory", err)
	}
	if err := os.Rename(stagingDir, targetDir); err != nil {
		return errkind.Wrap(errkind.Promotion, "rename staging into release store", err)
	}
	if err := fsyncDir(filepath.Dir(targetDir)); err != nil {
		return errkind.Wrap(errkind.Promotion, "fsync releases directory", err)
	}
	return nil
}

// AlreadyPromoted reports whether targetDir exists and is a directory,
// used by the orchestrator to treat a promotion collision against the
// already-installed tag as a no-op rather than a failure.
func AlreadyPromoted(targetDir string) bool {
	info, err := os.Lstat(targetDir)
	return err == nil && info.IsDir()
}

// SwitchBins enumerates the executables directly under releaseDir
// (files with the executable bit set, or the sole file when the
// release contains exactly one) and, for each, atomically points
// <binDir>/<name> at a relative symlink into releaseDir. Each symlink
// is switched independently via a write-then-rename so a crash mid-way
// leaves every binary pointing at either the old or the new release,
// never at a partially written link. Symlinks left over in binDir from
// a previous release that named a binary absent from this one are
// removed after the switch pass.
func SwitchBins(releaseDir, binDir, tag string) error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return errkind.Wrap(errkind.Symlink, "create bin directory", err)
	}

	names, err := executableNames(releaseDir)
	if err != nil {
		return err
	}

	newSet := map[string]bool{}
	for _, name := range names {
		newSet[name] = true
		relTarget := filepath.Join("..", "releases", tag, name)
		linkPath := filepath.Join(binDir, name)
		tmpPath := linkPath + ".new." + uuid.NewString()[:8]

		os.Remove(tmpPath)
		if err := os.Symlink(relTarget, tmpPath); err != nil {
			return errkind.Wrap(errkind.Symlink, fmt.Sprintf("create staged symlink for %s", name), err)
		}
		if err := os.Rename(tmpPath, linkPath); err != nil {
			os.Remove(tmpPath)
			return errkind.Wrap(errkind.Symlink, fmt.Sprintf("switch symlink for %s", name), err)
		}
	}

	if err := fsyncDir(binDir); err != nil {
		return errkind.Wrap(errkind.Symlink, "fsync bin directory", err)
	}

	return removeStaleBins(binDir, newSet)
}

// removeStaleBins deletes symlinks in binDir that resolve into a
// releases/<tag>/<name> path but whose <name> is absent from keep.
func removeStaleBins(binDir string, keep map[string]bool) error {
	entries, err := os.ReadDir(binDir)
	if err != nil {
		return errkind.Wrap(errkind.Symlink, "list bin directory", err)
	}
	for _, entry := range entries {
		if keep[entry.Name()] {
			continue
		}
		linkPath := filepath.Join(binDir, entry.Name())
		info, err := os.Lstat(linkPath)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			continue
		}
		target, err := os.Readlink(linkPath)
		if err != nil {
			continue
		}
		if !looksLikeReleaseLink(target) {
			continue
		}
		if err := os.Remove(linkPath); err != nil {
			return errkind.Wrap(errkind.Symlink, fmt.Sprintf("remove stale symlink %s", entry.Name()), err)
		}
	}
	return nil
}

func looksLikeReleaseLink(target string) bool {
	clean := filepath.ToSlash(target)
	return filepath.Base(filepath.Dir(filepath.Dir(clean))) == "releases"
}

// executableNames returns the direct-child regular files of releaseDir
// whose owner-executable bit is set. If exactly one regular file
// exists and none is executable, that lone file is returned instead —
// the single-binary release case.
func executableNames(releaseDir string) ([]string, error) {
	entries, err := os.ReadDir(releaseDir)
	if err != nil {
		return nil, errkind.Wrap(errkind.Symlink, "list release directory", err)
	}

	var files []string
	var executables []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		files = append(files, entry.Name())
		if info.Mode().Perm()&0o111 != 0 {
			executables = append(executables, entry.Name())
		}
	}

	if len(executables) > 0 {
		sort.Strings(executables)
		return executables, nil
	}
	if len(files) == 1 {
		return files, nil
	}
	return nil, nil
}

// Prune keeps the retain most-recently-modified subdirectories of
// releasesDir, always keeping keepTag regardless of its mtime rank,
// and removes the rest. retain must be at least 1.
func Prune(releasesDir, keepTag string, retain int) error {
	if retain < 1 {
		retain = 1
	}

	entries, err := os.ReadDir(releasesDir)
	if err != nil {
		return errkind.Wrap(errkind.Prune, "list releases directory", err)
	}

	type release struct {
		name  string
		mtime int64
	}
	var releases []release
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		releases = append(releases, release{name: entry.Name(), mtime: info.ModTime().UnixNano()})
	}

	sort.Slice(releases, func(i, j int) bool {
		if releases[i].mtime != releases[j].mtime {
			return releases[i].mtime > releases[j].mtime
		}
		return releases[i].name > releases[j].name
	})

	keep := map[string]bool{keepTag: true}
	remaining := retain - 1
	for _, r := range releases {
		if remaining <= 0 {
			break
		}
		if r.name == keepTag {
			continue
		}
		keep[r.name] = true
		remaining--
	}

	var firstErr error
	for _, r := range releases {
		if keep[r.name] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(releasesDir, r.name)); err != nil && firstErr == nil {
			firstErr = errkind.Wrap(errkind.Prune, fmt.Sprintf("remove release %s", r.name), err)
		}
	}
	return firstErr
}

// fsyncDir opens dir and calls Sync, making a preceding rename into or
// within it durable.
func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
