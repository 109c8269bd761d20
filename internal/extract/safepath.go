package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// validateEntryPath applies the rejection rules of spec §4.5 to an
// archive entry's declared path, returning the cleaned, relative form
// on success. It never inspects the filesystem — only the string
// itself — so it doubles as a cheap pre-check before touching disk.
func validateEntryPath(raw string) (string, error) {
	if raw == "" {
		return "", errkind.New(errkind.UnsafePath, "empty entry path")
	}
	if strings.ContainsRune(raw, 0) {
		return "", errkind.New(errkind.UnsafePath, fmt.Sprintf("%q contains NUL", raw))
	}

	p := filepath.ToSlash(raw)
	if strings.HasPrefix(p, "/") {
		return "", errkind.New(errkind.UnsafePath, fmt.Sprintf("%q is absolute", raw))
	}
	if len(p) >= 2 && p[1] == ':' {
		return "", errkind.New(errkind.UnsafePath, fmt.Sprintf("%q has a drive-letter prefix", raw))
	}

	// A single trailing slash marks a directory entry in tar and zip.
	p = strings.TrimSuffix(p, "/")

	p = strings.TrimPrefix(p, "./")
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}

	parts := strings.Split(p, "/")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "":
			return "", errkind.New(errkind.UnsafePath, fmt.Sprintf("%q has an empty component", raw))
		case ".":
			continue
		case "..":
			return "", errkind.New(errkind.UnsafePath, fmt.Sprintf("%q escapes the destination", raw))
		default:
			clean = append(clean, part)
		}
	}
	if len(clean) == 0 {
		return "", errkind.New(errkind.UnsafePath, fmt.Sprintf("%q resolves to nothing", raw))
	}
	return filepath.Join(clean...), nil
}

// safeJoin resolves rel against destDir without following symlinks
// through any intermediate component: an intermediate component that
// already exists on disk as a symlink is rejected, and the join itself
// goes through filepath-securejoin so a symlinked parent directory
// placed by an earlier (malicious) entry cannot redirect a later entry
// outside destDir.
func safeJoin(destDir, rel string) (string, error) {
	parts := strings.Split(rel, string(os.PathSeparator))
	cur := destDir
	for _, part := range parts[:len(parts)-1] {
		cur = filepath.Join(cur, part)
		if info, err := os.Lstat(cur); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return "", errkind.New(errkind.UnsafePath, fmt.Sprintf("%q passes through symlink %q", rel, cur))
		}
	}

	full, err := securejoin.SecureJoin(destDir, rel)
	if err != nil {
		return "", errkind.Wrap(errkind.UnsafePath, fmt.Sprintf("resolve %q", rel), err)
	}
	return full, nil
}

// validateSymlinkTarget checks that a symlink entry's target, resolved
// relative to the entry's parent directory, stays within destDir. It
// operates purely on the declared strings (not the filesystem) since
// the link has not been materialized yet.
func validateSymlinkTarget(destDir, entryRel, target string) error {
	if target == "" {
		return errkind.New(errkind.UnsafePath, "empty symlink target")
	}
	if strings.ContainsRune(target, 0) {
		return errkind.New(errkind.UnsafePath, "symlink target contains NUL")
	}

	parentDir := filepath.Dir(filepath.Join(destDir, entryRel))
	var resolved string
	if filepath.IsAbs(target) {
		resolved = filepath.Clean(target)
	} else {
		resolved = filepath.Clean(filepath.Join(parentDir, target))
	}

	destClean := filepath.Clean(destDir)
	if resolved != destClean && !strings.HasPrefix(resolved, destClean+string(os.PathSeparator)) {
		return errkind.New(errkind.UnsafePath, fmt.Sprintf("symlink %q -> %q escapes destination", entryRel, target))
	}
	return nil
}
