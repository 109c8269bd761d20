package extract

import (
	"path/filepath"
	"testing"
)

func TestValidateEntryPathAcceptsNormalRelative(t *testing.T) {
	rel, err := validateEntryPath("bin/app")
	if err != nil {
		t.Fatalf("validateEntryPath: %v", err)
	}
	if rel != filepath.Join("bin", "app") {
		t.Errorf("got %q, want bin/app", rel)
	}
}

func TestValidateEntryPathStripsLeadingDotSlash(t *testing.T) {
	rel, err := validateEntryPath("./bin/app")
	if err != nil {
		t.Fatalf("validateEntryPath: %v", err)
	}
	if rel != filepath.Join("bin", "app") {
		t.Errorf("got %q, want bin/app", rel)
	}
}

func TestValidateEntryPathRejectsTraversal(t *testing.T) {
	cases := []string{
		"../etc/passwd",
		"bin/../../etc/passwd",
		"/etc/passwd",
		"C:\\Windows\\system32",
		"",
		"bin//app",
	}
	for _, c := range cases {
		if _, err := validateEntryPath(c); err == nil {
			t.Errorf("validateEntryPath(%q) succeeded, want UnsafePath error", c)
		}
	}
}

func TestValidateEntryPathRejectsNUL(t *testing.T) {
	if _, err := validateEntryPath("bin/app\x00.sh"); err == nil {
		t.Error("expected rejection of NUL byte in entry path")
	}
}

func TestValidateSymlinkTargetAllowsWithinDest(t *testing.T) {
	destDir := "/dest"
	if err := validateSymlinkTarget(destDir, "bin/app", "../lib/libapp.so"); err != nil {
		t.Errorf("expected in-bounds symlink to be allowed: %v", err)
	}
}

func TestValidateSymlinkTargetRejectsEscape(t *testing.T) {
	destDir := "/dest"
	if err := validateSymlinkTarget(destDir, "bin/app", "../../etc/passwd"); err == nil {
		t.Error("expected out-of-bounds symlink target to be rejected")
	}
}

func TestValidateSymlinkTargetRejectsAbsoluteOutside(t *testing.T) {
	destDir := "/dest"
	if err := validateSymlinkTarget(destDir, "bin/app", "/etc/passwd"); err == nil {
		t.Error("expected absolute out-of-bounds symlink target to be rejected")
	}
}

func TestSafeJoinStaysWithinDest(t *testing.T) {
	destDir := t.TempDir()
	full, err := safeJoin(destDir, "bin/app")
	if err != nil {
		t.Fatalf("safeJoin: %v", err)
	}
	if filepath.Dir(full) != filepath.Join(destDir, "bin") {
		t.Errorf("safeJoin produced %q outside expected parent", full)
	}
}
