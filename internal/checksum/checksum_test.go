package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

const (
	digestA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	digestB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestParseTwoSpaceForm(t *testing.T) {
	manifest, err := Parse([]byte(digestA + "  app-linux-amd64.tar.gz\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := manifest["app-linux-amd64.tar.gz"]; got != digestA {
		t.Errorf("got digest %q, want %q", got, digestA)
	}
}

func TestParseBinaryStarForm(t *testing.T) {
	manifest, err := Parse([]byte(digestB + " *app-linux-arm64.tar.gz\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := manifest["app-linux-arm64.tar.gz"]; got != digestB {
		t.Errorf("got digest %q, want %q", got, digestB)
	}
}

func TestParseUppercaseHexLowercased(t *testing.T) {
	manifest, err := Parse([]byte(strings.ToUpper(digestA) + "  app.bin\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if manifest["app.bin"] != digestA {
		t.Errorf("digest not lowercased: %q", manifest["app.bin"])
	}
}

func TestParseSkipsBlankAndCommentLines(t *testing.T) {
	body := "# comment\n\n" + digestA + "  app.bin\n"
	manifest, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(manifest) != 1 {
		t.Fatalf("got %d entries, want 1", len(manifest))
	}
}

func TestParseRejectsPathInFilename(t *testing.T) {
	_, err := Parse([]byte(digestA + "  sub/dir/app.bin\n"))
	if !errkind.Is(err, errkind.MalformedResp) {
		t.Fatalf("expected MalformedResp, got %v", err)
	}
}

func TestParseRejectsShortLine(t *testing.T) {
	_, err := Parse([]byte("deadbeef  app.bin\n"))
	if !errkind.Is(err, errkind.MalformedResp) {
		t.Fatalf("expected MalformedResp for short digest, got %v", err)
	}
}

func TestLookupMissing(t *testing.T) {
	m := Manifest{}
	_, err := m.Lookup("nope.bin")
	if !errkind.Is(err, errkind.ChecksumMissing) {
		t.Fatalf("expected ChecksumMissing, got %v", err)
	}
}

func TestVerifyMatchAndMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asset.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// sha256("hello world")
	const want = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if err := Verify(path, want); err != nil {
		t.Errorf("Verify matching digest: %v", err)
	}
	if err := Verify(path, strings.ToUpper(want)); err != nil {
		t.Errorf("Verify should be case-insensitive: %v", err)
	}

	err := Verify(path, digestA)
	if !errkind.Is(err, errkind.ChecksumMismatch) {
		t.Fatalf("expected ChecksumMismatch, got %v", err)
	}
}
