// Package checksum parses SHA-256 manifest files in the tolerant
// formats real release pipelines emit, and verifies a downloaded
// file's digest against them.
//
// Grounded on the hex-digest-compare idiom used by the pack's
// rawrequest-updater reference (sha256.New + hex.EncodeToString +
// case-insensitive compare); generalized here from "one expected hash"
// to "a manifest mapping many filenames to hashes."
package checksum

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// Manifest maps a filename to its lowercase hex SHA-256 digest.
type Manifest map[string]string

var errNoDigest = fmt.Errorf("no 64-character hex digest found")

// Parse reads a checksum manifest and returns a filename → digest map.
// Accepted line forms:
//
//	<hex>  <filename>
//	<hex> *<filename>
//	<hex><whitespace>*?<filename>
//
// Blank lines and lines starting with '#' are ignored. Filenames
// containing a path separator are rejected: the manifest field must
// name a bare file, per spec.
func Parse(manifest []byte) (Manifest, error) {
	out := Manifest{}
	scanner := bufio.NewScanner(strings.NewReader(string(manifest)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		digest, name, err := parseLine(trimmed)
		if err != nil {
			return nil, errkind.Wrap(errkind.MalformedResp, fmt.Sprintf("checksum manifest line %d", lineNo), err)
		}
		if strings.ContainsAny(name, "/\\") {
			return nil, errkind.New(errkind.MalformedResp, fmt.Sprintf("checksum manifest line %d: filename %q contains a path separator", lineNo, name))
		}
		out[name] = strings.ToLower(digest)
	}
	if err := scanner.Err(); err != nil {
		return nil, errkind.Wrap(errkind.MalformedResp, "read checksum manifest", err)
	}
	return out, nil
}

func parseLine(line string) (digest, name string, err error) {
	if len(line) < 64 {
		return "", "", errNoDigest
	}
	candidate := line[:64]
	if !isHex(candidate) {
		return "", "", errNoDigest
	}
	rest := strings.TrimLeft(line[64:], " \t")
	rest = strings.TrimPrefix(rest, "*")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", "", fmt.Errorf("missing filename after digest")
	}
	return candidate, rest, nil
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// Lookup returns the digest for name, or an error kinded
// errkind.ChecksumMissing when no entry exists.
func (m Manifest) Lookup(name string) (string, error) {
	digest, ok := m[name]
	if !ok {
		return "", errkind.New(errkind.ChecksumMissing, name)
	}
	return digest, nil
}

// Verify streams file, computes its SHA-256 digest, and compares it
// case-insensitively against expectedHex. It returns
// errkind.ChecksumMismatch on any difference.
func Verify(file string, expectedHex string) error {
	f, err := os.Open(file)
	if err != nil {
		return errkind.Wrap(errkind.ChecksumMismatch, "open file for verification", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return errkind.Wrap(errkind.ChecksumMismatch, "read file for verification", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	expected := strings.ToLower(strings.TrimSpace(expectedHex))
	if actual != expected {
		return errkind.New(errkind.ChecksumMismatch, fmt.Sprintf("expected %s, got %s for %s", expected, actual, file))
	}
	return nil
}
