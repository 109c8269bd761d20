// Package extract unpacks a downloaded release asset into a staging
// directory, sandboxing every entry against path traversal and symlink
// escape and enforcing the resource caps in Limits.
//
// Grounded on the tar-entry validation loop in the teacher's
// internal/apps/napp.go (ExtractNapp): the traversal/absolute-path
// rejection, the streamed copy-with-limit, and the per-entry allowlist
// idiom are generalized here from a fixed manifest/binary/ui layout to
// an arbitrary release archive, and the single gzip.NewReader is
// generalized into multi-format detection (gzip, bzip2, xz, zstd, zip,
// or a bare single-file binary).
package extract

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// Result summarizes a completed extraction.
type Result struct {
	// EntryCount is the number of regular files and symlinks
	// materialized; directories are not counted.
	EntryCount int
	// UncompressedBytes is the total number of bytes written to disk.
	UncompressedBytes int64
	// SingleBinary is true when the archive was a bare compressed or
	// uncompressed binary rather than a tar or zip container.
	SingleBinary bool
	// BinaryPath is set when SingleBinary is true.
	BinaryPath string
}

var (
	magicGzip = []byte{0x1f, 0x8b}
	magicBzip = []byte("BZh")
	magicXz   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicZip  = []byte("PK\x03\x04")
)

// Unpack extracts archivePath into destDir, which must already exist
// and be empty. assetName is the release asset's declared filename,
// used to name the output file when the archive turns out to be a
// bare single binary rather than a container format.
func Unpack(archivePath, destDir, assetName string, limits Limits) (*Result, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, errkind.Wrap(errkind.CorruptArchive, "open archive", err)
	}
	defer f.Close()

	head := make([]byte, 4)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errkind.Wrap(errkind.CorruptArchive, "seek archive", err)
	}

	if bytes.HasPrefix(head, magicZip) {
		res, err := unpackZip(archivePath, destDir, limits)
		if err != nil {
			return nil, err
		}
		if err := stripTopLevel(destDir); err != nil {
			return nil, err
		}
		return res, nil
	}

	br := bufio.NewReaderSize(f, 64*1024)
	b := newBudget(limits)

	decoded, closer, err := decompressLayer(br, b)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer()
	}

	tarReader := bufio.NewReaderSize(decoded, 64*1024)
	if looksLikeTar(tarReader) {
		res, err := unpackTar(tarReader, destDir, b)
		if err != nil {
			return nil, err
		}
		if err := stripTopLevel(destDir); err != nil {
			return nil, err
		}
		return res, nil
	}

	binPath, err := unpackSingleBinary(tarReader, destDir, assetName, b)
	if err != nil {
		return nil, err
	}
	return &Result{EntryCount: 1, UncompressedBytes: b.Total(), SingleBinary: true, BinaryPath: binPath}, nil
}

// decompressLayer detects and strips at most one compression layer
// from br, returning a reader over the decompressed (or, if no known
// magic matched, the original) stream. The returned closer, if
// non-nil, must be called after the returned reader is fully drained.
func decompressLayer(br *bufio.Reader, b *budget) (io.Reader, func(), error) {
	head, _ := br.Peek(6)

	counted := io.Reader(&countingReader{r: br, b: b})

	switch {
	case bytes.HasPrefix(head, magicGzip):
		gz, err := gzip.NewReader(counted)
		if err != nil {
			return nil, nil, errkind.Wrap(errkind.CorruptArchive, "open gzip stream", err)
		}
		return gz, func() { gz.Close() }, nil
	case bytes.HasPrefix(head, magicBzip):
		return bzip2.NewReader(counted), nil, nil
	case bytes.HasPrefix(head, magicXz):
		xr, err := xz.NewReader(counted)
		if err != nil {
			return nil, nil, errkind.Wrap(errkind.CorruptArchive, "open xz stream", err)
		}
		return xr, nil, nil
	case bytes.HasPrefix(head, magicZstd):
		zr, err := zstd.NewReader(counted)
		if err != nil {
			return nil, nil, errkind.Wrap(errkind.CorruptArchive, "open zstd stream", err)
		}
		return zr, func() { zr.Close() }, nil
	default:
		return counted, nil, nil
	}
}

// looksLikeTar peeks far enough into r to inspect the "ustar" magic at
// tar-header offset 257 without consuming any bytes, so the same
// reader can be handed to tar.NewReader afterward if it matches.
func looksLikeTar(r *bufio.Reader) bool {
	buf, _ := r.Peek(263)
	if len(buf) < 263 {
		return false
	}
	return bytes.HasPrefix(buf[257:], []byte("ustar"))
}

func unpackTar(r io.Reader, destDir string, b *budget) (*Result, error) {
	tr := tar.NewReader(r)
	res := &Result{}

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errkind.Wrap(errkind.CorruptArchive, "read tar entry", err)
		}
		if err := b.addEntry(); err != nil {
			return nil, err
		}

		rel, err := validateEntryPath(header.Name)
		if err != nil {
			return nil, err
		}
		target, err := safeJoin(destDir, rel)
		if err != nil {
			return nil, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, errkind.Wrap(errkind.CorruptArchive, "create directory", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, errkind.Wrap(errkind.CorruptArchive, "create parent directory", err)
			}
			mode := os.FileMode(header.Mode & 0o777)
			if mode == 0 {
				mode = 0o644
			}
			if err := writeEntry(tr, target, mode, header.Size, b); err != nil {
				return nil, err
			}
			res.EntryCount++
		case tar.TypeSymlink:
			if err := validateSymlinkTarget(destDir, rel, header.Linkname); err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, errkind.Wrap(errkind.CorruptArchive, "create parent directory", err)
			}
			os.Remove(target)
			if err := os.Symlink(header.Linkname, target); err != nil {
				return nil, errkind.Wrap(errkind.Symlink, "create symlink", err)
			}
			res.EntryCount++
		case tar.TypeLink:
			return nil, errkind.New(errkind.Symlink, fmt.Sprintf("hard link not allowed: %s", header.Name))
		default:
			// character/block devices, FIFOs, sockets: skip silently, they
			// have no legitimate place in a release archive.
			continue
		}
	}
	res.UncompressedBytes = b.Total()
	return res, nil
}

func unpackZip(archivePath, destDir string, limits Limits) (*Result, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errkind.Wrap(errkind.CorruptArchive, "open zip archive", err)
	}
	defer zr.Close()

	b := newBudget(limits)
	res := &Result{}

	for _, entry := range zr.File {
		if err := b.addEntry(); err != nil {
			return nil, err
		}

		rel, err := validateEntryPath(entry.Name)
		if err != nil {
			return nil, err
		}
		target, err := safeJoin(destDir, rel)
		if err != nil {
			return nil, err
		}

		mode := entry.Mode()
		if mode&os.ModeSymlink != 0 {
			rc, err := entry.Open()
			if err != nil {
				return nil, errkind.Wrap(errkind.CorruptArchive, "open zip symlink entry", err)
			}
			linkTarget, err := io.ReadAll(io.LimitReader(rc, 4096))
			rc.Close()
			if err != nil {
				return nil, errkind.Wrap(errkind.CorruptArchive, "read zip symlink target", err)
			}
			if err := validateSymlinkTarget(destDir, rel, string(linkTarget)); err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, errkind.Wrap(errkind.CorruptArchive, "create parent directory", err)
			}
			os.Remove(target)
			if err := os.Symlink(string(linkTarget), target); err != nil {
				return nil, errkind.Wrap(errkind.Symlink, "create symlink", err)
			}
			res.EntryCount++
			continue
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, errkind.Wrap(errkind.CorruptArchive, "create directory", err)
			}
			continue
		}

		if !mode.IsRegular() {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, errkind.Wrap(errkind.CorruptArchive, "create parent directory", err)
		}
		perm := mode.Perm()
		if perm == 0 {
			perm = 0o644
		}

		rc, err := entry.Open()
		if err != nil {
			return nil, errkind.Wrap(errkind.CorruptArchive, "open zip entry", err)
		}
		b.addCompressed(int64(entry.CompressedSize64))
		err = writeEntry(rc, target, perm, int64(entry.UncompressedSize64), b)
		rc.Close()
		if err != nil {
			return nil, err
		}
		res.EntryCount++
	}
	res.UncompressedBytes = b.Total()
	return res, nil
}

// writeEntry copies src into target, enforcing the per-entry and
// total uncompressed-size caps (and, transitively via the budget's
// compressed counter, the decompression-ratio cap) while it streams.
func writeEntry(src io.Reader, target string, perm os.FileMode, declaredSize int64, b *budget) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errkind.Wrap(errkind.CorruptArchive, "create file", err)
	}

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			written += int64(n)
			if err := b.addUncompressed(written, int64(n)); err != nil {
				out.Close()
				os.Remove(target)
				return err
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(target)
				return errkind.Wrap(errkind.CorruptArchive, "write file", werr)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			os.Remove(target)
			return errkind.Wrap(errkind.CorruptArchive, "read entry", rerr)
		}
	}
	return out.Close()
}

// unpackSingleBinary treats the entire decompressed stream as one
// executable file, named after the release asset with any compression
// suffix stripped.
func unpackSingleBinary(r io.Reader, destDir, assetName string, b *budget) (string, error) {
	name := stripCompressionSuffix(filepath.Base(assetName))
	if name == "" {
		name = "binary"
	}
	target := filepath.Join(destDir, name)

	if err := b.addEntry(); err != nil {
		return "", err
	}
	if err := writeEntry(r, target, 0o755, 0, b); err != nil {
		return "", err
	}
	return target, nil
}

func stripCompressionSuffix(name string) string {
	for _, suffix := range []string{".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".tar.zst", ".gz", ".bz2", ".xz", ".zst"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// stripTopLevel implements the post-pass of spec §4.5: when an
// archive unpacks to exactly one top-level entry and that entry is a
// directory, its contents are moved up into destDir and the now-empty
// wrapper directory is removed.
func stripTopLevel(destDir string) error {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return errkind.Wrap(errkind.CorruptArchive, "list extracted contents", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return nil
	}

	wrapper := filepath.Join(destDir, entries[0].Name())
	children, err := os.ReadDir(wrapper)
	if err != nil {
		return errkind.Wrap(errkind.CorruptArchive, "list wrapper directory", err)
	}
	for _, child := range children {
		from := filepath.Join(wrapper, child.Name())
		to := filepath.Join(destDir, child.Name())
		if err := os.Rename(from, to); err != nil {
			return errkind.Wrap(errkind.CorruptArchive, "promote stripped entry", err)
		}
	}
	if err := os.Remove(wrapper); err != nil {
		return errkind.Wrap(errkind.CorruptArchive, "remove wrapper directory", err)
	}
	return nil
}
