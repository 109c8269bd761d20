// Package downloader fetches a release asset to a temporary file with
// bounded, exponential-backoff retries.
//
// Grounded on the GitHub HTTP-request construction (bearer auth,
// custom Accept header, context-bound client) in the teacher's
// internal/updater/updater.go (Check), generalized here from a small
// JSON GET into a streamed, retried, temp-file-backed binary fetch.
// The retry loop itself uses github.com/sethvargo/go-retry, adopted
// from the rest of the retrieval pack rather than a hand-rolled
// backoff, since the teacher's own HTTP calls are single-shot.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// DefaultAttempts is the bounded retry budget for a single fetch.
const DefaultAttempts = 3

// TempFile is a handle to a downloaded file staged inside the
// caller's out_dir. Release deletes the file unless Consume was
// called first.
type TempFile struct {
	Path     string
	consumed bool
}

// Consume marks the file as owned by the caller from this point on;
// a later Release becomes a no-op.
func (t *TempFile) Consume() string {
	t.consumed = true
	return t.Path
}

// Release deletes the temp file unless it has been consumed.
func (t *TempFile) Release() {
	if t == nil || t.consumed {
		return
	}
	os.Remove(t.Path)
}

// Downloader fetches asset URLs over HTTP with bounded retries.
type Downloader struct {
	HTTP     *http.Client
	Attempts uint64
}

// New returns a Downloader with a 60-second per-attempt timeout and
// the default retry budget.
func New() *Downloader {
	return &Downloader{HTTP: &http.Client{Timeout: 60 * time.Second}, Attempts: DefaultAttempts}
}

// Fetch performs a GET against assetURL, streaming the response body
// into a new file inside outDir. Transient network errors and 5xx
// responses are retried with exponential backoff up to d.Attempts
// total tries; 4xx responses fail immediately without retry. Each
// attempt restarts the download from scratch — there is no partial
// resume.
func (d *Downloader) Fetch(ctx context.Context, assetURL, token, outDir string) (*TempFile, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, errkind.Wrap(errkind.Network, "create download directory", err)
	}

	attempts := d.Attempts
	if attempts == 0 {
		attempts = DefaultAttempts
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.NewExponential(500*time.Millisecond))

	var result *TempFile
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tmp, attemptErr := d.attempt(ctx, assetURL, token, outDir)
		if attemptErr == nil {
			result = tmp
			return nil
		}
		if isRetryable(attemptErr) {
			return retry.RetryableError(attemptErr)
		}
		return attemptErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Downloader) attempt(ctx context.Context, assetURL, token, outDir string) (*TempFile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, "build download request", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return nil, transientErr(errkind.Wrap(errkind.Network, "fetch asset", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, transientErr(errkind.New(errkind.Network, fmt.Sprintf("server error %d", resp.StatusCode)))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, errkind.New(errkind.Auth, fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errkind.New(errkind.NotFound, assetURL)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errkind.New(errkind.Network, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	path := filepath.Join(outDir, "download."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, "create temp download file", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return nil, transientErr(errkind.Wrap(errkind.Network, "write download body", err))
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(path)
		return nil, errkind.Wrap(errkind.Network, "fsync download file", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return nil, errkind.Wrap(errkind.Network, "close download file", err)
	}

	return &TempFile{Path: path}, nil
}

// retryableMark distinguishes a network-layer failure worth retrying
// from a definitive rejection (auth, not-found, malformed).
type retryableMark struct{ err error }

func (r *retryableMark) Error() string { return r.err.Error() }
func (r *retryableMark) Unwrap() error { return r.err }

func transientErr(err error) error {
	return &retryableMark{err: err}
}

func isRetryable(err error) bool {
	_, ok := err.(*retryableMark)
	return ok
}
