package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

func TestFetchSucceedsOnFirstTry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("release-bytes"))
	}))
	defer srv.Close()

	d := New()
	d.HTTP = srv.Client()

	tmp, err := d.Fetch(context.Background(), srv.URL, "", t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer tmp.Release()

	data, err := os.ReadFile(tmp.Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "release-bytes" {
		t.Errorf("got %q", data)
	}
}

func TestFetchRetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := New()
	d.HTTP = srv.Client()
	d.Attempts = 5

	tmp, err := d.Fetch(context.Background(), srv.URL, "", t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer tmp.Release()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls before success, got %d", got)
	}
}

func TestFetchDoesNotRetryOn404(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d := New()
	d.HTTP = srv.Client()
	d.Attempts = 5

	_, err := d.Fetch(context.Background(), srv.URL, "", t.TempDir())
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable status, got %d", got)
	}
}

func TestFetchExhaustsAttemptsOnPersistent5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := New()
	d.HTTP = srv.Client()
	d.Attempts = 3

	_, err := d.Fetch(context.Background(), srv.URL, "", t.TempDir())
	if err == nil {
		t.Fatal("expected Fetch to fail after exhausting attempts")
	}
}

func TestFetchSetsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	d := New()
	d.HTTP = srv.Client()
	tmp, err := d.Fetch(context.Background(), srv.URL, "tok", t.TempDir())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	tmp.Release()
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestTempFileReleaseNoopAfterConsume(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asset.bin")
	os.WriteFile(path, []byte("x"), 0o644)

	tmp := &TempFile{Path: path}
	consumed := tmp.Consume()
	if consumed != path {
		t.Errorf("Consume() = %q, want %q", consumed, path)
	}
	tmp.Release()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected consumed file to survive Release, got %v", err)
	}
}

func TestTempFileReleaseDeletesUnconsumed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asset.bin")
	os.WriteFile(path, []byte("x"), 0o644)

	tmp := &TempFile{Path: path}
	tmp.Release()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected unconsumed temp file to be removed by Release")
	}
}
