package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/toolchain-dist/tooldist/internal/downloadcache"
)

func TestHTTPFetcher_FullDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(ClientOptions{})
	stream, supportsRange, err := f.Fetch(context.Background(), srv.URL, 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer stream.Close()
	if supportsRange {
		t.Error("expected supportsRange=false for a plain 200 response")
	}
	data, _ := io.ReadAll(stream)
	if string(data) != "hello world" {
		t.Errorf("got %q", data)
	}
}

func TestHTTPFetcher_ResumeWithRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("world"))
			return
		}
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(ClientOptions{})
	stream, supportsRange, err := f.Fetch(context.Background(), srv.URL, 6)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer stream.Close()
	if !supportsRange {
		t.Error("expected supportsRange=true for a 206 response")
	}
	data, _ := io.ReadAll(stream)
	if string(data) != "world" {
		t.Errorf("got %q", data)
	}
}

func TestHTTPFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(ClientOptions{})
	_, _, err := f.Fetch(context.Background(), srv.URL, 0)

	var notExists *downloadcache.DownloadNotExistsError
	if !errors.As(err, &notExists) {
		t.Fatalf("expected DownloadNotExistsError, got %v", err)
	}
}

func TestHTTPFetcher_RangeNotSatisfiable_RestartsFromZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		w.Write([]byte("fresh content"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(ClientOptions{})
	stream, supportsRange, err := f.Fetch(context.Background(), srv.URL, 9999)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer stream.Close()
	if supportsRange {
		t.Error("expected supportsRange=false after falling back to a full fetch")
	}
	data, _ := io.ReadAll(stream)
	if string(data) != "fresh content" {
		t.Errorf("got %q", data)
	}
}
