package blobstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	logx "linkwatch/pkg/logx"
)

func TestDownloadWritesFile(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tkn" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte("db-bytes"))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "state.db")
	c := New(Config{ObjectURL: srv.URL, Token: "tkn"}, logx.Nop())
	if err := c.Download(context.Background(), path); err != nil {
		t.Fatalf("Download: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "db-bytes" {
		t.Fatalf("downloaded %q", data)
	}
}

func TestDownloadMissingObjectIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "state.db")
	c := New(Config{ObjectURL: srv.URL}, logx.Nop())
	if err := c.Download(context.Background(), path); err != nil {
		t.Fatalf("missing object must start fresh, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("no file should be created for a missing object")
	}
}

func TestDownloadServerErrorFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{ObjectURL: srv.URL}, logx.Nop())
	if err := c.Download(context.Background(), filepath.Join(t.TempDir(), "state.db")); err == nil {
		t.Fatal("want error on 500")
	}
}

func TestUploadSendsFile(t *testing.T) {
	t.Parallel()

	var gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "state.db")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(Config{ObjectURL: srv.URL}, logx.Nop())
	if err := c.Upload(context.Background(), path); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if gotMethod != http.MethodPut || string(gotBody) != "payload" {
		t.Fatalf("got %s %q", gotMethod, gotBody)
	}
}

func TestUploadMissingLocalFileFails(t *testing.T) {
	t.Parallel()

	c := New(Config{ObjectURL: "http://unused.invalid"}, logx.Nop())
	if err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "absent.db")); err == nil {
		t.Fatal("want error when local state file is missing")
	}
}
