//go:build !integration

package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"docbatch/internal/config"
	"docbatch/internal/domain"
	"docbatch/internal/domain/ports/adapter"
)

// fakeS3 serves path-style PUT/GET/DELETE for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/uploads-bucket/")
	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objects[key] = b
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(b)))
		_, _ = w.Write(b)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func exerciseStore(t *testing.T, st adapter.ObjectStore) {
	ctx := context.Background()
	data := []byte("%PDF-1.7 hello")

	// --- Put / Get ---
	if err := st.Put(ctx, "uploads/job/file/a.pdf", bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := st.Get(ctx, "uploads/job/file/a.pdf")
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Get returned %q / %v", got, err)
	}

	// --- Open ---
	rc, size, err := st.Open(ctx, "uploads/job/file/a.pdf")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	streamed, _ := io.ReadAll(rc)
	_ = rc.Close()
	if size != int64(len(data)) || !bytes.Equal(streamed, data) {
		t.Errorf("Open returned size %d and %q", size, streamed)
	}

	// --- Delete ---
	if err := st.Delete(ctx, "uploads/job/file/a.pdf"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := st.Get(ctx, "uploads/job/file/a.pdf"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestFSStore(t *testing.T) {
	t.Run("should put, read and delete objects", func(t *testing.T) {
		st, err := NewFSStore(t.TempDir())
		if err != nil {
			t.Fatalf("NewFSStore failed: %v", err)
		}
		exerciseStore(t, st)
	})

	t.Run("should keep traversal keys inside the root", func(t *testing.T) {
		root := t.TempDir()
		st, _ := NewFSStore(root)

		if err := st.Put(context.Background(), "../../escape.txt", strings.NewReader("x"), 1, "text/plain"); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if _, err := st.Get(context.Background(), "escape.txt"); err != nil {
			t.Errorf("expected the object to land under the root, got %v", err)
		}
	})

	t.Run("should reject an empty key", func(t *testing.T) {
		st, _ := NewFSStore(t.TempDir())
		if _, err := st.Get(context.Background(), ""); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestS3Store(t *testing.T) {
	t.Run("should round-trip objects through an S3-compatible endpoint", func(t *testing.T) {
		srv := httptest.NewServer(&fakeS3{objects: map[string][]byte{}})
		defer srv.Close()

		st, err := New(context.Background(), &config.StorageConfig{
			Backend: "s3", Bucket: "uploads-bucket", Region: "us-east-1",
			Endpoint: srv.URL, AccessKey: "test", SecretKey: "test",
		})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		exerciseStore(t, st)
	})

	t.Run("should require a bucket", func(t *testing.T) {
		_, err := NewS3Store(context.Background(), &config.StorageConfig{Region: "us-east-1"})
		if err == nil {
			t.Fatal("expected an error without a bucket")
		}
	})
}

func TestNew(t *testing.T) {
	t.Run("should reject an unknown backend", func(t *testing.T) {
		if _, err := New(context.Background(), &config.StorageConfig{Backend: "ftp"}); err == nil {
			t.Fatal("expected an error")
		}
	})
}
