package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteAndResolve(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	key, err := store.Write(context.Background(), "requests/req-1/candidate-1.jpg", []byte("data"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "requests/req-1/candidate-1.jpg" {
		t.Fatalf("key = %q", key)
	}

	path, err := store.FilePath(key)
	if err != nil {
		t.Fatalf("file path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "data" {
		t.Fatalf("stored data = %q, err %v", data, err)
	}

	if got := store.PublicURL(key); got != "http://localhost:8080/static/requests/req-1/candidate-1.jpg" {
		t.Fatalf("public url = %q", got)
	}
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost/static")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for _, key := range []string{"../escape.txt", "a/../../escape.txt", "", "   "} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("key %q was accepted", key)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.txt")); err == nil {
		t.Fatalf("traversal escaped the storage root")
	}
}

func TestFileStoreWriteFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost/static")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	src := filepath.Join(t.TempDir(), "src.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	key, err := store.WriteFile(context.Background(), "copies/src.bin", src)
	if err != nil {
		t.Fatalf("write file: %v", err)
	}
	path, _ := store.FilePath(key)
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "payload" {
		t.Fatalf("copied data = %q, err %v", data, err)
	}
}
