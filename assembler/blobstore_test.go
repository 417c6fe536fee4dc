package assembler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFilesystemBlobStore_PutWritesFileUnderRoot(t *testing.T) {
	root := t.TempDir()
	store := NewFilesystemBlobStore(root)

	key := BlobKey("results/2026-07-30", "20260730_ABCDEF")
	if err := store.Put(context.Background(), key, []byte("zip bytes"), "application/zip"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "results", "2026-07-30", "20260730_ABCDEF.zip"))
	if err != nil {
		t.Fatalf("read written file: %v", err)
	}
	if string(data) != "zip bytes" {
		t.Errorf("got %q", string(data))
	}
}

func TestBlobKey_TrimsSlashes(t *testing.T) {
	got := BlobKey("/results/2026-07-30/", "test-1")
	want := "results/2026-07-30/test-1.zip"
	if got != want {
		t.Errorf("BlobKey = %q, want %q", got, want)
	}
}

func TestS3Config_ValidateRequiresBucket(t *testing.T) {
	var cfg S3Config
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}
