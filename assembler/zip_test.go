package assembler

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildResultZip_StoresFilesUncompressedInSortedOrder(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "b_step1_IEWTR.txt"), "timing")
	writeFile(t, filepath.Join(workDir, "a_step1_image.jpg"), "binary")
	writeFile(t, filepath.Join(workDir, "video", "000001.jpg"), "frame")

	out := filepath.Join(t.TempDir(), "result.zip")
	if err := BuildResultZip(workDir, out); err != nil {
		t.Fatalf("BuildResultZip: %v", err)
	}

	r, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer r.Close()

	if len(r.File) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(r.File))
	}
	for _, f := range r.File {
		if f.Method != zip.Store {
			t.Errorf("entry %s: expected Store method, got %d", f.Name, f.Method)
		}
	}

	want := []string{"a_step1_image.jpg", "b_step1_IEWTR.txt", "video/000001.jpg"}
	for i, name := range want {
		if r.File[i].Name != name {
			t.Errorf("entry %d: expected %s, got %s", i, name, r.File[i].Name)
		}
	}
}

func TestBuildResultZip_EmptyDirProducesEmptyArchive(t *testing.T) {
	workDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "result.zip")
	if err := BuildResultZip(workDir, out); err != nil {
		t.Fatalf("BuildResultZip: %v", err)
	}

	r, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer r.Close()
	if len(r.File) != 0 {
		t.Errorf("expected empty archive, got %d entries", len(r.File))
	}
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
