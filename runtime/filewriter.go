package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileWriter writes a sidecar file referenced by a file_write IPC frame
// (e.g. _devtools_requests.json, _metrics.json) into a task's working
// directory. Shaped after a PutFile(ctx, filename, contentType, data)
// object-store interface, but this domain has no partitioned object
// store behind it, only a task working directory, so the implementation
// below writes straight to disk instead.
type FileWriter interface {
	// PutFile writes filename under the writer's directory. filename must
	// not contain path separators or "..".
	PutFile(ctx context.Context, filename, contentType string, data []byte) error
}

// DiskFileWriter writes sidecar files directly into a task's working
// directory, the destination ArtifactProcessor later reads them from.
type DiskFileWriter struct {
	dir string
}

// NewDiskFileWriter creates a FileWriter rooted at dir. dir must already
// exist (RunController creates the task working directory before driving
// the task).
func NewDiskFileWriter(dir string) *DiskFileWriter {
	return &DiskFileWriter{dir: dir}
}

// PutFile writes data to dir/filename, plus a companion ".meta.json"
// recording contentType, for writers that cannot carry content-type
// natively.
func (w *DiskFileWriter) PutFile(_ context.Context, filename, contentType string, data []byte) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	path := filepath.Join(w.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("filewriter: write %s: %w", path, err)
	}
	if contentType == "" {
		return nil
	}
	meta, err := json.Marshal(struct {
		ContentType string `json:"content_type"`
	}{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("filewriter: marshal metadata for %s: %w", filename, err)
	}
	if err := os.WriteFile(path+".meta.json", meta, 0o644); err != nil {
		return fmt.Errorf("filewriter: write metadata for %s: %w", filename, err)
	}
	return nil
}

func validateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filewriter: empty filename")
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("filewriter: filename %q must not contain path separators", filename)
	}
	if filename == ".." {
		return fmt.Errorf("filewriter: filename must not be %q", filename)
	}
	return nil
}

// StubFileWriter records PutFile calls for testing, without touching disk.
type StubFileWriter struct {
	mu    sync.Mutex
	Files []StubFileRecord
}

// StubFileRecord is one recorded PutFile call.
type StubFileRecord struct {
	Filename    string
	ContentType string
	Data        []byte
}

// NewStubFileWriter creates a StubFileWriter.
func NewStubFileWriter() *StubFileWriter {
	return &StubFileWriter{}
}

// PutFile implements FileWriter by recording the call.
func (w *StubFileWriter) PutFile(_ context.Context, filename, contentType string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Files = append(w.Files, StubFileRecord{Filename: filename, ContentType: contentType, Data: data})
	return nil
}

var (
	_ FileWriter = (*DiskFileWriter)(nil)
	_ FileWriter = (*StubFileWriter)(nil)
)
