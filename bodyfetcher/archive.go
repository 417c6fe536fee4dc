package bodyfetcher

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
)

// Archive appends successful body fetches to a {prefix}_bodies.zip file,
// numbering entries NNN-{request_id}-body.txt with NNN seeded from
// however many entries the archive already holds, so repeated calls
// across tasks sharing a prefix never collide.
type Archive struct {
	path string
}

// NewArchive returns an Archive writing to path (typically
// "{prefix}_bodies.zip" in the task's working directory).
func NewArchive(path string) *Archive {
	return &Archive{path: path}
}

// AppendResults writes every successful result (Err == nil) as one zip
// entry, skipping failures; callers log failures separately. Entries are
// written in the order given, numbered starting from the archive's
// current entry count.
func (a *Archive) AppendResults(results []Result) error {
	successes := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			successes = append(successes, r)
		}
	}
	if len(successes) == 0 {
		return nil
	}

	existing, err := readExistingEntries(a.path)
	if err != nil {
		return err
	}
	next := len(existing)

	f, err := os.Create(a.path)
	if err != nil {
		return fmt.Errorf("bodyfetcher: create %s: %w", a.path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, entry := range existing {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: entry.name, Method: zip.Store})
		if err != nil {
			return fmt.Errorf("bodyfetcher: rewrite archive entry %s: %w", entry.name, err)
		}
		if _, err := w.Write(entry.data); err != nil {
			return fmt.Errorf("bodyfetcher: rewrite archive entry %s: %w", entry.name, err)
		}
	}

	for i, r := range successes {
		name := fmt.Sprintf("%03d-%s-body.txt", next+i, r.RequestID)
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			return fmt.Errorf("bodyfetcher: create archive entry %s: %w", name, err)
		}
		if _, err := w.Write(r.Data); err != nil {
			return fmt.Errorf("bodyfetcher: write archive entry %s: %w", name, err)
		}
	}

	return zw.Close()
}

type archiveEntry struct {
	name string
	data []byte
}

// readExistingEntries reads every entry out of an existing archive at
// path, or returns an empty slice if the archive doesn't exist yet.
func readExistingEntries(path string) ([]archiveEntry, error) {
	r, err := zip.OpenReader(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bodyfetcher: open %s: %w", path, err)
	}
	defer r.Close()

	entries := make([]archiveEntry, 0, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("bodyfetcher: read archive entry %s: %w", f.Name, err)
		}
		data := make([]byte, f.UncompressedSize64)
		if _, err := io.ReadFull(rc, data); err != nil {
			rc.Close()
			return nil, fmt.Errorf("bodyfetcher: read archive entry %s: %w", f.Name, err)
		}
		rc.Close()
		entries = append(entries, archiveEntry{name: f.Name, data: data})
	}
	return entries, nil
}
