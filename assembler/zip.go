// Package assembler implements ResultAssembler: zip packaging of a task's
// staged files and upload to a blob store, a work server, or both, with
// pub/sub retry and completion signaling.
package assembler

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/wptagent/agent/iox"
)

// BuildResultZip walks workDir and writes every regular file it contains
// into outputPath as a stored (uncompressed) zip archive, entries ordered
// by sorted relative path so the archive is deterministic given the same
// file set.
func BuildResultZip(workDir, outputPath string) error {
	paths, err := sortedFileList(workDir)
	if err != nil {
		return fmt.Errorf("assembler: list %s: %w", workDir, err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("assembler: create %s: %w", outputPath, err)
	}
	defer iox.DiscardClose(out)

	zw := zip.NewWriter(out)
	for _, rel := range paths {
		if err := appendStoredFile(zw, workDir, rel); err != nil {
			iox.DiscardClose(zw)
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("assembler: close zip writer: %w", err)
	}
	return nil
}

func appendStoredFile(zw *zip.Writer, workDir, rel string) error {
	f, err := os.Open(filepath.Join(workDir, rel))
	if err != nil {
		return fmt.Errorf("assembler: open %s: %w", rel, err)
	}
	defer iox.DiscardClose(f)

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("assembler: stat %s: %w", rel, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("assembler: header for %s: %w", rel, err)
	}
	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Store

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("assembler: create entry %s: %w", rel, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("assembler: write entry %s: %w", rel, err)
	}
	return nil
}

// sortedFileList returns every regular file under root, as slash-relative
// paths, in lexical sort order.
func sortedFileList(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
