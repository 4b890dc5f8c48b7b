package syncer

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/klauspost/compress/zip"
)

// ExtractNatives copies the entries of a native archive whose names end in ext
// into the root of dst, and returns the names it wrote. Directory structure
// inside the archive is flattened. Entries already present in dst are
// skipped.
func ExtractNatives(archive string, dst billy.Filesystem, ext string) ([]string, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", archive, ErrArchiveCorrupt, err)
	}
	defer r.Close()

	var written []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ext) {
			continue
		}
		name := path.Base(f.Name)
		if name == "." || name == "/" || name == ".." {
			continue
		}
		if _, err := dst.Stat(name); err == nil {
			continue
		}
		if err := extractEntry(f, dst, name); err != nil {
			return written, fmt.Errorf("%s: %s: %w: %v", archive, f.Name, ErrArchiveCorrupt, err)
		}
		written = append(written, name)
	}
	return written, nil
}

func extractEntry(f *zip.File, dst billy.Filesystem, name string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp, err := dst.TempFile("", ".native-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		dst.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		dst.Remove(tmpName)
		return err
	}
	return dst.Rename(tmpName, name)
}
