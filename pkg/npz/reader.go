package npz

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Entry is one named array of an archive.
type Entry struct {
	Name  string
	Array Array
}

// ReadFile loads every array of the archive at path, in archive order.
func ReadFile(path string) ([]Entry, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	entries := make([]Entry, 0, len(archive.File))
	for _, f := range archive.File {
		if !strings.HasSuffix(f.Name, npyExt) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("npz: opening %q: %w", f.Name, err)
		}
		array, err := readNpy(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("npz: reading %q: %w", f.Name, err)
		}
		entries = append(entries, Entry{Name: strings.TrimSuffix(f.Name, npyExt), Array: array})
	}
	return entries, nil
}
