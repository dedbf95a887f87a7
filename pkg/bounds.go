package extractor

import (
	"bufio"
	"fmt"
	"os"
)

// BoundsEntry is one archive entry and the number of rows it holds.
type BoundsEntry struct {
	Name string
	Rows int
}

// WriteBounds writes "name lo hi" per entry, where [lo, hi) are the rows
// the entry occupies once all entries are concatenated in write order.
func WriteBounds(filename string, entries []BoundsEntry) error {
	file, err := os.Create(filename)
	if err != nil {
		return &ErrOpenFile{Filename: filename, Err: err}
	}
	w := bufio.NewWriter(file)
	lo := 0
	for _, entry := range entries {
		hi := lo + entry.Rows
		if _, err := fmt.Fprintf(w, "%s %d %d\n", entry.Name, lo, hi); err != nil {
			file.Close()
			return fmt.Errorf("error writing bounds file %q: %w", filename, err)
		}
		lo = hi
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("error writing bounds file %q: %w", filename, err)
	}
	return file.Close()
}
