package npz

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

type Mode string

const (
	// ModeWrite truncates an existing archive.
	ModeWrite Mode = "w"
	// ModeAppend keeps the entries of an existing archive. Entries written
	// again under the same name replace the old ones.
	ModeAppend Mode = "a"
)

const npyExt = ".npy"

// Writer appends arrays to one archive. It is not safe for concurrent use.
type Writer struct {
	path    string
	tmpPath string
	file    *os.File
	zw      *zip.Writer
	written map[string]bool
	// entries of the archive being appended to, copied on Close
	existing *zip.ReadCloser
}

// Create truncates or creates the archive at path.
func Create(path string, level int) (*Writer, error) {
	return Open(path, ModeWrite, level)
}

// Open opens the archive at path for writing. level is the deflate level,
// from 0 (store) to 9.
func Open(path string, mode Mode, level int) (*Writer, error) {
	if level < flate.NoCompression || level > flate.BestCompression {
		return nil, fmt.Errorf("npz: invalid compression level %d", level)
	}
	w := &Writer{path: path, written: make(map[string]bool)}

	target := path
	if mode == ModeAppend {
		if _, err := os.Stat(path); err == nil {
			existing, err := zip.OpenReader(path)
			if err != nil {
				return nil, fmt.Errorf("npz: opening %q for append: %w", path, err)
			}
			w.existing = existing
			w.tmpPath = path + ".tmp"
			target = w.tmpPath
		}
	} else if mode != ModeWrite {
		return nil, fmt.Errorf("npz: unknown mode %q", mode)
	}

	file, err := os.Create(target)
	if err != nil {
		if w.existing != nil {
			w.existing.Close()
		}
		return nil, err
	}
	w.file = file
	w.zw = zip.NewWriter(file)
	w.zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return w, nil
}

// AppendArray stores data with the given row-major shape as name.npy.
func (w *Writer) AppendArray(name string, data []uint16, shape []int) error {
	if n := shapeSize(shape); n != len(data) {
		return fmt.Errorf("npz: shape %v needs %d values, got %d", shape, n, len(data))
	}
	if w.written[name] {
		return fmt.Errorf("npz: entry %q already written", name)
	}

	header := &zip.FileHeader{
		Name:     name + npyExt,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	member, err := w.zw.CreateHeader(header)
	if err != nil {
		return err
	}
	if err := writeNpy(member, data, shape); err != nil {
		return err
	}
	w.written[name] = true
	return nil
}

// Close copies the preserved entries of an appended archive, finishes the
// zip directory and moves the result into place.
func (w *Writer) Close() error {
	var errs []error
	if w.existing != nil {
		for _, f := range w.existing.File {
			if w.written[strings.TrimSuffix(f.Name, npyExt)] {
				continue
			}
			if err := w.zw.Copy(f); err != nil {
				errs = append(errs, fmt.Errorf("npz: copying %q: %w", f.Name, err))
				break
			}
		}
		if err := w.existing.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := w.zw.Close(); err != nil {
		errs = append(errs, fmt.Errorf("npz: finishing archive: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, err)
	}

	if w.tmpPath != "" {
		if len(errs) > 0 {
			os.Remove(w.tmpPath)
		} else if err := os.Rename(w.tmpPath, w.path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
