// Package h5archive stores the extracted arrays as datasets of an HDF5
// file, one chunked and deflated uint16 dataset per array.
package h5archive

import (
	"errors"
	"fmt"
	"os"
	"slices"

	hdf5 "github.com/jmbenlloch/go-hdf5"

	extractor "github.com/nsdf-fabric/mid_extract/pkg"
)

// ErrReplaceUnsupported is returned when an existing dataset would have to
// change shape. HDF5 datasets cannot be unlinked through the bindings, so
// only same-shape datasets are overwritten in place.
var ErrReplaceUnsupported = errors.New("h5archive: dataset exists with a different shape")

type Writer struct {
	file  *hdf5.File
	mode  extractor.ArchiveMode
	level int
}

// Open creates the file at path, or with extractor.ModeAppend reopens it
// when it already exists.
func Open(path string, mode extractor.ArchiveMode, level int) (*Writer, error) {
	var file *hdf5.File
	var err error
	_, statErr := os.Stat(path)
	if mode == extractor.ModeAppend && statErr == nil {
		file, err = hdf5.OpenFile(path, hdf5.F_ACC_RDWR)
	} else {
		file, err = hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	}
	if err != nil {
		return nil, &extractor.ErrOpenFile{Filename: path, Err: err}
	}
	return &Writer{file: file, mode: mode, level: level}, nil
}

// Opener adapts Open to extractor.ArchiveOpener.
func Opener(level int) extractor.ArchiveOpener {
	return func(path string, mode extractor.ArchiveMode) (extractor.ArrayWriter, error) {
		return Open(path, mode, level)
	}
}

// AppendArray writes data as dataset name. In append mode a dataset of the
// same name and shape is overwritten.
func (w *Writer) AppendArray(name string, data []uint16, shape []int) error {
	dims := make([]uint, len(shape))
	size := 1
	for i, d := range shape {
		dims[i] = uint(d)
		size *= d
	}
	if size != len(data) {
		return fmt.Errorf("h5archive: shape %v needs %d values, got %d", shape, size, len(data))
	}
	if w.file.LinkExists(name) {
		if w.mode != extractor.ModeAppend {
			return fmt.Errorf("h5archive: dataset %q already exists", name)
		}
		return w.replace(name, data, dims)
	}

	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return err
	}
	defer space.Close()

	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return err
	}
	defer plist.Close()
	if size > 0 {
		if err := plist.SetChunk(dims); err != nil {
			return err
		}
		if err := plist.SetDeflate(w.level); err != nil {
			return err
		}
	}

	dataset, err := w.file.CreateDatasetWith(name, hdf5.T_NATIVE_UINT16, space, plist)
	if err != nil {
		return err
	}
	err = dataset.Write(&data)
	return errors.Join(err, dataset.Close())
}

func (w *Writer) replace(name string, data []uint16, dims []uint) error {
	dataset, err := w.file.OpenDataset(name)
	if err != nil {
		return err
	}
	defer dataset.Close()

	space := dataset.Space()
	existing, _, err := space.SimpleExtentDims()
	space.Close()
	if err != nil {
		return err
	}
	if !slices.Equal(existing, dims) {
		return fmt.Errorf("%w: %q is %v, new data is %v", ErrReplaceUnsupported, name, existing, dims)
	}
	return dataset.Write(&data)
}

func (w *Writer) Close() error {
	return w.file.Close()
}
