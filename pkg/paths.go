package extractor

import (
	"path/filepath"
	"strings"
)

// BaseName is the file stem of an input path cut at the first ".mid",
// so "07180808_1558_F0001.mid.gz" becomes "07180808_1558_F0001".
func BaseName(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(stem, ".mid"); i >= 0 {
		stem = stem[:i]
	}
	return stem
}

func (c Configuration) ArchivePath(input string) string {
	ext := ".npz"
	if c.ArchiveFormat == FormatHdf5 {
		ext = ".h5"
	}
	return filepath.Join(c.ArchiveDir, BaseName(input)+ext)
}

func (c Configuration) MetadataPath(input string) string {
	return filepath.Join(c.MetadataDir, BaseName(input)+".csv")
}

func (c Configuration) BoundsPath(input string) string {
	return filepath.Join(c.ArchiveDir, BaseName(input)+".txt")
}
