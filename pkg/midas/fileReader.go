package midas

import (
	"bufio"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	extractor "github.com/nsdf-fabric/mid_extract/pkg"
)

// Event is one MIDAS event as stored in the file.
type Event struct {
	Header EventHeaderStruct
	Flags  uint32
	Banks  []Bank
	// NonBankData holds the payload of MIDAS internal events (ODB dumps,
	// messages).
	NonBankData []byte
	// Offset of the event header in the uncompressed stream.
	Offset int64
}

// Bank returns the first bank called name.
func (e *Event) Bank(name string) (Bank, bool) {
	for _, b := range e.Banks {
		if b.Name == name {
			return b, true
		}
	}
	return Bank{}, false
}

type FileReader struct {
	r       *bufio.Reader
	closers []io.Closer
	offset  int64
}

// OpenFile opens a MIDAS file, raw or compressed with gzip, lz4, zstd or
// bzip2 as told by the file suffix.
func OpenFile(path string) (*FileReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &extractor.ErrOpenFile{Filename: path, Err: err}
	}

	var r io.Reader = file
	closers := []io.Closer{file}
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, &extractor.ErrOpenFile{Filename: path, Err: err}
		}
		r = gz
		closers = append([]io.Closer{gz}, closers...)
	case strings.HasSuffix(path, ".lz4"):
		r = lz4.NewReader(file)
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(file)
		if err != nil {
			file.Close()
			return nil, &extractor.ErrOpenFile{Filename: path, Err: err}
		}
		rc := dec.IOReadCloser()
		r = rc
		closers = append([]io.Closer{rc}, closers...)
	case strings.HasSuffix(path, ".bz2"):
		r = bzip2.NewReader(file)
	}

	reader := NewReader(r)
	reader.closers = closers
	return reader, nil
}

func NewReader(r io.Reader) *FileReader {
	return &FileReader{r: bufio.NewReaderSize(r, 1<<20)}
}

// NextEvent returns io.EOF at a clean end of stream. Framing problems are
// reported as *extractor.DecodeError; only those with Recoverable set
// leave the reader positioned on the next event.
func (f *FileReader) NextEvent() (*Event, error) {
	offset := f.offset
	headerBinary := make([]byte, EventHeaderSize)
	n, err := io.ReadFull(f.r, headerBinary)
	f.offset += int64(n)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &extractor.DecodeError{Offset: offset, Err: fmt.Errorf("truncated event header: %w", err)}
		}
		return nil, err
	}

	event := &Event{Offset: offset, Header: parseEventHeader(headerBinary)}
	if event.Header.DataSize > MaxEventSize {
		return nil, &extractor.DecodeError{Offset: offset, Err: fmt.Errorf("event size %d too large", event.Header.DataSize)}
	}

	payload := make([]byte, event.Header.DataSize)
	n, err = io.ReadFull(f.r, payload)
	f.offset += int64(n)
	if err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &extractor.DecodeError{Offset: offset, Err: fmt.Errorf("truncated event %d: %w", event.Header.SerialNumber, io.ErrUnexpectedEOF)}
		}
		return nil, err
	}

	if event.Header.IsInternal() {
		event.NonBankData = payload
		return event, nil
	}

	event.Flags, event.Banks, err = parseBanks(payload)
	if err != nil {
		return nil, &extractor.DecodeError{Offset: offset, Recoverable: true, Err: fmt.Errorf("event %d: %w", event.Header.SerialNumber, err)}
	}
	return event, nil
}

func (f *FileReader) Close() error {
	var errs []error
	for _, c := range f.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CountEvents reads the rest of the stream and returns how many data
// events it holds, internal events excluded. Decode errors stop the count.
func (f *FileReader) CountEvents() (int, error) {
	count := 0
	for {
		event, err := f.NextEvent()
		if err != nil {
			var decodeErr *extractor.DecodeError
			if err == io.EOF || errors.As(err, &decodeErr) {
				return count, nil
			}
			return count, err
		}
		if !event.Header.IsInternal() {
			count++
		}
	}
}
