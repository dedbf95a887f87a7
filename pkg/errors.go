package extractor

import "fmt"

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error { return e.Err }

// ErrWriteArray represents an error when appending an array to the archive.
type ErrWriteArray struct {
	Name string
	Err  error
}

func (e *ErrWriteArray) Error() string {
	return fmt.Sprintf("error writing array %q: %v", e.Name, e.Err)
}

func (e *ErrWriteArray) Unwrap() error { return e.Err }

// ErrWriteMetadata represents an error when writing a metadata row.
type ErrWriteMetadata struct {
	EventNumber uint32
	Err         error
}

func (e *ErrWriteMetadata) Error() string {
	return fmt.Sprintf("error writing metadata for event %d: %v", e.EventNumber, e.Err)
}

func (e *ErrWriteMetadata) Unwrap() error { return e.Err }

// DecodeError is returned by an EventSource when a record could not be
// decoded. Recoverable reports whether the source already skipped past the
// bad record, so that calling Next again yields the following one.
type DecodeError struct {
	Offset      int64
	Recoverable bool
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
