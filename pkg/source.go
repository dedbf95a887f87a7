package extractor

// EventSource yields the events of one input file in order. Next returns
// io.EOF once the stream is exhausted and a *DecodeError when a record is
// malformed; any other error is an I/O failure.
type EventSource interface {
	Next() (*EventType, error)
	Close() error
}

// ArrayWriter appends named uint16 arrays to an archive. shape holds the
// dimensions of data in row-major order.
type ArrayWriter interface {
	AppendArray(name string, data []uint16, shape []int) error
	Close() error
}

// ArchiveMode selects how an existing archive is treated when opened.
type ArchiveMode string

const (
	// ModeWrite truncates the archive.
	ModeWrite ArchiveMode = "w"
	// ModeAppend keeps existing entries; an entry written again under the
	// same name replaces the old one. Backends that cannot resize an entry
	// only replace it with data of the same shape.
	ModeAppend ArchiveMode = "a"
)

type SourceOpener func(path string) (EventSource, error)

type ArchiveOpener func(path string, mode ArchiveMode) (ArrayWriter, error)
