package extractor

import (
	"errors"
	"fmt"
	"io"
	"os"

	sqlx "github.com/jmoiron/sqlx"
)

var ErrNoInput = errors.New("no input file given")

type state int

const (
	stateInit state = iota
	stateStreaming
	stateDone
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateStreaming:
		return "STREAMING"
	default:
		return "DONE"
	}
}

// Summary describes the outcome of one extraction run.
type Summary struct {
	Input            string
	Archive          string
	Metadata         string
	AlreadyExtracted bool
	Pulls            int
	EventsSkipped    int
	EventsWritten    int
	Entries          []BoundsEntry
	ShortTraces      int
	DecodeErrors     int
}

// Extractor turns one input file into a metadata CSV and an array archive.
type Extractor struct {
	Config      Configuration
	Logger      Logger
	OpenSource  SourceOpener
	OpenArchive ArchiveOpener
	// Catalog is optional; when set every completed run is recorded.
	Catalog *Catalog

	state state
}

func NewExtractor(config Configuration, openSource SourceOpener, openArchive ArchiveOpener) *Extractor {
	return &Extractor{
		Config:      config,
		Logger:      nopLogger{},
		OpenSource:  openSource,
		OpenArchive: openArchive,
	}
}

func (e *Extractor) setState(s state) {
	e.state = s
	if e.Config.Verbosity > 1 {
		e.Logger.Info(fmt.Sprintf("State: %v", s), "extractor")
	}
}

// Run extracts input. When the archive for input already exists nothing is
// written and the returned summary has AlreadyExtracted set.
func (e *Extractor) Run(input string) (summary Summary, err error) {
	if input == "" {
		return summary, ErrNoInput
	}
	config := e.Config
	summary.Input = input
	summary.Archive = config.ArchivePath(input)
	summary.Metadata = config.MetadataPath(input)

	e.setState(stateInit)
	source, err := e.OpenSource(input)
	if err != nil {
		return summary, fmt.Errorf("error opening event source: %w", err)
	}
	defer source.Close()

	if _, statErr := os.Stat(summary.Archive); statErr == nil {
		summary.AlreadyExtracted = true
		e.Logger.Info(fmt.Sprintf("Archive %s already exists, nothing to do", summary.Archive), "extractor")
		e.setState(stateDone)
		return summary, nil
	}

	for _, dir := range []string{config.ArchiveDir, config.MetadataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return summary, fmt.Errorf("error creating output directory %q: %w", dir, err)
		}
	}

	metadata, err := CreateMetadataFile(summary.Metadata)
	if err != nil {
		return summary, err
	}
	defer func() {
		if metadata != nil {
			metadata.Close()
		}
	}()

	partial := summary.Archive + ".partial"
	archive, err := e.OpenArchive(partial, ModeWrite)
	if err != nil {
		return summary, fmt.Errorf("error opening archive: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			archive.Close()
			os.Remove(partial)
		}
	}()

	e.setState(stateStreaming)
	visitor := &archiver{config: config, writer: archive, logger: e.Logger}
	if err := e.stream(source, metadata, visitor, &summary); err != nil {
		return summary, err
	}
	summary.Entries = visitor.entries
	summary.ShortTraces = visitor.shortTraces

	e.setState(stateDone)
	err = metadata.Close()
	metadata = nil
	if err != nil {
		return summary, fmt.Errorf("error closing metadata file: %w", err)
	}
	committed = true
	if err := archive.Close(); err != nil {
		os.Remove(partial)
		return summary, fmt.Errorf("error closing archive: %w", err)
	}

	// The archive is the completion marker, so everything else is written
	// before it is moved into place.
	bounds := ""
	if config.WriteBounds {
		bounds = config.BoundsPath(input)
		if err := WriteBounds(bounds, summary.Entries); err != nil {
			os.Remove(partial)
			return summary, err
		}
	}
	discard := func() {
		if bounds != "" {
			os.Remove(bounds)
		}
		os.Remove(partial)
	}

	var record *sqlx.Tx
	if e.Catalog != nil {
		record, err = e.Catalog.begin(summary)
		if err != nil {
			discard()
			return summary, fmt.Errorf("error recording extraction: %w", err)
		}
	}

	if err := os.Rename(partial, summary.Archive); err != nil {
		if record != nil {
			record.Rollback()
		}
		discard()
		return summary, fmt.Errorf("error moving archive into place: %w", err)
	}
	if record != nil {
		if err := record.Commit(); err != nil {
			os.Remove(summary.Archive)
			if bounds != "" {
				os.Remove(bounds)
			}
			return summary, fmt.Errorf("error recording extraction: %w", err)
		}
	}

	if config.Verbosity > 0 {
		message := fmt.Sprintf("Extracted %d events, %d arrays, %d short traces, %d decode errors from %s",
			summary.EventsWritten, len(summary.Entries), summary.ShortTraces, summary.DecodeErrors, input)
		e.Logger.Info(message, "extractor")
	}
	return summary, nil
}

// stream pulls events until the read budget is spent or the source ends.
// The first Skip pulls are consumed without being written.
func (e *Extractor) stream(source EventSource, metadata *MetadataWriter, visitor *archiver, summary *Summary) error {
	config := e.Config
	for config.MaxEvents <= 0 || summary.Pulls < config.MaxEvents {
		event, err := source.Next()
		if err != nil {
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				summary.Pulls++
				summary.DecodeErrors++
				e.Logger.Error(fmt.Sprintf("error decoding event: %v", decodeErr))
				if config.OnDecodeError == OnDecodeErrorSkip && decodeErr.Recoverable {
					continue
				}
				return nil
			}
			if errors.Is(err, io.EOF) {
				if config.Verbosity > 0 {
					e.Logger.Info("End of file", "extractor")
				}
				return nil
			}
			return fmt.Errorf("error reading event: %w", err)
		}
		summary.Pulls++

		if summary.Pulls <= config.Skip {
			summary.EventsSkipped++
			if config.Verbosity > 0 {
				e.Logger.Info(fmt.Sprintf("Skipping event %d", event.EventNumber), "extractor")
			}
			continue
		}
		if config.Verbosity > 0 {
			e.Logger.Info(fmt.Sprintf("Processing event %d", event.EventNumber), "extractor")
		}

		if err := metadata.Write(event); err != nil {
			return err
		}
		if err := Walk(event, visitor); err != nil {
			return err
		}
		summary.EventsWritten++
	}
	if config.Verbosity > 0 {
		e.Logger.Info("Max events reached", "extractor")
	}
	return nil
}

// archiver is the Visitor that appends qualifying channels to the archive.
type archiver struct {
	config Configuration
	writer ArrayWriter
	logger Logger

	rows        [][]uint16
	name        string
	entries     []BoundsEntry
	shortTraces int
}

func (a *archiver) BeginDetector(*EventType, int) error {
	a.rows = a.rows[:0]
	a.name = ""
	return nil
}

func (a *archiver) VisitChannel(event *EventType, detector int, channel int, ch *Channel) error {
	n := ch.TotalLength()
	if len(ch.Data) != n {
		return fmt.Errorf("event %d detector %d channel %d: buffer holds %d samples, expected %d",
			event.EventNumber, detector, channel, len(ch.Data), n)
	}

	switch a.config.Classify(ch) {
	case TraceShort:
		a.shortTraces++
		if a.config.Verbosity > 0 {
			message := fmt.Sprintf("Event %d detector %d channel %d: charge channel with %d samples, not extracted",
				event.EventNumber, detector, channel, n)
			a.logger.Info(message, "extractor")
		}
	case TraceQualifying:
		if a.config.Layout == LayoutChannel {
			name := ChannelArrayName(event.EventNumber, detector, channel, ch.Type, n)
			return a.append(name, ch.Data, []int{1, n})
		}
		a.rows = append(a.rows, ch.Data[:a.config.Threshold])
		a.name = ArrayName(event.EventNumber, detector, ch.Type, n)
	}
	return nil
}

// EndDetector stacks the qualifying channels of the detector into one
// M x threshold array named after the last of them.
func (a *archiver) EndDetector(*EventType, int) error {
	if a.config.Layout == LayoutChannel || len(a.rows) == 0 {
		return nil
	}
	width := a.config.Threshold
	data := make([]uint16, 0, len(a.rows)*width)
	for _, row := range a.rows {
		data = append(data, row...)
	}
	return a.append(a.name, data, []int{len(a.rows), width})
}

func (a *archiver) append(name string, data []uint16, shape []int) error {
	if a.config.Verbosity > 1 {
		a.logger.Info(fmt.Sprintf("Writing %s %v", name, shape), "extractor")
	}
	if err := a.writer.AppendArray(name, data, shape); err != nil {
		return &ErrWriteArray{Name: name, Err: err}
	}
	a.entries = append(a.entries, BoundsEntry{Name: name, Rows: shape[0]})
	return nil
}
