package extractor

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

var metadataHeader = []string{"event", "trigger_type", "readout_type", "global_timestamp"}

// MetadataWriter writes one CSV row per event, in the order events are
// given to it.
type MetadataWriter struct {
	w      *csv.Writer
	closer io.Closer
	Rows   int
}

// NewMetadataWriter writes the header to w right away.
func NewMetadataWriter(w io.Writer) (*MetadataWriter, error) {
	mw := &MetadataWriter{w: csv.NewWriter(w)}
	if closer, ok := w.(io.Closer); ok {
		mw.closer = closer
	}
	if err := mw.writeRecord(metadataHeader); err != nil {
		return nil, fmt.Errorf("error writing metadata header: %w", err)
	}
	return mw, nil
}

// CreateMetadataFile truncates or creates filename and writes the header.
func CreateMetadataFile(filename string) (*MetadataWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	mw, err := NewMetadataWriter(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	return mw, nil
}

func (m *MetadataWriter) Write(event *EventType) error {
	record := []string{
		strconv.FormatUint(uint64(event.EventNumber), 10),
		event.TriggerType.String(),
		event.ReadoutType.String(),
		strconv.FormatUint(event.GlobalTimestamp, 10),
	}
	if err := m.writeRecord(record); err != nil {
		return &ErrWriteMetadata{EventNumber: event.EventNumber, Err: err}
	}
	m.Rows++
	return nil
}

// writeRecord flushes after every row so a failing sink is reported on
// the event that hit it.
func (m *MetadataWriter) writeRecord(record []string) error {
	if err := m.w.Write(record); err != nil {
		return err
	}
	m.w.Flush()
	return m.w.Error()
}

func (m *MetadataWriter) Close() error {
	m.w.Flush()
	err := m.w.Error()
	if m.closer != nil {
		if cerr := m.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
