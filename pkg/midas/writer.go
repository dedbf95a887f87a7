package midas

import (
	"encoding/binary"
	"fmt"
	"io"

	extractor "github.com/nsdf-fabric/mid_extract/pkg"
)

// DataEventID is the event id given to CDMS events by Writer.
const DataEventID = 1

// Writer produces a MIDAS stream with 32-bit bank headers.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes the event header followed by the banks. DataSize is
// computed from the banks.
func (w *Writer) WriteEvent(header EventHeaderStruct, banks []Bank) error {
	var body []byte
	for _, bank := range banks {
		if len(bank.Name) != 4 {
			return fmt.Errorf("bank name %q is not 4 characters", bank.Name)
		}
		body = append(body, bank.Name...)
		body = binary.LittleEndian.AppendUint32(body, bank.Type)
		body = binary.LittleEndian.AppendUint32(body, uint32(len(bank.Data)))
		body = append(body, bank.Data...)
		body = append(body, make([]byte, padded(len(bank.Data))-len(bank.Data))...)
	}

	allBank := AllBankHeaderStruct{AllBankSize: uint32(len(body)), Flags: FlagFormatV1 | FlagBank32}
	header.DataSize = uint32(AllBankHeaderSize + len(body))

	out := header.appendBinary(make([]byte, 0, EventHeaderSize+int(header.DataSize)))
	out = allBank.appendBinary(out)
	out = append(out, body...)
	_, err := w.w.Write(out)
	return err
}

// WriteInternal writes an event whose payload is not bank formatted, such
// as the begin-of-run ODB dump.
func (w *Writer) WriteInternal(eventID uint16, serial uint32, payload []byte) error {
	header := EventHeaderStruct{EventID: eventID, SerialNumber: serial, DataSize: uint32(len(payload))}
	out := append(header.appendBinary(nil), payload...)
	_, err := w.w.Write(out)
	return err
}

// WriteCDMSEvent encodes event with EncodeEvent.
func (w *Writer) WriteCDMSEvent(event *extractor.EventType) error {
	header := EventHeaderStruct{
		EventID:      DataEventID,
		SerialNumber: event.EventNumber,
		TimeStamp:    uint32(event.GlobalTimestamp),
	}
	return w.WriteEvent(header, EncodeEvent(event))
}
