package midas

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	extractor "github.com/nsdf-fabric/mid_extract/pkg"
)

// Bank names of the CDMS readout. CDEV carries the event tags as five
// DWORDs: event number, trigger type, readout type, timestamp low word,
// timestamp high word. Each CDCH bank is one channel: a channelHeaderStruct
// followed by the uint16 samples.
const (
	EventBankName   = "CDEV"
	ChannelBankName = "CDCH"
)

const maxDetectors = 256

type channelHeaderStruct struct {
	Detector        uint16
	ChannelType     uint8
	BaselineControl uint8
	PrepulseLength  uint32
	OnpulseLength   uint32
	PostpulseLength uint32
	SampleRateLow   float64
	SampleRateHigh  float64
	Name            [32]byte
}

const channelHeaderSize = 64

func parseChannelHeader(b []byte) channelHeaderStruct {
	h := channelHeaderStruct{
		Detector:        binary.LittleEndian.Uint16(b[0:]),
		ChannelType:     b[2],
		BaselineControl: b[3],
		PrepulseLength:  binary.LittleEndian.Uint32(b[4:]),
		OnpulseLength:   binary.LittleEndian.Uint32(b[8:]),
		PostpulseLength: binary.LittleEndian.Uint32(b[12:]),
		SampleRateLow:   math.Float64frombits(binary.LittleEndian.Uint64(b[16:])),
		SampleRateHigh:  math.Float64frombits(binary.LittleEndian.Uint64(b[24:])),
	}
	copy(h.Name[:], b[32:channelHeaderSize])
	return h
}

func (h channelHeaderStruct) appendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, h.Detector)
	b = append(b, h.ChannelType, h.BaselineControl)
	b = binary.LittleEndian.AppendUint32(b, h.PrepulseLength)
	b = binary.LittleEndian.AppendUint32(b, h.OnpulseLength)
	b = binary.LittleEndian.AppendUint32(b, h.PostpulseLength)
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(h.SampleRateLow))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(h.SampleRateHigh))
	return append(b, h.Name[:]...)
}

// DecodeEvent builds the detector/channel view of a MIDAS event. Without a
// CDEV bank the event number and timestamp come from the MIDAS header.
func DecodeEvent(raw *Event) (*extractor.EventType, error) {
	event := &extractor.EventType{
		EventNumber:     raw.Header.SerialNumber,
		GlobalTimestamp: uint64(raw.Header.TimeStamp),
	}

	for _, bank := range raw.Banks {
		switch bank.Name {
		case EventBankName:
			if err := readEventBank(bank, event); err != nil {
				return nil, err
			}
		case ChannelBankName:
			detector, channel, err := readChannelBank(bank)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", event.EventNumber, err)
			}
			for len(event.Detectors) <= detector {
				event.Detectors = append(event.Detectors, extractor.Detector{})
			}
			event.Detectors[detector].Channels = append(event.Detectors[detector].Channels, channel)
		}
	}
	return event, nil
}

func readEventBank(bank Bank, event *extractor.EventType) error {
	if bank.Type != TIDDword {
		return fmt.Errorf("bank %s has type %d, expected DWORD", bank.Name, bank.Type)
	}
	values := bank.Uint32s()
	if len(values) != 5 {
		return fmt.Errorf("bank %s holds %d values, expected 5", bank.Name, len(values))
	}
	event.EventNumber = values[0]
	event.TriggerType = extractor.TriggerType(values[1])
	event.ReadoutType = extractor.ReadoutType(values[2])
	event.GlobalTimestamp = uint64(values[3]) | uint64(values[4])<<32
	return nil
}

func readChannelBank(bank Bank) (int, extractor.Channel, error) {
	if len(bank.Data) < channelHeaderSize {
		return 0, extractor.Channel{}, fmt.Errorf("channel bank of %d bytes is shorter than its header", len(bank.Data))
	}
	header := parseChannelHeader(bank.Data)

	if header.Detector >= maxDetectors {
		return 0, extractor.Channel{}, fmt.Errorf("detector index %d out of range", header.Detector)
	}
	if header.ChannelType > uint8(extractor.Phonon) {
		return 0, extractor.Channel{}, fmt.Errorf("unknown channel type %d", header.ChannelType)
	}
	if header.BaselineControl > uint8(extractor.BaselineActive) {
		return 0, extractor.Channel{}, fmt.Errorf("unknown baseline control %d", header.BaselineControl)
	}

	total := uint64(header.PrepulseLength) + uint64(header.OnpulseLength) + uint64(header.PostpulseLength)
	samples := bank.Data[channelHeaderSize:]
	if uint64(len(samples)) != 2*total {
		return 0, extractor.Channel{}, fmt.Errorf("channel %q holds %d bytes of samples, expected %d",
			cString(header.Name[:]), len(samples), 2*total)
	}

	channel := extractor.Channel{
		Name:            cString(header.Name[:]),
		Type:            extractor.ChannelType(header.ChannelType),
		BaselineControl: extractor.BaselineControl(header.BaselineControl),
		SampleRateLow:   header.SampleRateLow,
		SampleRateHigh:  header.SampleRateHigh,
		PrepulseLength:  header.PrepulseLength,
		OnpulseLength:   header.OnpulseLength,
		PostpulseLength: header.PostpulseLength,
		Data:            Bank{Data: samples}.Uint16s(),
	}
	return int(header.Detector), channel, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// EncodeEvent is the inverse of DecodeEvent.
func EncodeEvent(event *extractor.EventType) []Bank {
	info := make([]byte, 20)
	binary.LittleEndian.PutUint32(info[0:], event.EventNumber)
	binary.LittleEndian.PutUint32(info[4:], uint32(event.TriggerType))
	binary.LittleEndian.PutUint32(info[8:], uint32(event.ReadoutType))
	binary.LittleEndian.PutUint32(info[12:], uint32(event.GlobalTimestamp))
	binary.LittleEndian.PutUint32(info[16:], uint32(event.GlobalTimestamp>>32))
	banks := []Bank{{Name: EventBankName, Type: TIDDword, Data: info}}

	for i, detector := range event.Detectors {
		for _, ch := range detector.Channels {
			header := channelHeaderStruct{
				Detector:        uint16(i),
				ChannelType:     uint8(ch.Type),
				BaselineControl: uint8(ch.BaselineControl),
				PrepulseLength:  ch.PrepulseLength,
				OnpulseLength:   ch.OnpulseLength,
				PostpulseLength: ch.PostpulseLength,
				SampleRateLow:   ch.SampleRateLow,
				SampleRateHigh:  ch.SampleRateHigh,
			}
			copy(header.Name[:], ch.Name)

			data := header.appendBinary(make([]byte, 0, channelHeaderSize+2*len(ch.Data)))
			for _, sample := range ch.Data {
				data = binary.LittleEndian.AppendUint16(data, sample)
			}
			banks = append(banks, Bank{Name: ChannelBankName, Type: TIDStruct, Data: data})
		}
	}
	return banks
}

// Source is the extractor.EventSource over a MIDAS file. MIDAS internal
// events are skipped.
type Source struct {
	reader *FileReader
}

func NewSource(reader *FileReader) *Source {
	return &Source{reader: reader}
}

func OpenSource(path string) (*Source, error) {
	reader, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return NewSource(reader), nil
}

func (s *Source) Next() (*extractor.EventType, error) {
	for {
		raw, err := s.reader.NextEvent()
		if err != nil {
			return nil, err
		}
		if raw.Header.IsInternal() {
			continue
		}
		event, err := DecodeEvent(raw)
		if err != nil {
			return nil, &extractor.DecodeError{Offset: raw.Offset, Recoverable: true, Err: err}
		}
		return event, nil
	}
}

func (s *Source) Close() error {
	return s.reader.Close()
}

var _ extractor.EventSource = (*Source)(nil)
var _ io.Closer = (*FileReader)(nil)
