package midas

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	extractor "github.com/nsdf-fabric/mid_extract/pkg"
)

func testEvent(number uint32) *extractor.EventType {
	phonon := extractor.Channel{
		Name:            "PAS1",
		Type:            extractor.Phonon,
		BaselineControl: extractor.BaselineActive,
		SampleRateLow:   625000,
		SampleRateHigh:  1250000,
		PrepulseLength:  1024,
		OnpulseLength:   2048,
		PostpulseLength: 1024,
		Data:            make([]uint16, 4096),
	}
	for i := range phonon.Data {
		phonon.Data[i] = uint16(32768 + i)
	}
	charge := extractor.Channel{
		Name:            "QIS1",
		Type:            extractor.Charge,
		PrepulseLength:  512,
		OnpulseLength:   1024,
		PostpulseLength: 512,
		Data:            make([]uint16, 2048),
	}
	return &extractor.EventType{
		EventNumber:     number,
		TriggerType:     extractor.TriggerPhysics,
		ReadoutType:     extractor.ReadoutNormal,
		GlobalTimestamp: 1<<40 + 1000,
		Detectors: []extractor.Detector{
			{Channels: []extractor.Channel{phonon, charge}},
			{},
			{Channels: []extractor.Channel{charge}},
		},
	}
}

func writeRun(t *testing.T, w io.Writer, events ...*extractor.EventType) {
	mw := NewWriter(w)
	require.NoError(t, mw.WriteInternal(BeginOfRunID, 1, []byte("<odb>begin</odb>")))
	for _, event := range events {
		require.NoError(t, mw.WriteCDMSEvent(event))
	}
	require.NoError(t, mw.WriteInternal(MessageID, 2, []byte("run stopped")))
	require.NoError(t, mw.WriteInternal(EndOfRunID, 3, []byte("<odb>end</odb>")))
}

func TestSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	var raw bytes.Buffer
	writeRun(t, &raw, testEvent(42), testEvent(43))

	plain := filepath.Join(dir, "run.mid")
	require.NoError(t, os.WriteFile(plain, raw.Bytes(), 0o644))

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	gzFile := filepath.Join(dir, "run.mid.gz")
	require.NoError(t, os.WriteFile(gzFile, gz.Bytes(), 0o644))

	var lz bytes.Buffer
	lw := lz4.NewWriter(&lz)
	_, err = lw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, lw.Close())
	lzFile := filepath.Join(dir, "run.mid.lz4")
	require.NoError(t, os.WriteFile(lzFile, lz.Bytes(), 0o644))

	var zs bytes.Buffer
	enc, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, err = enc.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	zsFile := filepath.Join(dir, "run.mid.zst")
	require.NoError(t, os.WriteFile(zsFile, zs.Bytes(), 0o644))

	for _, path := range []string{plain, gzFile, lzFile, zsFile} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			source, err := OpenSource(path)
			require.NoError(t, err)
			defer source.Close()

			for _, number := range []uint32{42, 43} {
				event, err := source.Next()
				require.NoError(t, err)
				assert.Equal(t, testEvent(number), event)
			}
			_, err = source.Next()
			assert.Equal(t, io.EOF, err)
		})
	}
}

func TestDecodeEventWithoutEventBank(t *testing.T) {
	var raw bytes.Buffer
	banks := EncodeEvent(testEvent(7))[1:]
	header := EventHeaderStruct{EventID: DataEventID, SerialNumber: 99, TimeStamp: 1234}
	require.NoError(t, NewWriter(&raw).WriteEvent(header, banks))

	event, err := NewSource(NewReader(&raw)).Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(99), event.EventNumber)
	assert.Equal(t, uint64(1234), event.GlobalTimestamp)
	assert.Equal(t, extractor.TriggerUnknown, event.TriggerType)
	assert.Equal(t, extractor.ReadoutNone, event.ReadoutType)
	assert.Len(t, event.Detectors, 3)
}

func TestReaderInternalEvents(t *testing.T) {
	var raw bytes.Buffer
	writeRun(t, &raw, testEvent(1))

	reader := NewReader(bytes.NewReader(raw.Bytes()))
	bor, err := reader.NextEvent()
	require.NoError(t, err)
	assert.True(t, bor.Header.IsInternal())
	assert.Equal(t, []byte("<odb>begin</odb>"), bor.NonBankData)
	assert.Equal(t, int64(0), bor.Offset)

	event, err := reader.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, int64(EventHeaderSize+len("<odb>begin</odb>")), event.Offset)
	assert.Equal(t, uint32(FlagFormatV1|FlagBank32), event.Flags)
	bank, ok := event.Bank(EventBankName)
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 1, 1, 1000, 256}, bank.Uint32s())
	_, ok = event.Bank("XXXX")
	assert.False(t, ok)

	count, err := NewReader(bytes.NewReader(raw.Bytes())).CountEvents()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReaderTruncated(t *testing.T) {
	var raw bytes.Buffer
	require.NoError(t, NewWriter(&raw).WriteCDMSEvent(testEvent(1)))
	data := raw.Bytes()

	_, err := NewReader(bytes.NewReader(data[:len(data)-10])).NextEvent()
	var decodeErr *extractor.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.False(t, decodeErr.Recoverable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = NewReader(bytes.NewReader(data[:7])).NextEvent()
	require.ErrorAs(t, err, &decodeErr)
	assert.False(t, decodeErr.Recoverable)

	_, err = NewReader(bytes.NewReader(nil)).NextEvent()
	assert.Equal(t, io.EOF, err)
}

func TestReaderOversizeEvent(t *testing.T) {
	var raw bytes.Buffer
	raw.Write(EventHeaderStruct{EventID: DataEventID, DataSize: MaxEventSize + 1}.appendBinary(nil))

	_, err := NewReader(&raw).NextEvent()
	var decodeErr *extractor.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.ErrorContains(t, err, "too large")
}

func TestSourceBadChannelIsRecoverable(t *testing.T) {
	good := testEvent(1)
	bad := EncodeEvent(testEvent(2))
	// drop the last sample of the first channel
	bad[1].Data = bad[1].Data[:len(bad[1].Data)-2]

	var raw bytes.Buffer
	w := NewWriter(&raw)
	require.NoError(t, w.WriteCDMSEvent(good))
	require.NoError(t, w.WriteEvent(EventHeaderStruct{EventID: DataEventID, SerialNumber: 2}, bad))
	require.NoError(t, w.WriteCDMSEvent(testEvent(3)))

	source := NewSource(NewReader(&raw))
	event, err := source.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), event.EventNumber)

	_, err = source.Next()
	var decodeErr *extractor.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.True(t, decodeErr.Recoverable)
	assert.ErrorContains(t, err, "expected 8192")

	event, err = source.Next()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), event.EventNumber)
}

func TestDecodeChannelErrors(t *testing.T) {
	encode := func(mutate func(*channelHeaderStruct)) Bank {
		header := channelHeaderStruct{PrepulseLength: 1, OnpulseLength: 1, PostpulseLength: 1}
		mutate(&header)
		data := append(header.appendBinary(nil), make([]byte, 6)...)
		return Bank{Name: ChannelBankName, Type: TIDStruct, Data: data}
	}

	tests := map[string]Bank{
		"detector index 300 out of range": encode(func(h *channelHeaderStruct) { h.Detector = 300 }),
		"unknown channel type 4":          encode(func(h *channelHeaderStruct) { h.ChannelType = 4 }),
		"unknown baseline control 2":      encode(func(h *channelHeaderStruct) { h.BaselineControl = 2 }),
		"shorter than its header":         {Name: ChannelBankName, Type: TIDStruct, Data: make([]byte, 10)},
	}
	for message, bank := range tests {
		_, err := DecodeEvent(&Event{Banks: []Bank{bank}})
		assert.ErrorContains(t, err, message)
	}

	_, err := DecodeEvent(&Event{Banks: []Bank{{Name: EventBankName, Type: TIDDword, Data: make([]byte, 8)}}})
	assert.ErrorContains(t, err, "holds 2 values")
	_, err = DecodeEvent(&Event{Banks: []Bank{{Name: EventBankName, Type: TIDWord, Data: make([]byte, 20)}}})
	assert.ErrorContains(t, err, "expected DWORD")
}

func TestParseBanks16Bit(t *testing.T) {
	var payload bytes.Buffer
	bank := []byte("ADC0")
	bank = binary.LittleEndian.AppendUint16(bank, TIDWord)
	bank = binary.LittleEndian.AppendUint16(bank, 6)
	bank = append(bank, 1, 0, 2, 0, 3, 0, 0, 0)
	payload.Write(AllBankHeaderStruct{AllBankSize: uint32(len(bank)), Flags: FlagFormatV1}.appendBinary(nil))
	payload.Write(bank)

	flags, banks, err := parseBanks(payload.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint32(FlagFormatV1), flags)
	require.Len(t, banks, 1)
	assert.Equal(t, "ADC0", banks[0].Name)
	assert.Equal(t, []uint16{1, 2, 3}, banks[0].Uint16s())

	_, _, err = parseBanks(payload.Bytes()[:4])
	assert.Error(t, err)

	corrupt := bytes.Clone(payload.Bytes())
	corrupt[12] = 99
	_, _, err = parseBanks(corrupt)
	assert.ErrorContains(t, err, "unexpected bank type 99")
}

func TestReaderBadBankIsRecoverable(t *testing.T) {
	var raw bytes.Buffer
	w := NewWriter(&raw)
	require.NoError(t, w.WriteEvent(EventHeaderStruct{EventID: DataEventID, SerialNumber: 1},
		[]Bank{{Name: "BAD!", Type: 77, Data: []byte{1, 2}}}))
	require.NoError(t, w.WriteCDMSEvent(testEvent(2)))

	reader := NewReader(&raw)
	_, err := reader.NextEvent()
	var decodeErr *extractor.DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.True(t, decodeErr.Recoverable)

	event, err := reader.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), event.Header.SerialNumber)
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.mid"))
	var openErr *extractor.ErrOpenFile
	assert.ErrorAs(t, err, &openErr)
}

func TestHeaderCodecs(t *testing.T) {
	event := EventHeaderStruct{EventID: 0x8001, TriggerMask: 0x0102, SerialNumber: 7, TimeStamp: 0xdeadbeef, DataSize: 1 << 20}
	raw := event.appendBinary(nil)
	require.Len(t, raw, EventHeaderSize)
	assert.Equal(t, []byte{0x01, 0x80, 0x02, 0x01}, raw[:4])
	assert.Equal(t, event, parseEventHeader(raw))

	all := AllBankHeaderStruct{AllBankSize: 24, Flags: FlagFormatV1 | FlagBank32}
	assert.Equal(t, []byte{24, 0, 0, 0, 0x11, 0, 0, 0}, all.appendBinary(nil))

	channel := channelHeaderStruct{
		Detector:        3,
		ChannelType:     uint8(extractor.Phonon),
		BaselineControl: uint8(extractor.BaselineActive),
		PrepulseLength:  1024,
		OnpulseLength:   2048,
		PostpulseLength: 0xffffffff,
		SampleRateLow:   625000,
		SampleRateHigh:  1.25e6,
	}
	copy(channel.Name[:], "PBS2")
	raw = channel.appendBinary(nil)
	require.Len(t, raw, channelHeaderSize)
	assert.Equal(t, byte(3), raw[2])
	assert.Equal(t, byte(1), raw[3])
	assert.Equal(t, []byte("PBS2"), raw[32:36])
	assert.Equal(t, channel, parseChannelHeader(raw))
}
