package midas

import (
	"encoding/binary"
	"fmt"
)

// Event ids of the events MIDAS writes itself. Their payload is not made
// of banks.
const (
	BeginOfRunID = 0x8000
	EndOfRunID   = 0x8001
	MessageID    = 0x8002
)

const (
	EventHeaderSize   = 16
	AllBankHeaderSize = 8
)

// Bank flags of the all-bank header.
const (
	FlagFormatV1 = 1 << 0
	FlagBank32   = 1 << 4
	FlagAlign64  = 1 << 5
)

// MaxEventSize bounds the payload size accepted from an event header.
const MaxEventSize = 1 << 30

// Bank data types (TID_xxx).
const (
	TIDByte   = 1
	TIDSByte  = 2
	TIDChar   = 3
	TIDWord   = 4
	TIDShort  = 5
	TIDDword  = 6
	TIDInt    = 7
	TIDBool   = 8
	TIDFloat  = 9
	TIDDouble = 10
	TIDBitfld = 11
	TIDString = 12
	TIDArray  = 13
	TIDStruct = 14
	TIDKey    = 15
	TIDLink   = 16
	TIDInt64  = 17
	TIDQword  = 18
)

var tidSizes = map[uint32]int{
	TIDByte: 1, TIDSByte: 1, TIDChar: 1,
	TIDWord: 2, TIDShort: 2,
	TIDDword: 4, TIDInt: 4, TIDBool: 4, TIDFloat: 4, TIDBitfld: 4,
	TIDDouble: 8, TIDInt64: 8, TIDQword: 8,
	TIDString: 0, TIDArray: 0, TIDStruct: 0, TIDKey: 0, TIDLink: 0,
}

type EventHeaderStruct struct {
	EventID      uint16
	TriggerMask  uint16
	SerialNumber uint32
	TimeStamp    uint32
	DataSize     uint32
}

func parseEventHeader(b []byte) EventHeaderStruct {
	return EventHeaderStruct{
		EventID:      binary.LittleEndian.Uint16(b[0:]),
		TriggerMask:  binary.LittleEndian.Uint16(b[2:]),
		SerialNumber: binary.LittleEndian.Uint32(b[4:]),
		TimeStamp:    binary.LittleEndian.Uint32(b[8:]),
		DataSize:     binary.LittleEndian.Uint32(b[12:]),
	}
}

func (h EventHeaderStruct) appendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint16(b, h.EventID)
	b = binary.LittleEndian.AppendUint16(b, h.TriggerMask)
	b = binary.LittleEndian.AppendUint32(b, h.SerialNumber)
	b = binary.LittleEndian.AppendUint32(b, h.TimeStamp)
	return binary.LittleEndian.AppendUint32(b, h.DataSize)
}

func (h EventHeaderStruct) IsInternal() bool {
	return h.EventID == BeginOfRunID || h.EventID == EndOfRunID || h.EventID == MessageID
}

type AllBankHeaderStruct struct {
	AllBankSize uint32
	Flags       uint32
}

func (h AllBankHeaderStruct) appendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, h.AllBankSize)
	return binary.LittleEndian.AppendUint32(b, h.Flags)
}

func bankHeaderSize(flags uint32) int {
	switch {
	case flags&FlagAlign64 != 0:
		return 16
	case flags&FlagBank32 != 0:
		return 12
	default:
		return 8
	}
}

func padded(size int) int {
	return (size + 7) &^ 7
}

type Bank struct {
	Name string
	Type uint32
	Data []byte
}

func (b Bank) Uint16s() []uint16 {
	values := make([]uint16, len(b.Data)/2)
	for i := range values {
		values[i] = binary.LittleEndian.Uint16(b.Data[2*i:])
	}
	return values
}

func (b Bank) Uint32s() []uint32 {
	values := make([]uint32, len(b.Data)/4)
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(b.Data[4*i:])
	}
	return values
}

// parseBanks splits an event payload, all-bank header included, into banks.
func parseBanks(payload []byte) (uint32, []Bank, error) {
	if len(payload) < AllBankHeaderSize {
		return 0, nil, fmt.Errorf("payload of %d bytes has no bank header", len(payload))
	}
	allBankSize := int(binary.LittleEndian.Uint32(payload[0:]))
	flags := binary.LittleEndian.Uint32(payload[4:])
	if allBankSize > len(payload)-AllBankHeaderSize {
		return flags, nil, fmt.Errorf("bank size %d exceeds payload of %d bytes", allBankSize, len(payload))
	}
	if flags&FlagAlign64 != 0 && flags&FlagBank32 == 0 {
		return flags, nil, fmt.Errorf("16-bit banks with 64-bit alignment in flags 0x%x", flags)
	}

	headerSize := bankHeaderSize(flags)
	data := payload[AllBankHeaderSize : AllBankHeaderSize+allBankSize]
	var banks []Bank
	position := 0
	for position < len(data) {
		if position+headerSize > len(data) {
			return flags, nil, fmt.Errorf("truncated bank header at %d", position)
		}
		header := data[position : position+headerSize]
		bank := Bank{Name: string(header[0:4])}
		var size int
		if flags&FlagBank32 != 0 {
			bank.Type = binary.LittleEndian.Uint32(header[4:])
			size = int(binary.LittleEndian.Uint32(header[8:]))
		} else {
			bank.Type = uint32(binary.LittleEndian.Uint16(header[4:]))
			size = int(binary.LittleEndian.Uint16(header[6:]))
		}
		if _, ok := tidSizes[bank.Type]; !ok {
			return flags, nil, fmt.Errorf("unexpected bank type %d for bank %q", bank.Type, bank.Name)
		}
		position += headerSize
		if size > len(data)-position {
			return flags, nil, fmt.Errorf("bank %q of %d bytes exceeds event", bank.Name, size)
		}
		bank.Data = data[position : position+size]
		position += padded(size)
		banks = append(banks, bank)
	}
	return flags, banks, nil
}
