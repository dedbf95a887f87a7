package extractor

type EventType struct {
	EventNumber     uint32
	TriggerType     TriggerType
	ReadoutType     ReadoutType
	GlobalTimestamp uint64
	Detectors       []Detector
}

// Detectors have no identity beyond their position inside the event.
type Detector struct {
	Channels []Channel
}

type Channel struct {
	Name            string
	Type            ChannelType
	BaselineControl BaselineControl
	SampleRateLow   float64
	SampleRateHigh  float64
	PrepulseLength  uint32
	OnpulseLength   uint32
	PostpulseLength uint32
	Data            []uint16
}

// TotalLength is the number of samples of the trace. The decoder only
// builds channels whose buffer holds exactly this many samples.
func (c *Channel) TotalLength() int {
	return int(c.PrepulseLength) + int(c.OnpulseLength) + int(c.PostpulseLength)
}

type ChannelType uint8

const (
	Charge ChannelType = iota
	Phonon
)

func (t ChannelType) String() string {
	if t == Charge {
		return "Charge"
	}
	return "Phonon"
}

type BaselineControl uint8

const (
	BaselineInactive BaselineControl = iota
	BaselineActive
)

func (b BaselineControl) String() string {
	if b == BaselineInactive {
		return "Inactive"
	}
	return "Active"
}

type TriggerType uint32

const (
	TriggerUnknown TriggerType = iota
	TriggerPhysics
	TriggerRandom
	TriggerPulse
)

func (t TriggerType) String() string {
	switch t {
	case TriggerPhysics:
		return "Physics"
	case TriggerRandom:
		return "Random"
	case TriggerPulse:
		return "Pulse"
	default:
		return "Unknown"
	}
}

type ReadoutType uint32

const (
	ReadoutNone ReadoutType = iota
	ReadoutNormal
	ReadoutCalibration
)

func (r ReadoutType) String() string {
	switch r {
	case ReadoutNone:
		return "None"
	case ReadoutNormal:
		return "Normal"
	case ReadoutCalibration:
		return "Calibration"
	default:
		return "Unknown"
	}
}
