package extractor

type TraceClass int

const (
	TraceIgnored TraceClass = iota
	// Charge-type short trace, recognised but never archived.
	TraceShort
	TraceQualifying
)

func (c TraceClass) String() string {
	switch c {
	case TraceShort:
		return "short"
	case TraceQualifying:
		return "qualifying"
	default:
		return "ignored"
	}
}

// Classify sorts a trace of n samples. Traces of threshold samples or more
// qualify for extraction; those strictly between shortMin and threshold
// are short traces.
func Classify(n, threshold, shortMin int) TraceClass {
	switch {
	case n >= threshold:
		return TraceQualifying
	case n > shortMin:
		return TraceShort
	default:
		return TraceIgnored
	}
}

func (c Configuration) Classify(ch *Channel) TraceClass {
	return Classify(ch.TotalLength(), c.Threshold, c.ShortTraceMin)
}
