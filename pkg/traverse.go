package extractor

// Visitor receives the detectors and channels of an event in order.
// Returning an error from any method stops the walk.
type Visitor interface {
	BeginDetector(event *EventType, detector int) error
	VisitChannel(event *EventType, detector int, channel int, ch *Channel) error
	EndDetector(event *EventType, detector int) error
}

// Walk runs v over every detector and channel of event.
func Walk(event *EventType, v Visitor) error {
	for i := range event.Detectors {
		if err := v.BeginDetector(event, i); err != nil {
			return err
		}
		channels := event.Detectors[i].Channels
		for j := range channels {
			if err := v.VisitChannel(event, i, j, &channels[j]); err != nil {
				return err
			}
		}
		if err := v.EndDetector(event, i); err != nil {
			return err
		}
	}
	return nil
}

// ChannelFunc adapts a per-channel function to a Visitor.
type ChannelFunc func(event *EventType, detector int, channel int, ch *Channel) error

func (f ChannelFunc) BeginDetector(*EventType, int) error { return nil }

func (f ChannelFunc) VisitChannel(event *EventType, detector int, channel int, ch *Channel) error {
	return f(event, detector, channel, ch)
}

func (f ChannelFunc) EndDetector(*EventType, int) error { return nil }
