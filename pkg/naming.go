package extractor

import "strconv"

// ArrayName is the archive key of the detector layout:
// eventnumber_detector_channeltype_samples.
func ArrayName(eventNumber uint32, detector int, t ChannelType, samples int) string {
	return strconv.FormatUint(uint64(eventNumber), 10) + "_" +
		strconv.Itoa(detector) + "_" +
		t.String() + "_" +
		strconv.Itoa(samples)
}

// ChannelArrayName is the archive key of the channel layout:
// eventnumber_detector_channel_channeltype_samples.
func ChannelArrayName(eventNumber uint32, detector int, channel int, t ChannelType, samples int) string {
	return strconv.FormatUint(uint64(eventNumber), 10) + "_" +
		strconv.Itoa(detector) + "_" +
		strconv.Itoa(channel) + "_" +
		t.String() + "_" +
		strconv.Itoa(samples)
}
