package hub

// StreamStatistics is a point-in-time snapshot of one stream's delivery
// state, returned by a StreamHandler's GetStatisticData and collected by
// the Hub for ApiStatistic.
type StreamStatistics struct {
	Identifier      StreamIdentifier
	PublisherID     string
	SubscriberCount int
	VideoCodec      VideoCodec
	AudioClockRate  uint32
	VideoClockRate  uint32
	FramesSent      uint64
	BytesSent       uint64
}

// StreamHandler is the capability a publisher session supplies alongside
// its Publish event. The Transmitter holds a shared reference for the
// life of the stream. Implementations must be safe for concurrent use,
// since SendPriorData is invoked once per new subscriber, potentially
// concurrently with GetStatisticData/SendInformation calls driven by the
// admin path.
type StreamHandler interface {
	// SendPriorData synthesizes whatever bootstrap data a freshly
	// registered subscriber needs before it can make sense of live
	// frames (MediaInfo, SPS/PPS, last keyframe, metadata) and writes it
	// to sender. The Transmitter calls this from a spawned goroutine,
	// never inline on its hot path; implementations may block.
	SendPriorData(sender DataSender, subType SubscribeType)

	// GetStatisticData returns a snapshot, or ok=false if this publisher
	// has none to report yet; the Transmitter then reports only the
	// identity and subscriber-count fields for the stream.
	GetStatisticData() (stats StreamStatistics, ok bool)

	// SendInformation pushes out-of-band Information (e.g. SDP) to a
	// subscriber that requested it via a Request event.
	SendInformation(sender InformationSender)
}
