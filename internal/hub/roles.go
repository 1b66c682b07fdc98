package hub

// SubscribeType enumerates the kind of consumer attaching to a stream.
type SubscribeType uint8

const (
	SubscribePlayerRTMP SubscribeType = iota
	SubscribePlayerRTSP
	SubscribePlayerWHEP
	SubscribePlayerHTTPFLV
	SubscribePlayerHLS
	SubscribeRelayPush
)

func (t SubscribeType) String() string {
	switch t {
	case SubscribePlayerRTMP:
		return "player-rtmp"
	case SubscribePlayerRTSP:
		return "player-rtsp"
	case SubscribePlayerWHEP:
		return "player-whep"
	case SubscribePlayerHTTPFLV:
		return "player-http-flv"
	case SubscribePlayerHLS:
		return "player-hls"
	case SubscribeRelayPush:
		return "relay-push"
	default:
		return "unknown"
	}
}

// WantsFrame reports whether this subscriber type consumes the FrameData
// lane. Exactly one of WantsFrame/WantsPacket is true for every type.
func (t SubscribeType) WantsFrame() bool {
	switch t {
	case SubscribePlayerRTMP, SubscribePlayerHTTPFLV, SubscribePlayerHLS, SubscribeRelayPush:
		return true
	default:
		return false
	}
}

// WantsPacket reports whether this subscriber type consumes the PacketData
// (raw RTP) lane.
func (t SubscribeType) WantsPacket() bool { return !t.WantsFrame() }

// PublishType enumerates the kind of producer a publisher session represents.
type PublishType uint8

const (
	PublishRTMP PublishType = iota
	PublishRTSP
	PublishWHIP
	PublishRelayPull
)

func (t PublishType) String() string {
	switch t {
	case PublishRTMP:
		return "rtmp"
	case PublishRTSP:
		return "rtsp"
	case PublishWHIP:
		return "whip"
	case PublishRelayPull:
		return "relay-pull"
	default:
		return "unknown"
	}
}

// NotifyInfo carries the originating request metadata for a publisher or
// subscriber, used for logging and admin inspection only.
type NotifyInfo struct {
	RequestURL string
	RemoteAddr string
}

// SubscriberInfo identifies one subscription. ID is the only admin handle
// for ApiKickClient and is unique for the life of the process.
type SubscriberInfo struct {
	ID         string
	SubType    SubscribeType
	NotifyInfo NotifyInfo
}

// NewSubscriberInfo mints a SubscriberInfo with a fresh id.
func NewSubscriberInfo(subType SubscribeType, notify NotifyInfo) SubscriberInfo {
	return SubscriberInfo{ID: newID(), SubType: subType, NotifyInfo: notify}
}

// PublisherInfo identifies one publish session.
type PublisherInfo struct {
	ID         string
	PubType    PublishType
	NotifyInfo NotifyInfo
}

// NewPublisherInfo mints a PublisherInfo with a fresh id.
func NewPublisherInfo(pubType PublishType, notify NotifyInfo) PublisherInfo {
	return PublisherInfo{ID: newID(), PubType: pubType, NotifyInfo: notify}
}
