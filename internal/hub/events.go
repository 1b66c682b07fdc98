package hub

// StreamHubEvent is the message type accepted by the Hub's single event
// inbox. Exactly one of the Kind-tagged field groups is meaningful per
// event, mirroring the sum type the Hub's source of truth defines.
type StreamHubEventKind uint8

const (
	EventPublish StreamHubEventKind = iota
	EventUnPublish
	EventSubscribe
	EventUnSubscribe
	EventAPIStatistic
	EventAPIKickClient
	EventRequest
)

// StreamHubEvent is sent by session adapters to the Hub's event_sender.
type StreamHubEvent struct {
	Kind StreamHubEventKind

	Identifier StreamIdentifier

	// Publish
	PublisherInfo PublisherInfo
	Receiver      DataReceiver
	StreamHandler StreamHandler
	// Accepted carries the Hub's accept/reject decision back to the
	// publisher session. Buffered by the caller (PublishStream) so this
	// send never blocks the Hub's single goroutine. nil on acceptance,
	// a DuplicatePublisherError if the identifier is already live.
	Accepted chan<- error

	// UnPublish
	UnpublishInfo PublisherInfo

	// Subscribe / UnSubscribe
	SubscriberInfo SubscriberInfo
	Sender         DataSender

	// ApiStatistic
	StatisticSender chan StreamStatistics
	SizeReply       chan int

	// ApiKickClient
	KickID string

	// Request
	InfoSender InformationSender
}

// TransmitterEventKind enumerates the control messages a Hub forwards to a
// single stream's Transmitter.
type TransmitterEventKind uint8

const (
	TransmitterSubscribe TransmitterEventKind = iota
	TransmitterUnSubscribe
	TransmitterUnPublish
	TransmitterAPI
	TransmitterRequest
)

func (k TransmitterEventKind) String() string {
	switch k {
	case TransmitterSubscribe:
		return "subscribe"
	case TransmitterUnSubscribe:
		return "unsubscribe"
	case TransmitterUnPublish:
		return "unpublish"
	case TransmitterAPI:
		return "api"
	case TransmitterRequest:
		return "request"
	default:
		return "unknown"
	}
}

// TransmitterEvent is sent by the Hub (or forwarded from a StreamHubEvent)
// to a single stream's Transmitter goroutine.
type TransmitterEvent struct {
	Kind TransmitterEventKind

	SubscriberInfo SubscriberInfo
	Sender         DataSender

	StatisticSender chan StreamStatistics

	InfoSender InformationSender
}

// BroadcastEventKind enumerates the cross-cutting signals the Hub fans out
// to every broadcast listener (relay pollers, metrics, hooks).
type BroadcastEventKind uint8

const (
	BroadcastPublish BroadcastEventKind = iota
	BroadcastUnPublish
	BroadcastSubscribe
	BroadcastUnSubscribe
	// BroadcastSubscribeMiss fires instead of BroadcastSubscribe when a
	// Subscribe targets an identifier with no live publisher, so a pull
	// relay can distinguish "start pulling" from "subscriber joined".
	BroadcastSubscribeMiss
)

func (k BroadcastEventKind) String() string {
	switch k {
	case BroadcastPublish:
		return "publish"
	case BroadcastUnPublish:
		return "unpublish"
	case BroadcastSubscribe:
		return "subscribe"
	case BroadcastUnSubscribe:
		return "unsubscribe"
	case BroadcastSubscribeMiss:
		return "subscribe_miss"
	default:
		return "unknown"
	}
}

// BroadcastEvent is a lightweight, lossy-on-overload signal describing a
// publish/subscribe lifecycle transition. It carries no payload beyond the
// identifier: listeners that need detail query the Hub directly.
type BroadcastEvent struct {
	Kind       BroadcastEventKind
	Identifier StreamIdentifier
}

// PubSubInfoKind discriminates PubSubInfo.
type PubSubInfoKind uint8

const (
	PubSubInfoSubscribe PubSubInfoKind = iota
	PubSubInfoPublish
)

// PubSubInfo is the Hub's reverse index value for ApiKickClient: given a
// client id, which identifier and role does it hold.
type PubSubInfo struct {
	Kind       PubSubInfoKind
	Identifier StreamIdentifier
}
