package hub

// This file collects small convenience wrappers around raw StreamHubEvent
// sends, matching the shape of the events defined in events.go but saving
// every session adapter from repeating the same channel-send boilerplate.
// They are optional: nothing stops a caller from sending a StreamHubEvent
// to EventSender() directly.

// PublishStream emits a Publish event and returns a channel that carries
// the Hub's accept/reject decision: nil once the stream is registered, or
// a DuplicatePublisherError if the identifier already has a live
// publisher. The caller must wait on it before treating the stream as
// live and must close its own send side of recv on rejection.
func PublishStream(sender chan<- StreamHubEvent, id StreamIdentifier, info PublisherInfo, recv DataReceiver, handler StreamHandler) <-chan error {
	accepted := make(chan error, 1)
	sender <- StreamHubEvent{
		Kind:          EventPublish,
		Identifier:    id,
		PublisherInfo: info,
		Receiver:      recv,
		StreamHandler: handler,
		Accepted:      accepted,
	}
	return accepted
}

// UnpublishStream emits an UnPublish event.
func UnpublishStream(sender chan<- StreamHubEvent, id StreamIdentifier, info PublisherInfo) {
	sender <- StreamHubEvent{Kind: EventUnPublish, Identifier: id, UnpublishInfo: info}
}

// SubscribeStream emits a Subscribe event. The caller must watch for the
// DataSender it supplied being closed without ever receiving data, which
// signals StreamNotFound or IncompatibleSubscriber.
func SubscribeStream(sender chan<- StreamHubEvent, id StreamIdentifier, info SubscriberInfo, out DataSender) {
	sender <- StreamHubEvent{Kind: EventSubscribe, Identifier: id, SubscriberInfo: info, Sender: out}
}

// UnsubscribeStream emits an UnSubscribe event.
func UnsubscribeStream(sender chan<- StreamHubEvent, id StreamIdentifier, info SubscriberInfo) {
	sender <- StreamHubEvent{Kind: EventUnSubscribe, Identifier: id, SubscriberInfo: info}
}

// RequestInformation emits a Request event asking the publisher's handler
// to push Information (e.g. SDP) to infoSender.
func RequestInformation(sender chan<- StreamHubEvent, id StreamIdentifier, infoSender InformationSender) {
	sender <- StreamHubEvent{Kind: EventRequest, Identifier: id, InfoSender: infoSender}
}

// KickClient emits an ApiKickClient event for the given subscriber or
// publisher id.
func KickClient(sender chan<- StreamHubEvent, id string) {
	sender <- StreamHubEvent{Kind: EventAPIKickClient, KickID: id}
}

// CollectStatistics emits an ApiStatistic event and blocks until it has
// read exactly as many StreamStatistics as the Hub reported active
// streams at collection time (round-trip property R3), or ctxDone fires.
func CollectStatistics(sender chan<- StreamHubEvent, ctxDone <-chan struct{}) []StreamStatistics {
	sizeReply := make(chan int, 1)
	dataCh := make(chan StreamStatistics, 16)
	sender <- StreamHubEvent{Kind: EventAPIStatistic, SizeReply: sizeReply, StatisticSender: dataCh}

	var want int
	select {
	case want = <-sizeReply:
	case <-ctxDone:
		return nil
	}

	out := make([]StreamStatistics, 0, want)
	for len(out) < want {
		select {
		case s := <-dataCh:
			out = append(out, s)
		case <-ctxDone:
			return out
		}
	}
	return out
}
