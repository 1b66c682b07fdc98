package hub

import (
	"log/slog"
	"sync"
)

// Hub is the process-wide stream registry described for C5. All mutation
// of its internal maps happens inside the single goroutine started by
// Run, so no additional locking is needed around the registry itself;
// this is the actor-vs-mutex tradeoff: event volume is bounded by
// session churn, not media throughput, so serializing control events
// through one goroutine is cheap.
type Hub struct {
	inbox       chan StreamHubEvent
	broadcaster *Broadcaster
	metrics     *Metrics
	log         *slog.Logger

	streams       map[StreamIdentifier]*transmitter
	clientIndex   map[string]PubSubInfo
	subscriberLoc map[string]StreamIdentifier // subscriber id -> stream, for UnSubscribe/Kick routing

	stopOnce sync.Once
	stopped  chan struct{}
}

// New constructs a Hub. log may be nil, in which case slog.Default() is
// used; metrics may be nil, in which case metrics are disabled.
func New(log *slog.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics
	}
	return &Hub{
		inbox:         make(chan StreamHubEvent, 256),
		broadcaster:   NewBroadcaster(),
		metrics:       metrics,
		log:           log.With("component", "hub"),
		streams:       make(map[StreamIdentifier]*transmitter),
		clientIndex:   make(map[string]PubSubInfo),
		subscriberLoc: make(map[string]StreamIdentifier),
		stopped:       make(chan struct{}),
	}
}

// EventSender returns the send-only handle session adapters use to emit
// StreamHubEvents. Multiple producers may hold and use clones of this
// value concurrently; it is itself already directional and safe to share.
func (h *Hub) EventSender() chan<- StreamHubEvent { return h.inbox }

// Subscribe registers a new BroadcastListener for lifecycle signals
// (publish/unpublish/subscribe/unsubscribe). Callers must Unsubscribe
// when done listening.
func (h *Hub) Subscribe() *BroadcastListener { return h.broadcaster.Subscribe() }

// Unsubscribe removes a previously registered BroadcastListener.
func (h *Hub) Unsubscribe(l *BroadcastListener) { h.broadcaster.Unsubscribe(l) }

// Run is the Hub's event loop. It blocks until the inbox is closed (via
// Stop), processing one StreamHubEvent at a time so
// every invariant in §4.3 holds without additional synchronization.
func (h *Hub) Run() {
	for ev := range h.inbox {
		h.handle(ev)
	}
	h.shutdown()
}

// Stop closes the event inbox, causing Run to drain remaining events and
// return. It is safe to call multiple times.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.inbox) })
}

// Done returns a channel closed once Run has fully returned and every
// Transmitter has been torn down.
func (h *Hub) Done() <-chan struct{} { return h.stopped }

func (h *Hub) shutdown() {
	for id, t := range h.streams {
		close(t.events)
		<-t.done
		delete(h.streams, id)
	}
	h.broadcaster.Close()
	close(h.stopped)
}

func (h *Hub) handle(ev StreamHubEvent) {
	switch ev.Kind {
	case EventPublish:
		h.handlePublish(ev)
	case EventUnPublish:
		h.handleUnPublish(ev)
	case EventSubscribe:
		h.handleSubscribe(ev)
	case EventUnSubscribe:
		h.handleUnSubscribe(ev)
	case EventAPIStatistic:
		h.handleAPIStatistic(ev)
	case EventAPIKickClient:
		h.handleAPIKickClient(ev)
	case EventRequest:
		h.handleRequest(ev)
	}
}

func (h *Hub) handlePublish(ev StreamHubEvent) {
	if _, exists := h.streams[ev.Identifier]; exists {
		err := NewDuplicatePublisherError(ev.Identifier)
		h.log.Warn("duplicate publish rejected", "stream", ev.Identifier.String(), "publisher", ev.PublisherInfo.ID, "error", err)
		if ev.Accepted != nil {
			ev.Accepted <- err
		}
		return
	}

	t := newTransmitter(ev.Identifier, ev.PublisherInfo, ev.Receiver, ev.StreamHandler, h.log, h.metrics)
	h.streams[ev.Identifier] = t
	h.clientIndex[ev.PublisherInfo.ID] = PubSubInfo{Kind: PubSubInfoPublish, Identifier: ev.Identifier}
	h.metrics.activeStreams.Inc()

	go t.run()

	if ev.Accepted != nil {
		ev.Accepted <- nil
	}

	h.log.Info("publish", "stream", ev.Identifier.String(), "publisher", ev.PublisherInfo.ID)
	h.broadcaster.Publish(BroadcastEvent{Kind: BroadcastPublish, Identifier: ev.Identifier})
}

func (h *Hub) handleUnPublish(ev StreamHubEvent) {
	t, ok := h.streams[ev.Identifier]
	if !ok {
		return
	}
	if t.publisher.ID != ev.UnpublishInfo.ID {
		// A rejected duplicate publisher unpublishing must not tear down
		// the stream actually owned by a different publisher id.
		return
	}
	delete(h.streams, ev.Identifier)
	delete(h.clientIndex, ev.UnpublishInfo.ID)
	h.metrics.activeStreams.Dec()

	t.send(TransmitterEvent{Kind: TransmitterUnPublish})

	h.log.Info("unpublish", "stream", ev.Identifier.String(), "publisher", ev.UnpublishInfo.ID)
	h.broadcaster.Publish(BroadcastEvent{Kind: BroadcastUnPublish, Identifier: ev.Identifier})
}

func (h *Hub) handleSubscribe(ev StreamHubEvent) {
	t, ok := h.streams[ev.Identifier]
	if !ok {
		h.log.Debug("subscribe to absent stream", "stream", ev.Identifier.String(), "error", NewStreamNotFoundError(ev.Identifier))
		ev.Sender.close()
		h.broadcaster.Publish(BroadcastEvent{Kind: BroadcastSubscribeMiss, Identifier: ev.Identifier})
		return
	}
	if !ev.Sender.compatibleWith(t.receiver) {
		h.log.Debug("incompatible subscriber rejected", "error", NewIncompatibleSubscriberError(ev.Identifier, ev.SubscriberInfo.SubType))
		ev.Sender.close()
		return
	}

	h.clientIndex[ev.SubscriberInfo.ID] = PubSubInfo{Kind: PubSubInfoSubscribe, Identifier: ev.Identifier}
	h.subscriberLoc[ev.SubscriberInfo.ID] = ev.Identifier

	if !t.send(TransmitterEvent{Kind: TransmitterSubscribe, SubscriberInfo: ev.SubscriberInfo, Sender: ev.Sender}) {
		delete(h.clientIndex, ev.SubscriberInfo.ID)
		delete(h.subscriberLoc, ev.SubscriberInfo.ID)
		ev.Sender.close()
		return
	}

	h.broadcaster.Publish(BroadcastEvent{Kind: BroadcastSubscribe, Identifier: ev.Identifier})
}

func (h *Hub) handleUnSubscribe(ev StreamHubEvent) {
	id, ok := h.subscriberLoc[ev.SubscriberInfo.ID]
	if !ok {
		id = ev.Identifier
	}
	t, ok := h.streams[id]
	if !ok {
		return
	}
	delete(h.clientIndex, ev.SubscriberInfo.ID)
	delete(h.subscriberLoc, ev.SubscriberInfo.ID)

	t.send(TransmitterEvent{Kind: TransmitterUnSubscribe, SubscriberInfo: ev.SubscriberInfo})

	h.broadcaster.Publish(BroadcastEvent{Kind: BroadcastUnSubscribe, Identifier: id})
}

func (h *Hub) handleAPIStatistic(ev StreamHubEvent) {
	select {
	case ev.SizeReply <- len(h.streams):
	default:
	}
	for _, t := range h.streams {
		t.send(TransmitterEvent{Kind: TransmitterAPI, StatisticSender: ev.StatisticSender})
	}
}

func (h *Hub) handleAPIKickClient(ev StreamHubEvent) {
	info, ok := h.clientIndex[ev.KickID]
	if !ok {
		return
	}
	t, ok := h.streams[info.Identifier]
	if !ok {
		return
	}
	switch info.Kind {
	case PubSubInfoPublish:
		h.handleUnPublish(StreamHubEvent{Kind: EventUnPublish, Identifier: info.Identifier, UnpublishInfo: PublisherInfo{ID: ev.KickID}})
	case PubSubInfoSubscribe:
		t.send(TransmitterEvent{Kind: TransmitterUnSubscribe, SubscriberInfo: SubscriberInfo{ID: ev.KickID}})
		delete(h.clientIndex, ev.KickID)
		delete(h.subscriberLoc, ev.KickID)
	}
}

func (h *Hub) handleRequest(ev StreamHubEvent) {
	t, ok := h.streams[ev.Identifier]
	if !ok {
		if ev.InfoSender != nil {
			close(ev.InfoSender)
		}
		return
	}
	if !t.send(TransmitterEvent{Kind: TransmitterRequest, InfoSender: ev.InfoSender}) {
		if ev.InfoSender != nil {
			close(ev.InfoSender)
		}
	}
}

