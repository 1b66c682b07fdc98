package hub

import (
	"fmt"
	"log/slog"
)

// transmitter is the per-stream fan-out actor described for C4. It owns
// one publisher's data receiver and every subscriber currently attached
// to the stream, and runs as a single goroutine so the subscriber tables
// never need their own lock.
type transmitter struct {
	identifier StreamIdentifier
	publisher  PublisherInfo
	receiver   DataReceiver
	handler    StreamHandler

	events chan TransmitterEvent

	frameSubs  map[string]FrameDataSender
	packetSubs map[string]PacketDataSender

	log     *slog.Logger
	metrics *Metrics

	// done is closed when the loop exits; send uses it to stop delivering
	// control events to a loop that has already exited. The Hub does not
	// watch done: after a publisher-side channel closure (crash) the
	// stream stays registered until an UnPublish for it arrives.
	done chan struct{}
}

func newTransmitter(id StreamIdentifier, pub PublisherInfo, recv DataReceiver, h StreamHandler, log *slog.Logger, m *Metrics) *transmitter {
	if m == nil {
		m = noopMetrics
	}
	return &transmitter{
		identifier: id,
		publisher:  pub,
		receiver:   recv,
		handler:    h,
		events:     make(chan TransmitterEvent, 64),
		frameSubs:  make(map[string]FrameDataSender),
		packetSubs: make(map[string]PacketDataSender),
		log:        log.With("component", "transmitter", "stream", id.String()),
		metrics:    m,
		done:       make(chan struct{}),
	}
}

// run is the transmitter's main loop. It multiplexes control events and
// the publisher's two media lanes, per §4.4: media is delivered to every
// matching subscriber in publisher order, and a subscriber whose channel
// send fails is evicted rather than allowed to stall the loop.
func (t *transmitter) run() {
	defer close(t.done)
	defer t.closeAllSubscribers()

	frames := t.receiver.FrameReceiver
	packets := t.receiver.PacketReceiver

	for {
		select {
		case ev, ok := <-t.events:
			if !ok {
				return
			}
			if t.handleEvent(ev) {
				return
			}

		case fd, ok := <-frames:
			if !ok {
				// Publisher side closed without an explicit UnPublish:
				// treat as publisher crash/termination.
				return
			}
			t.broadcastFrame(fd)

		case pd, ok := <-packets:
			if !ok {
				return
			}
			t.broadcastPacket(pd)
		}
	}
}

// send delivers ev to the transmitter's control inbox. Control events must
// never be dropped while the stream is alive, so send blocks rather than
// selecting against a full buffer; it only gives up once done is closed,
// meaning the transmitter's loop has already exited and nothing will ever
// drain events again. Reports whether ev was actually delivered.
func (t *transmitter) send(ev TransmitterEvent) bool {
	select {
	case t.events <- ev:
		return true
	case <-t.done:
		return false
	}
}

// invokeHandler runs fn in its own goroutine, recovering a panic raised by
// the StreamHandler so one misbehaving handler cannot take down the
// process; the failure is logged as a HandlerError instead.
func (t *transmitter) invokeHandler(op string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.log.Error("stream handler panicked", "error", NewHandlerError(op, fmt.Errorf("%v", r)))
			}
		}()
		fn()
	}()
}

// handleEvent processes one TransmitterEvent. It returns true if the
// transmitter should terminate.
func (t *transmitter) handleEvent(ev TransmitterEvent) bool {
	switch ev.Kind {
	case TransmitterSubscribe:
		t.addSubscriber(ev.SubscriberInfo, ev.Sender)
		return false

	case TransmitterUnSubscribe:
		t.removeSubscriber(ev.SubscriberInfo)
		return false

	case TransmitterUnPublish:
		return true

	case TransmitterAPI:
		stats, _ := t.handler.GetStatisticData()
		stats.Identifier = t.identifier
		stats.PublisherID = t.publisher.ID
		stats.SubscriberCount = len(t.frameSubs) + len(t.packetSubs)
		select {
		case ev.StatisticSender <- stats:
		default:
		}
		return false

	case TransmitterRequest:
		t.invokeHandler("send_information", func() { t.handler.SendInformation(ev.InfoSender) })
		return false

	default:
		return false
	}
}

// addSubscriber registers sub before spawning prior-data priming, so no
// live item delivered after registration can be missed between priming
// and registration (§4.4).
func (t *transmitter) addSubscriber(info SubscriberInfo, sender DataSender) {
	if !sender.compatibleWith(t.receiver) {
		t.log.Warn("rejecting incompatible subscriber", "error", NewIncompatibleSubscriberError(t.identifier, info.SubType))
		sender.close()
		return
	}

	if sender.FrameSender != nil {
		t.frameSubs[info.ID] = sender.FrameSender
	} else {
		t.packetSubs[info.ID] = sender.PacketSender
	}
	t.metrics.activeSubscribers.Inc()

	t.invokeHandler("send_prior_data", func() { t.handler.SendPriorData(sender, info.SubType) })
}

func (t *transmitter) removeSubscriber(info SubscriberInfo) {
	if s, ok := t.frameSubs[info.ID]; ok {
		delete(t.frameSubs, info.ID)
		close(s)
		t.metrics.activeSubscribers.Dec()
		return
	}
	if s, ok := t.packetSubs[info.ID]; ok {
		delete(t.packetSubs, info.ID)
		close(s)
		t.metrics.activeSubscribers.Dec()
	}
}

func (t *transmitter) broadcastFrame(fd FrameData) {
	t.metrics.framesRelayed.Inc()
	for id, sub := range t.frameSubs {
		if !trySendFrame(sub, fd) {
			delete(t.frameSubs, id)
			t.metrics.activeSubscribers.Dec()
			t.metrics.subscriberEvicted.Inc()
			t.log.Debug("evicted slow frame subscriber", "subscriber", id)
		}
	}
}

func (t *transmitter) broadcastPacket(pd PacketData) {
	t.metrics.packetsRelayed.Inc()
	for id, sub := range t.packetSubs {
		if !trySendPacket(sub, pd) {
			delete(t.packetSubs, id)
			t.metrics.activeSubscribers.Dec()
			t.metrics.subscriberEvicted.Inc()
			t.log.Debug("evicted slow packet subscriber", "subscriber", id)
		}
	}
}

func (t *transmitter) closeAllSubscribers() {
	for id, s := range t.frameSubs {
		close(s)
		delete(t.frameSubs, id)
	}
	for id, s := range t.packetSubs {
		close(s)
		delete(t.packetSubs, id)
	}
}

// trySendFrame attempts a non-blocking send, recovering from a send on an
// already-closed channel (which panics) by treating it as a failed send.
// A subscriber session closes its own receive end to signal it can no
// longer keep up; that is indistinguishable from a race with eviction,
// so both must be handled the same way: remove from the table.
func trySendFrame(ch FrameDataSender, fd FrameData) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- fd:
		return true
	default:
		return false
	}
}

func trySendPacket(ch PacketDataSender, pd PacketData) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- pd:
		return true
	default:
		return false
	}
}
