package relay

// Pusher bridges the Hub's actor-model fan-out (C5) to the destination
// fan-out (DestinationManager) that already tracks per-URL metrics (it
// connects each destination once and does not reconnect). It listens to the Hub's lifecycle broadcast
// (C4) for publish/unpublish and, for every live stream, runs its own
// SubscribeRelayPush subscription so failing destinations never stall a
// Transmitter the way a direct call from the hot path would.
import (
	"log/slog"
	"sync"

	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/rtmp/chunk"
)

// Pusher owns one DestinationManager and fans every stream the Hub
// publishes out to it. Relay is intentionally all-or-nothing across
// streams, mirroring how a single restreaming edge node is configured in
// practice: one set of downstream destinations per process.
type Pusher struct {
	hub *hub.Hub
	mgr *DestinationManager
	log *slog.Logger

	mu     sync.Mutex
	active map[hub.StreamIdentifier]*pump
	wg     sync.WaitGroup
	stop   chan struct{}
}

// NewPusher constructs a Pusher. mgr may be nil, in which case Start is a
// no-op — this lets callers wire relay unconditionally and only pay for
// it when RelayDestinations is actually configured.
func NewPusher(h *hub.Hub, mgr *DestinationManager, log *slog.Logger) *Pusher {
	if log == nil {
		log = slog.Default()
	}
	return &Pusher{
		hub:    h,
		mgr:    mgr,
		log:    log.With("component", "relay_pusher"),
		active: make(map[hub.StreamIdentifier]*pump),
		stop:   make(chan struct{}),
	}
}

// Start begins tracking Hub publish/unpublish lifecycle events in its own
// goroutine. Safe to call once; returns immediately if mgr is nil.
func (p *Pusher) Start() {
	if p == nil || p.mgr == nil || p.hub == nil {
		return
	}
	p.wg.Add(1)
	go p.run()
}

func (p *Pusher) run() {
	defer p.wg.Done()
	listener := p.hub.Subscribe()
	defer p.hub.Unsubscribe(listener)

	for {
		select {
		case <-p.stop:
			return
		case ev, ok := <-listener.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case hub.BroadcastPublish:
				p.startPump(ev.Identifier)
			case hub.BroadcastUnPublish:
				p.stopPump(ev.Identifier)
			}
		}
	}
}

func (p *Pusher) startPump(id hub.StreamIdentifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.active[id]; exists {
		return
	}
	pm := newPump(p.hub, id, p.mgr, p.log)
	p.active[id] = pm
	go pm.run()
}

func (p *Pusher) stopPump(id hub.StreamIdentifier) {
	p.mu.Lock()
	pm, ok := p.active[id]
	delete(p.active, id)
	p.mu.Unlock()
	if ok {
		pm.close(p.hub)
	}
}

// Close stops the lifecycle listener and every active pump, then closes
// the underlying DestinationManager.
func (p *Pusher) Close() {
	if p == nil {
		return
	}
	close(p.stop)
	p.wg.Wait()

	p.mu.Lock()
	pumps := make([]*pump, 0, len(p.active))
	for id, pm := range p.active {
		pumps = append(pumps, pm)
		delete(p.active, id)
	}
	p.mu.Unlock()
	for _, pm := range pumps {
		pm.close(p.hub)
	}

	if p.mgr != nil {
		if err := p.mgr.Close(); err != nil {
			p.log.Error("destination manager close", "error", err)
		}
	}
}

// pump is one Hub subscription feeding a single DestinationManager.
type pump struct {
	identifier hub.StreamIdentifier
	info       hub.SubscriberInfo
	frames     chan hub.FrameData
	mgr        *DestinationManager
	log        *slog.Logger
}

func newPump(h *hub.Hub, id hub.StreamIdentifier, mgr *DestinationManager, log *slog.Logger) *pump {
	info := hub.NewSubscriberInfo(hub.SubscribeRelayPush, hub.NotifyInfo{})
	frames := make(chan hub.FrameData, 256)
	hub.SubscribeStream(h.EventSender(), id, info, hub.DataSender{FrameSender: frames})
	return &pump{identifier: id, info: info, frames: frames, mgr: mgr, log: log}
}

func (pm *pump) run() {
	for fd := range pm.frames {
		msg := relayFrameToMessage(fd)
		if msg == nil {
			continue
		}
		pm.mgr.RelayMessage(msg)
	}
}

func (pm *pump) close(h *hub.Hub) {
	hub.UnsubscribeStream(h.EventSender(), pm.identifier, pm.info)
}

func relayFrameToMessage(fd hub.FrameData) *chunk.Message {
	var typeID uint8
	switch fd.Kind {
	case hub.FrameVideo:
		typeID = 9
	case hub.FrameAudio:
		typeID = 8
	default:
		return nil // relay destinations only accept audio/video
	}
	return &chunk.Message{
		TypeID:        typeID,
		Timestamp:     fd.Timestamp,
		MessageLength: uint32(len(fd.Bytes)),
		Payload:       fd.Bytes,
	}
}
