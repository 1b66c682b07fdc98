package relay

// Puller implements the pull half of the relay policy: a local Subscribe
// for an identifier with no live publisher converts into an outbound RTMP
// client session against a configured upstream, and whatever it plays
// back is republished into the local Hub as an ordinary publisher. Once
// that publish lands, the subscriber that triggered the pull (and any
// later one for the same identifier) resolves against the Hub exactly as
// if a local encoder had connected.
import (
	"log/slog"
	"sync"

	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/rtmp/chunk"
)

// PullClient is the subset of *client.Client a Puller needs, kept narrow
// to avoid a dependency from this package onto the RTMP client package's
// full surface (mirrors RTMPClient's role for the push side).
type PullClient interface {
	Connect() error
	Play() error
	ReadMessage() (*chunk.Message, error)
	Close() error
}

// PullClientFactory creates a PullClient for a given upstream URL.
type PullClientFactory func(url string) (PullClient, error)

// PullSource maps one local identifier onto the upstream RTMP URL a
// Puller dials when a subscriber asks for it and nothing is live yet.
type PullSource struct {
	App  string
	Name string
	URL  string
}

// Puller owns the configured pull sources and, for each Hub subscribe-miss,
// runs at most one outbound session per identifier at a time.
type Puller struct {
	hub     *hub.Hub
	sources map[hub.StreamIdentifier]string
	factory PullClientFactory
	log     *slog.Logger

	mu     sync.Mutex
	active map[hub.StreamIdentifier]struct{}
	wg     sync.WaitGroup
	stop   chan struct{}
}

// NewPuller constructs a Puller. sources may be empty, in which case
// Start is a no-op and this package costs nothing when pull-relay is not
// configured.
func NewPuller(h *hub.Hub, sources []PullSource, factory PullClientFactory, log *slog.Logger) *Puller {
	if log == nil {
		log = slog.Default()
	}
	m := make(map[hub.StreamIdentifier]string, len(sources))
	for _, s := range sources {
		m[hub.NewRTMPIdentifier(s.App, s.Name)] = s.URL
	}
	return &Puller{
		hub:     h,
		sources: m,
		factory: factory,
		log:     log.With("component", "relay_puller"),
		active:  make(map[hub.StreamIdentifier]struct{}),
		stop:    make(chan struct{}),
	}
}

// Start begins tracking Hub subscribe-miss events in its own goroutine.
// Safe to call once; it returns without starting anything when no sources
// are configured.
func (p *Puller) Start() {
	if p == nil || p.hub == nil || len(p.sources) == 0 {
		return
	}
	p.wg.Add(1)
	go p.run()
}

func (p *Puller) run() {
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
			if ev.Kind == hub.BroadcastSubscribeMiss {
				p.startPull(ev.Identifier)
			}
		}
	}
}

func (p *Puller) startPull(id hub.StreamIdentifier) {
	url, configured := p.sources[id]
	if !configured {
		return
	}
	p.mu.Lock()
	if _, running := p.active[id]; running {
		p.mu.Unlock()
		return
	}
	p.active[id] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go p.pull(id, url)
}

// pull dials the upstream, plays the stream, and republishes every
// audio, video and script-data message it reads as a local Hub publisher until the
// upstream session ends or Close is called.
func (p *Puller) pull(id hub.StreamIdentifier, url string) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.active, id)
		p.mu.Unlock()
	}()

	c, err := p.factory(url)
	if err != nil {
		p.log.Error("pull relay client create", "stream", id.String(), "url", url, "error", err)
		return
	}
	if err := c.Connect(); err != nil {
		p.log.Error("pull relay connect", "stream", id.String(), "url", url, "error", err)
		return
	}
	defer c.Close()
	if err := c.Play(); err != nil {
		p.log.Error("pull relay play", "stream", id.String(), "url", url, "error", err)
		return
	}

	info := hub.NewPublisherInfo(hub.PublishRTMP, hub.NotifyInfo{RequestURL: url})
	frames := make(chan hub.FrameData, 256)
	accepted := hub.PublishStream(p.hub.EventSender(), id, info, hub.DataReceiver{FrameReceiver: frames}, &pullStreamHandler{})
	if err := <-accepted; err != nil {
		// A local publisher won the race while we were dialing upstream.
		close(frames)
		p.log.Debug("pull relay superseded by a live publisher", "stream", id.String())
		return
	}
	defer func() {
		hub.UnpublishStream(p.hub.EventSender(), id, info)
		close(frames)
	}()

	for {
		select {
		case <-p.stop:
			return
		default:
		}
		msg, err := c.ReadMessage()
		if err != nil {
			p.log.Debug("pull relay session ended", "stream", id.String(), "error", err)
			return
		}
		fd, ok := pulledMessageToFrame(msg)
		if !ok {
			continue
		}
		select {
		case frames <- fd:
		case <-p.stop:
			return
		}
	}
}

func pulledMessageToFrame(msg *chunk.Message) (hub.FrameData, bool) {
	switch msg.TypeID {
	case 8:
		return hub.FrameData{Kind: hub.FrameAudio, Timestamp: msg.Timestamp, Bytes: msg.Payload}, true
	case 9:
		return hub.FrameData{Kind: hub.FrameVideo, Timestamp: msg.Timestamp, Bytes: msg.Payload}, true
	case 18:
		return hub.FrameData{Kind: hub.FrameMetaData, Timestamp: msg.Timestamp, Bytes: msg.Payload}, true
	default:
		return hub.FrameData{}, false
	}
}

// Close stops tracking subscribe-miss events and waits for every active
// pull session to exit.
func (p *Puller) Close() {
	if p == nil {
		return
	}
	close(p.stop)
	p.wg.Wait()
}

// pullStreamHandler is the minimal StreamHandler a pulled stream needs: it
// carries no cached sequence headers of its own, since the upstream
// publisher already interleaves them into the message stream the way any
// RTMP encoder does, and a local subscriber joining mid-stream is subject
// to the same wait-for-next-keyframe behavior as joining a direct publish
// before its first keyframe.
type pullStreamHandler struct{}

func (h *pullStreamHandler) SendPriorData(hub.DataSender, hub.SubscribeType) {}

func (h *pullStreamHandler) GetStatisticData() (hub.StreamStatistics, bool) {
	return hub.StreamStatistics{}, false
}

func (h *pullStreamHandler) SendInformation(sender hub.InformationSender) {
	if sender != nil {
		close(sender)
	}
}
