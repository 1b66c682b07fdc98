package webrtc

import (
	"sync"
	"sync/atomic"

	"github.com/alxayo/streamhub/internal/hub"
)

// streamHandler is the hub.StreamHandler a WHIP publish session hands to
// the Hub. Packet-lane subscribers carry no decode state to bootstrap a
// newcomer with (the RTP stream is self-describing), so SendPriorData is a
// no-op here, unlike the frame-lane handlers RTMP/HTTP-FLV implement.
type streamHandler struct {
	mu  sync.RWMutex
	sdp string

	packetsSent uint64
	bytesSent   uint64
}

func newStreamHandler() *streamHandler { return &streamHandler{} }

// SendPriorData implements hub.StreamHandler.
func (h *streamHandler) SendPriorData(sender hub.DataSender, subType hub.SubscribeType) {}

// GetStatisticData implements hub.StreamHandler.
func (h *streamHandler) GetStatisticData() (hub.StreamStatistics, bool) {
	return hub.StreamStatistics{
		FramesSent: atomic.LoadUint64(&h.packetsSent),
		BytesSent:  atomic.LoadUint64(&h.bytesSent),
	}, true
}

// SendInformation implements hub.StreamHandler, replaying the publisher's
// original offer/answer SDP to a subscriber that asked for it ahead of its
// own handshake (e.g. an RTSP DESCRIBE pulling from a WHIP-published
// stream).
func (h *streamHandler) SendInformation(sender hub.InformationSender) {
	h.mu.RLock()
	sdp := h.sdp
	h.mu.RUnlock()
	if sdp != "" {
		sender <- hub.Information{Kind: hub.InformationSDP, SDP: sdp}
	}
	close(sender)
}

func (h *streamHandler) setSDP(sdp string) {
	h.mu.Lock()
	h.sdp = sdp
	h.mu.Unlock()
}

func (h *streamHandler) accounted(n int) {
	atomic.AddUint64(&h.packetsSent, 1)
	atomic.AddUint64(&h.bytesSent, uint64(n))
}
