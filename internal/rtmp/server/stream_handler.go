package server

// RTMP StreamHandler (replaces the codec/sequence-header bookkeeping that
// used to live directly on registry.Stream). One instance is created per
// publish and handed to the Hub, which spawns SendPriorData per new
// subscriber and calls GetStatisticData for the admin surface.

import (
	"log/slog"
	"sync"

	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/rtmp/chunk"
	"github.com/alxayo/streamhub/internal/rtmp/media"
)

// rtmpStreamHandler detects codecs from the live payload, caches the AVC/AAC
// sequence headers and the most recent keyframe, and replays them to every
// subscriber that joins after they were produced.
type rtmpStreamHandler struct {
	streamKey string
	log       *slog.Logger

	mu          sync.RWMutex
	detector    media.CodecDetector
	audioCodec  string
	videoCodec  string
	audioSeqHdr *chunk.Message
	videoSeqHdr *chunk.Message
	lastKeyfrm  *chunk.Message
	framesSent  uint64
	bytesSent   uint64
}

func newRTMPStreamHandler(streamKey string, log *slog.Logger) *rtmpStreamHandler {
	if log == nil {
		log = slog.Default()
	}
	return &rtmpStreamHandler{streamKey: streamKey, log: log}
}

// StreamKey implements media.CodecStore.
func (h *rtmpStreamHandler) StreamKey() string { return h.streamKey }

// SetAudioCodec implements media.CodecStore.
func (h *rtmpStreamHandler) SetAudioCodec(codec string) {
	h.mu.Lock()
	h.audioCodec = codec
	h.mu.Unlock()
}

// SetVideoCodec implements media.CodecStore.
func (h *rtmpStreamHandler) SetVideoCodec(codec string) {
	h.mu.Lock()
	h.videoCodec = codec
	h.mu.Unlock()
}

// GetAudioCodec implements media.CodecStore.
func (h *rtmpStreamHandler) GetAudioCodec() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.audioCodec
}

// GetVideoCodec implements media.CodecStore.
func (h *rtmpStreamHandler) GetVideoCodec() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.videoCodec
}

// observe runs the teacher's one-shot codec detection and sequence-header
// caching logic (ported from registry.Stream.BroadcastMessage) against
// every outgoing chunk.Message, and accounts it for statistics.
func (h *rtmpStreamHandler) observe(msg *chunk.Message) {
	if msg.TypeID == 8 || msg.TypeID == 9 {
		h.detector.Process(msg.TypeID, msg.Payload, h, h.log)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.framesSent++
	h.bytesSent += uint64(len(msg.Payload))

	switch {
	case msg.TypeID == 9 && len(msg.Payload) >= 2 && msg.Payload[1] == 0:
		h.videoSeqHdr = cloneMessage(msg)
	case msg.TypeID == 8 && len(msg.Payload) >= 2 && (msg.Payload[0]>>4) == 0x0A && msg.Payload[1] == 0:
		h.audioSeqHdr = cloneMessage(msg)
	case msg.TypeID == 9 && isKeyframe(msg.Payload):
		h.lastKeyfrm = cloneMessage(msg)
	}
}

func isKeyframe(payload []byte) bool {
	return len(payload) >= 1 && (payload[0]>>4) == 1
}

func cloneMessage(msg *chunk.Message) *chunk.Message {
	clone := *msg
	clone.Payload = make([]byte, len(msg.Payload))
	copy(clone.Payload, msg.Payload)
	return &clone
}

// SendPriorData implements hub.StreamHandler. It replays the cached
// sequence headers and last keyframe to a freshly registered subscriber,
// ahead of whatever live frames the Transmitter is already forwarding.
func (h *rtmpStreamHandler) SendPriorData(sender hub.DataSender, subType hub.SubscribeType) {
	if sender.FrameSender == nil {
		return
	}

	h.mu.RLock()
	videoCodec, audioCodec := h.videoCodec, h.audioCodec
	audioSeqHdr, videoSeqHdr, lastKeyfrm := h.audioSeqHdr, h.videoSeqHdr, h.lastKeyfrm
	h.mu.RUnlock()

	if videoCodec != "" || audioCodec != "" {
		send(sender.FrameSender, hub.FrameData{
			Kind: hub.FrameMediaInfo,
			MediaInfo: hub.MediaInfo{
				VideoCodec:     codecToVideoCodec(videoCodec),
				AudioClockRate: 44100,
				VideoClockRate: 90000,
			},
		})
	}
	if videoSeqHdr != nil {
		send(sender.FrameSender, messageToFrame(videoSeqHdr))
	}
	if audioSeqHdr != nil {
		send(sender.FrameSender, messageToFrame(audioSeqHdr))
	}
	if lastKeyfrm != nil {
		send(sender.FrameSender, messageToFrame(lastKeyfrm))
	}
}

func send(ch hub.FrameDataSender, fd hub.FrameData) {
	defer func() { recover() }() // channel may already have been evicted
	ch <- fd
}

func codecToVideoCodec(name string) hub.VideoCodec {
	if name == "HEVC" || name == "H265" {
		return hub.VideoCodecH265
	}
	return hub.VideoCodecH264
}

func messageToFrame(msg *chunk.Message) hub.FrameData {
	kind := hub.FrameVideo
	if msg.TypeID == 8 {
		kind = hub.FrameAudio
	}
	return hub.FrameData{Kind: kind, Timestamp: msg.Timestamp, Bytes: msg.Payload}
}

// GetStatisticData implements hub.StreamHandler.
func (h *rtmpStreamHandler) GetStatisticData() (hub.StreamStatistics, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return hub.StreamStatistics{
		VideoCodec:     codecToVideoCodec(h.videoCodec),
		AudioClockRate: 44100,
		VideoClockRate: 90000,
		FramesSent:     h.framesSent,
		BytesSent:      h.bytesSent,
	}, true
}

// SendInformation implements hub.StreamHandler. RTMP publishers carry no
// out-of-band SDP; the channel is closed immediately so a requester does
// not block waiting for data that will never arrive.
func (h *rtmpStreamHandler) SendInformation(sender hub.InformationSender) {
	if sender != nil {
		close(sender)
	}
}
