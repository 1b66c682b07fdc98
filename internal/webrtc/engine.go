// Package webrtc implements the WHIP (publish) and WHEP (subscribe) HTTP
// ingest/egress surface on top of pion/webrtc. Both directions carry media
// on the Hub's packet-granular lane: a WHIP publisher's incoming RTP is
// handed to the Hub byte-for-byte, and a WHEP subscriber's outgoing track
// is written from the same lane, so the pass-through never touches the
// frame-granular decode path RTMP/HTTP-FLV use.
package webrtc

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// newAPI builds a pion API restricted to the codecs this broker passes
// through untouched: H264 for video, Opus for audio. Ported from the
// example SFU's explicit-codec MediaEngine construction, which exists
// precisely because RegisterDefaultCodecs pulls in VP8/VP9 the Hub has no
// RTP depacketizer for on the RTSP/relay side.
func newAPI() *webrtc.API {
	m := &webrtc.MediaEngine{}
	_ = m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio)
	_ = m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "nack"}, {Type: "nack", Parameter: "pli"}, {Type: "goog-remb"},
			},
		},
		PayloadType: 102,
	}, webrtc.RTPCodecTypeVideo)

	ir := &interceptor.Registry{}
	_ = webrtc.RegisterDefaultInterceptors(m, ir)

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir))
}

var iceServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

func newPeerConnection() (*webrtc.PeerConnection, error) {
	return newAPI().NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
}

// drainRTCP reads (and discards) RTCP from an outbound RTPSender. pion
// requires this loop to run or the sender's receiver reports back up and
// stall; the PLI/NACK handling itself is already done by the default
// interceptor set newAPI registers, so nothing here needs to act on the
// packets beyond unmarshaling them off the wire.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		if _, err := rtcp.Unmarshal(buf[:n]); err != nil {
			return
		}
	}
}
