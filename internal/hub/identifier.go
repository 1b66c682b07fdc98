// Package hub implements the central stream registry and per-stream
// fan-out described for the streaming media broker: a Hub actor that
// tracks one Transmitter per live stream and couples publishers to
// subscribers across RTMP, RTSP, WebRTC and RTP front ends.
package hub

import "fmt"

// Protocol identifies the wire-protocol family a StreamIdentifier belongs to.
type Protocol uint8

const (
	ProtocolRTMP Protocol = iota
	ProtocolRTSP
	ProtocolWebRTC
	ProtocolRTP
)

func (p Protocol) String() string {
	switch p {
	case ProtocolRTMP:
		return "rtmp"
	case ProtocolRTSP:
		return "rtsp"
	case ProtocolWebRTC:
		return "webrtc"
	case ProtocolRTP:
		return "rtp"
	default:
		return "unknown"
	}
}

// StreamIdentifier is a comparable key naming one live stream. It is the
// map key the Hub uses for its stream registry, so every field that
// participates in identity must be comparable (no slices or maps).
//
// Only the fields relevant to Protocol are meaningful:
//
//	RTMP/WebRTC: App, Name
//	RTSP:        Path
//	RTP:         App, Name, SSRC
type StreamIdentifier struct {
	Protocol Protocol
	App      string
	Name     string
	Path     string
	SSRC     uint32
}

// NewRTMPIdentifier builds an RTMP (or HTTP-FLV/HLS, which share the RTMP
// app/name namespace) stream identifier.
func NewRTMPIdentifier(app, name string) StreamIdentifier {
	return StreamIdentifier{Protocol: ProtocolRTMP, App: app, Name: name}
}

// NewRTSPIdentifier builds an RTSP stream identifier keyed by request path.
func NewRTSPIdentifier(path string) StreamIdentifier {
	return StreamIdentifier{Protocol: ProtocolRTSP, Path: path}
}

// NewWebRTCIdentifier builds a WebRTC WHIP/WHEP stream identifier.
func NewWebRTCIdentifier(app, name string) StreamIdentifier {
	return StreamIdentifier{Protocol: ProtocolWebRTC, App: app, Name: name}
}

// NewRTPIdentifier builds a raw-RTP relay identifier.
func NewRTPIdentifier(app, name string, ssrc uint32) StreamIdentifier {
	return StreamIdentifier{Protocol: ProtocolRTP, App: app, Name: name, SSRC: ssrc}
}

// String returns a stable, human-readable form, primarily for logging.
func (id StreamIdentifier) String() string {
	switch id.Protocol {
	case ProtocolRTSP:
		return fmt.Sprintf("rtsp:%s", id.Path)
	case ProtocolRTP:
		return fmt.Sprintf("rtp:%s/%s#%d", id.App, id.Name, id.SSRC)
	default:
		return fmt.Sprintf("%s:%s/%s", id.Protocol, id.App, id.Name)
	}
}
