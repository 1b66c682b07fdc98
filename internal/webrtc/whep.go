package webrtc

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/alxayo/streamhub/internal/hub"
)

// WhepHandler serves published streams over the WebRTC-HTTP Egress
// Protocol: a viewer POSTs an SDP offer to /whep/<app>/<name> and gets an
// SDP answer carrying a sendonly audio/video track fed straight from the
// Hub's packet-granular lane, so the RTP payloads leaving this
// PeerConnection are the ones a WHIP publisher sent in; the pion track
// rewrites only the SSRC and payload type to those negotiated with this
// viewer.
type WhepHandler struct {
	hub *hub.Hub
	log *slog.Logger
	reg *sessionRegistry
}

func NewWhepHandler(h *hub.Hub, log *slog.Logger) *WhepHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WhepHandler{hub: h, log: log.With("component", "whep"), reg: newSessionRegistry()}
}

func (wh *WhepHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		wh.handleSubscribe(w, r)
	case http.MethodDelete:
		wh.handleTeardown(w, r)
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (wh *WhepHandler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	app, name, ok := parseStreamPath(r.URL.Path, "whep")
	if !ok {
		http.Error(w, "path must be /whep/<app>/<name>", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil || len(body) == 0 {
		http.Error(w, "missing SDP offer body", http.StatusBadRequest)
		return
	}

	pc, err := newPeerConnection()
	if err != nil {
		wh.log.Error("create peer connection", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "audio", name)
	if err != nil {
		_ = pc.Close()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	videoTrack, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000}, "video", name)
	if err != nil {
		_ = pc.Close()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if sender, err := pc.AddTrack(audioTrack); err != nil {
		wh.log.Warn("add audio track", "error", err)
	} else {
		go drainRTCP(sender)
	}
	if sender, err := pc.AddTrack(videoTrack); err != nil {
		wh.log.Warn("add video track", "error", err)
	} else {
		go drainRTCP(sender)
	}

	id := hub.NewWebRTCIdentifier(app, name)
	info := hub.NewSubscriberInfo(hub.SubscribePlayerWHEP, hub.NotifyInfo{RequestURL: r.URL.String(), RemoteAddr: r.RemoteAddr})
	packets := make(chan hub.PacketData, 512)
	hub.SubscribeStream(wh.hub.EventSender(), id, info, hub.DataSender{PacketSender: packets})

	var closeOnce sync.Once
	closeSub := func() {
		closeOnce.Do(func() {
			hub.UnsubscribeStream(wh.hub.EventSender(), id, info)
			_ = pc.Close()
		})
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed || s == webrtc.PeerConnectionStateDisconnected {
			closeSub()
		}
	})

	go func() {
		for pd := range packets {
			var pkt rtp.Packet
			if err := pkt.Unmarshal(pd.Bytes); err != nil {
				continue
			}
			var track *webrtc.TrackLocalStaticRTP
			if pd.Kind == hub.PacketAudio {
				track = audioTrack
			} else {
				track = videoTrack
			}
			if err := track.WriteRTP(&pkt); err != nil {
				return
			}
		}
	}()

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(body)}); err != nil {
		closeSub()
		http.Error(w, fmt.Sprintf("set remote description: %v", err), http.StatusBadRequest)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		closeSub()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		closeSub()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}
	<-gatherComplete

	local := pc.LocalDescription()

	sess := wh.reg.add(pc, closeSub)

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", fmt.Sprintf("/whep/%s/%s?session_id=%s", app, name, sess.id))
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(local.SDP))
}

func (wh *WhepHandler) handleTeardown(w http.ResponseWriter, r *http.Request) {
	sessID := r.URL.Query().Get("session_id")
	if sessID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sess := wh.reg.remove(sessID)
	if sess == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	sess.unregister()
	w.WriteHeader(http.StatusOK)
}
