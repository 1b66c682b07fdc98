package webrtc

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/alxayo/streamhub/internal/hub"
)

// WhipHandler ingests published streams over the WebRTC-HTTP Ingest
// Protocol. A publisher POSTs an SDP offer to /whip/<app>/<name> and gets
// back a 201 with the SDP answer and a Location header it later DELETEs
// to end the session, matching the WHIP session lifecycle.
type WhipHandler struct {
	hub *hub.Hub
	log *slog.Logger
	reg *sessionRegistry
}

func NewWhipHandler(h *hub.Hub, log *slog.Logger) *WhipHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WhipHandler{hub: h, log: log.With("component", "whip"), reg: newSessionRegistry()}
}

func (wh *WhipHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		wh.handlePublish(w, r)
	case http.MethodDelete:
		wh.handleTeardown(w, r)
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (wh *WhipHandler) handlePublish(w http.ResponseWriter, r *http.Request) {
	app, name, ok := parseStreamPath(r.URL.Path, "whip")
	if !ok {
		http.Error(w, "path must be /whip/<app>/<name>", http.StatusBadRequest)
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
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
		wh.log.Warn("add audio transceiver", "error", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
		wh.log.Warn("add video transceiver", "error", err)
	}

	id := hub.NewWebRTCIdentifier(app, name)
	info := hub.NewPublisherInfo(hub.PublishWHIP, hub.NotifyInfo{RequestURL: r.URL.String(), RemoteAddr: r.RemoteAddr})
	packets := make(chan hub.PacketData, 512)
	handler := newStreamHandler()

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := hub.PacketVideo
		if remote.Kind() == webrtc.RTPCodecTypeAudio {
			kind = hub.PacketAudio
		}
		wh.log.Info("whip track started", "stream", id.String(), "kind", remote.Kind().String())
		for {
			pkt, _, err := remote.ReadRTP()
			if err != nil {
				return
			}
			raw, err := pkt.Marshal()
			if err != nil {
				continue
			}
			pd := hub.PacketData{Kind: kind, Timestamp: pkt.Timestamp, Bytes: raw}
			handler.accounted(len(raw))
			select {
			case packets <- pd:
			default: // slow Transmitter consumer; drop rather than block the RTP reader
			}
		}
	})

	var closeOnce sync.Once
	teardown := func() {
		closeOnce.Do(func() {
			hub.UnpublishStream(wh.hub.EventSender(), id, info)
			close(packets)
			_ = pc.Close()
		})
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed || s == webrtc.PeerConnectionStateDisconnected {
			teardown()
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(body)}); err != nil {
		_ = pc.Close()
		http.Error(w, fmt.Sprintf("set remote description: %v", err), http.StatusBadRequest)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		_ = pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}
	<-gatherComplete

	local := pc.LocalDescription()
	handler.setSDP(local.SDP)

	recv := hub.DataReceiver{PacketReceiver: packets}
	accepted := hub.PublishStream(wh.hub.EventSender(), id, info, recv, handler)
	if err := <-accepted; err != nil {
		close(packets)
		_ = pc.Close()
		wh.log.Warn("publish rejected", "stream", id.String(), "error", err)
		status := http.StatusInternalServerError
		if hub.IsHubError(err) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}

	sess := wh.reg.add(pc, teardown)

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", fmt.Sprintf("/whip/%s/%s?session_id=%s", app, name, sess.id))
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(local.SDP))
}

func (wh *WhipHandler) handleTeardown(w http.ResponseWriter, r *http.Request) {
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

// parseStreamPath extracts app/name from "/<prefix>/<app>/<name>".
func parseStreamPath(path, prefix string) (app, name string, ok bool) {
	path = strings.TrimPrefix(path, "/"+prefix+"/")
	path = strings.Trim(path, "/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
