package httpflv

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alxayo/streamhub/internal/hub"
)

// Handler returns an http.Handler serving every published RTMP stream as
// HTTP-FLV at /<app>/<name>.flv, reusing the RTMP app/name namespace (the
// same StreamIdentifier a publisher registers under) rather than minting a
// parallel naming scheme.
func Handler(h *hub.Hub, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "httpflv")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app, name, ok := parsePath(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		id := hub.NewRTMPIdentifier(app, name)
		if err := ServeStream(w, h, id, log); err != nil {
			log.Warn("httpflv stream ended", "stream", id.String(), "error", err)
		}
	})
}

// parsePath extracts app/name from "/app/name.flv".
func parsePath(path string) (app, name string, ok bool) {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, ".flv")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ServeStream subscribes to identifier on h and writes the live stream to
// w as HTTP-FLV until the subscription ends (UnPublish, kick, or eviction)
// or w returns a write error. It blocks for the life of the subscription,
// so callers run it directly from an http.Handler goroutine.
//
// A StreamHandler's SendPriorData is expected to prime the subscriber
// with a leading FrameMediaInfo frame (so the FLV header's audio/video
// presence bits are accurate) followed by cached sequence headers, the
// same priming contract every other subscriber lane relies on.
func ServeStream(w http.ResponseWriter, h *hub.Hub, identifier hub.StreamIdentifier, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	info := hub.NewSubscriberInfo(hub.SubscribePlayerHTTPFLV, hub.NotifyInfo{})
	frames := make(chan hub.FrameData, 256)
	hub.SubscribeStream(h.EventSender(), identifier, info, hub.DataSender{FrameSender: frames})
	defer hub.UnsubscribeStream(h.EventSender(), identifier, info)

	w.Header().Set("Content-Type", "video/x-flv")
	w.Header().Set("Transfer-Encoding", "chunked")

	flusher, _ := w.(http.Flusher)
	tw := newTagWriter(w)

	for fd := range frames {
		if fd.Kind == hub.FrameMediaInfo {
			hasAudio := fd.MediaInfo.AudioClockRate > 0
			hasVideo := fd.MediaInfo.VideoClockRate > 0
			if err := tw.writeHeader(hasAudio, hasVideo); err != nil {
				return err
			}
			continue
		}
		if !tw.wroteHeader {
			// No MediaInfo arrived before the first media frame; assume
			// both tracks so players don't mis-detect an audio-only feed.
			if err := tw.writeHeader(true, true); err != nil {
				return err
			}
		}

		tagType, ok := flvTagType(fd.Kind)
		if !ok {
			continue
		}
		if err := tw.writeTag(tagType, fd.Timestamp, fd.Bytes); err != nil {
			return fmt.Errorf("httpflv.serve %s: %w", identifier.String(), err)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}

func flvTagType(k hub.FrameKind) (uint8, bool) {
	switch k {
	case hub.FrameAudio:
		return 8, true
	case hub.FrameVideo:
		return 9, true
	case hub.FrameMetaData:
		return 18, true
	default:
		return 0, false
	}
}
