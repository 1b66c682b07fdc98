package server

// Play handling: parses the play command, subscribes to the Hub, and
// returns a PlaySession whose Run converts hub.FrameData back into
// chunk.Messages written to the connection, until the subscription or the
// connection ends.

import (
	"fmt"
	"log/slog"
	"time"

	rtmperrors "github.com/alxayo/streamhub/internal/errors"
	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/rtmp/amf"
	"github.com/alxayo/streamhub/internal/rtmp/chunk"
	"github.com/alxayo/streamhub/internal/rtmp/control"
	"github.com/alxayo/streamhub/internal/rtmp/rpc"
)

// PlaySession tracks the subscriber-side state needed to unwind a play
// session: the identifier/info pair the Hub indexed it by.
type PlaySession struct {
	Identifier hub.StreamIdentifier
	Info       hub.SubscriberInfo
	frames     chan hub.FrameData
	streamID   uint32
}

// HandlePlay parses the play command and subscribes conn's session to the
// Hub. It immediately sends Stream Begin + onStatus NetStream.Play.Start
// (or NetStream.Play.StreamNotFound if the Subscribe is rejected), then
// returns a PlaySession whose Run method the caller should start in its
// own goroutine to pump frames to conn for the life of the subscription.
func HandlePlay(h *hub.Hub, conn sender, app string, msg *chunk.Message, log *slog.Logger) (*chunk.Message, *PlaySession, error) {
	if h == nil || conn == nil || msg == nil {
		return nil, nil, rtmperrors.NewProtocolError("play.handle", fmt.Errorf("nil argument"))
	}
	if log == nil {
		log = slog.Default()
	}

	pcmd, err := rpc.ParsePlayCommand(msg, app)
	if err != nil {
		return nil, nil, err
	}
	log.Info("play command", "stream_key", pcmd.StreamKey)

	identifier := hub.NewRTMPIdentifier(app, pcmd.StreamName)
	info := hub.NewSubscriberInfo(hub.SubscribePlayerRTMP, hub.NotifyInfo{})
	frames := make(chan hub.FrameData, 256)

	hub.SubscribeStream(h.EventSender(), identifier, info, hub.DataSender{FrameSender: frames})

	// A rejected Subscribe (absent stream, incompatible lane) is reflected
	// by the Hub closing frames before anything is ever queued on it. The
	// Hub handles the Subscribe after this call has queued it, so wait
	// briefly for either that close or a first frame.
	var first *chunk.Message
	wait := time.NewTimer(100 * time.Millisecond)
	defer wait.Stop()
	select {
	case fd, ok := <-frames:
		if !ok {
			notFound, _ := buildOnStatus(msg.MessageStreamID, pcmd.StreamKey, "NetStream.Play.StreamNotFound", fmt.Sprintf("Stream %s not found.", pcmd.StreamKey))
			_ = conn.SendMessage(notFound)
			return notFound, nil, nil
		}
		first = frameToMessage(fd, msg.MessageStreamID)
	case <-wait.C:
	}

	uc := control.EncodeUserControlStreamBegin(msg.MessageStreamID)
	_ = conn.SendMessage(uc)

	started, err := buildOnStatus(msg.MessageStreamID, pcmd.StreamKey, "NetStream.Play.Start", fmt.Sprintf("Started playing %s.", pcmd.StreamKey))
	if err != nil {
		return nil, nil, rtmperrors.NewProtocolError("play.handle.encode", err)
	}
	_ = conn.SendMessage(started)
	if first != nil {
		_ = conn.SendMessage(first)
	}

	return started, &PlaySession{Identifier: identifier, Info: info, frames: frames, streamID: msg.MessageStreamID}, nil
}

// Run pumps frames to conn until the channel closes (UnPublish, kick, or
// eviction) or the connection reports a send error. It is meant to run in
// its own goroutine for the life of the subscription.
func (s *PlaySession) Run(conn sender) {
	for fd := range s.frames {
		msg := frameToMessage(fd, s.streamID)
		if msg == nil {
			continue
		}
		if err := conn.SendMessage(msg); err != nil {
			return
		}
	}
}

func frameToMessage(fd hub.FrameData, streamID uint32) *chunk.Message {
	var typeID uint8
	switch fd.Kind {
	case hub.FrameVideo:
		typeID = 9
	case hub.FrameAudio:
		typeID = 8
	case hub.FrameMetaData:
		typeID = 18
	default:
		return nil // MediaInfo carries no RTMP wire representation
	}
	return &chunk.Message{
		CSID:            6,
		TypeID:          typeID,
		Timestamp:       fd.Timestamp,
		MessageStreamID: streamID,
		MessageLength:   uint32(len(fd.Bytes)),
		Payload:         fd.Bytes,
	}
}

// Close unsubscribes this session from the Hub.
func (s *PlaySession) Close(h *hub.Hub) {
	if s == nil {
		return
	}
	hub.UnsubscribeStream(h.EventSender(), s.Identifier, s.Info)
}

func buildOnStatus(streamID uint32, streamKey, code, description string) (*chunk.Message, error) {
	info := map[string]interface{}{
		"level":       "status",
		"code":        code,
		"description": description,
		"details":     streamKey,
	}
	payload, err := amf.EncodeAll("onStatus", float64(0), nil, info)
	if err != nil {
		return nil, err
	}
	return &chunk.Message{
		CSID:            5,
		TypeID:          rpc.CommandMessageAMF0TypeIDForTest(),
		MessageStreamID: streamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}, nil
}
