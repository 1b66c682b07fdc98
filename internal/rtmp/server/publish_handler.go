package server

// Publish handling: parses the publish command, emits a hub.Publish event
// for the stream, and returns a PublishSession whose Feed turns the
// connection's incoming chunk.Messages into hub.FrameData until the
// session is closed. Sends an onStatus NetStream.Publish.Start
// status message back to the client, mirroring the AMF0 construction the
// teacher used when it drove a local Registry directly.

import (
	"fmt"
	"log/slog"

	rtmperrors "github.com/alxayo/streamhub/internal/errors"
	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/rtmp/amf"
	"github.com/alxayo/streamhub/internal/rtmp/chunk"
	"github.com/alxayo/streamhub/internal/rtmp/rpc"
)

// sender is the minimal interface required from a connection for publish
// and play handling. *conn.Connection satisfies it; tests use a stub.
type sender interface {
	SendMessage(*chunk.Message) error
}

// PublishSession tracks the state one publishing connection needs to
// participate in the Hub: the FrameData channel it feeds and the
// PublisherInfo the Hub indexes it by, so a later disconnect can emit a
// matching UnPublish.
type PublishSession struct {
	Identifier hub.StreamIdentifier
	Info       hub.PublisherInfo
	frames     chan hub.FrameData
	handler    *rtmpStreamHandler
}

// HandlePublish parses the publish command, registers the stream with the
// Hub (rejecting a duplicate publisher), and returns both the onStatus
// reply (already sent) and the PublishSession the caller must feed with
// incoming chunk.Messages via Feed, and close with Close on disconnect.
func HandlePublish(h *hub.Hub, conn sender, app string, msg *chunk.Message, log *slog.Logger) (*chunk.Message, *PublishSession, error) {
	if h == nil || conn == nil || msg == nil {
		return nil, nil, rtmperrors.NewProtocolError("publish.handle", fmt.Errorf("nil argument"))
	}

	pcmd, err := rpc.ParsePublishCommand(app, msg)
	if err != nil {
		return nil, nil, err
	}

	identifier := hub.NewRTMPIdentifier(app, pcmd.PublishingName)
	info := hub.NewPublisherInfo(hub.PublishRTMP, hub.NotifyInfo{})
	frames := make(chan hub.FrameData, 256)
	streamHandler := newRTMPStreamHandler(pcmd.StreamKey, log)

	accepted := hub.PublishStream(h.EventSender(), identifier, info, hub.DataReceiver{FrameReceiver: frames}, streamHandler)
	if err := <-accepted; err != nil {
		close(frames)
		return nil, nil, rtmperrors.NewProtocolError("publish.handle", err)
	}

	info2 := map[string]interface{}{
		"level":       "status",
		"code":        "NetStream.Publish.Start",
		"description": fmt.Sprintf("Publishing %s.", pcmd.StreamKey),
		"details":     pcmd.StreamKey,
	}
	payload, err := amf.EncodeAll("onStatus", float64(0), nil, info2)
	if err != nil {
		close(frames)
		return nil, nil, rtmperrors.NewProtocolError("publish.handle.encode", err)
	}
	onStatus := &chunk.Message{
		CSID:            5,
		TypeID:          rpc.CommandMessageAMF0TypeIDForTest(),
		MessageStreamID: msg.MessageStreamID,
		MessageLength:   uint32(len(payload)),
		Payload:         payload,
	}
	_ = conn.SendMessage(onStatus)

	return onStatus, &PublishSession{Identifier: identifier, Info: info, frames: frames, handler: streamHandler}, nil
}

// Feed converts an incoming audio/video/metadata chunk.Message into
// hub.FrameData and forwards it to the Transmitter. Non-media message
// types are ignored; a full send (Transmitter unavailable) is dropped
// rather than blocking the connection's read loop.
func (s *PublishSession) Feed(msg *chunk.Message) {
	if s == nil || msg == nil {
		return
	}
	var kind hub.FrameKind
	switch msg.TypeID {
	case 8:
		kind = hub.FrameAudio
	case 9:
		kind = hub.FrameVideo
	case 18:
		kind = hub.FrameMetaData
	default:
		return
	}
	s.handler.observe(msg)
	select {
	case s.frames <- hub.FrameData{Kind: kind, Timestamp: msg.Timestamp, Bytes: msg.Payload}:
	default:
	}
}

// Close emits an UnPublish event for this session's stream and closes the
// frame channel so the Transmitter tears down.
func (s *PublishSession) Close(h *hub.Hub) {
	if s == nil {
		return
	}
	hub.UnpublishStream(h.EventSender(), s.Identifier, s.Info)
	close(s.frames)
}
