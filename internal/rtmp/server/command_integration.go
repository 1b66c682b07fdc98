package server

// Command Integration
// -------------------
// This file bridges the lower-level connection (handshake + control +
// chunking read/write loops) with the RPC command parsing and the Hub so
// real RTMP clients (OBS / ffmpeg) can complete the
// connect -> createStream -> publish/play sequence. Media packets are
// handed to the active PublishSession (publisher side) or routed from a
// PlaySession's own goroutine (subscriber side) rather than touched
// through a local stream registry.

import (
	"log/slog"
	"time"

	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/rtmp/chunk"
	iconn "github.com/alxayo/streamhub/internal/rtmp/conn"
	"github.com/alxayo/streamhub/internal/rtmp/control"
	"github.com/alxayo/streamhub/internal/rtmp/rpc"
)

// commandState holds mutable per-connection fields needed by handlers.
type commandState struct {
	app         string
	allocator   *rpc.StreamIDAllocator
	mediaLogger *MediaLogger

	publish *PublishSession
	play    *PlaySession
}

// attachCommandHandling installs a dispatcher-backed message handler on the
// provided connection. Safe to call immediately after Accept returns.
func attachCommandHandling(c *iconn.Connection, h *hub.Hub, cfg *Config, log *slog.Logger, srv *Server) {
	if c == nil || h == nil || cfg == nil {
		return
	}
	st := &commandState{
		allocator:   rpc.NewStreamIDAllocator(),
		mediaLogger: NewMediaLogger(c.ID(), log, 30*time.Second),
	}

	d := rpc.NewDispatcher(func() string { return st.app })

	d.OnConnect = func(cc *rpc.ConnectCommand, msg *chunk.Message) error {
		st.app = cc.App
		resp, err := rpc.BuildConnectResponse(cc.TransactionID, "Connection succeeded.")
		if err != nil {
			log.Error("connect response build failed", "error", err)
			return nil
		}
		if err := c.SendMessage(resp); err != nil {
			log.Error("connect response send failed", "error", err)
		}
		return nil
	}

	d.OnCreateStream = func(cs *rpc.CreateStreamCommand, msg *chunk.Message) error {
		resp, streamID, err := rpc.BuildCreateStreamResponse(cs.TransactionID, st.allocator)
		if err != nil {
			log.Error("createStream response build failed", "error", err)
			return nil
		}
		if err := c.SendMessage(resp); err != nil {
			log.Error("createStream response send failed", "error", err)
		}
		streamBegin := control.EncodeUserControlStreamBegin(streamID)
		if err := c.SendMessage(streamBegin); err != nil {
			log.Error("StreamBegin send failed", "error", err, "stream_id", streamID)
		}
		return nil
	}

	d.OnPublish = func(pc *rpc.PublishCommand, msg *chunk.Message) error {
		_, sess, err := HandlePublish(h, c, st.app, msg, log)
		if err != nil {
			log.Error("publish handle", "error", err)
			return nil
		}
		st.publish = sess
		return nil
	}

	d.OnPlay = func(pl *rpc.PlayCommand, msg *chunk.Message) error {
		_, sess, err := HandlePlay(h, c, st.app, msg, log)
		if err != nil {
			log.Error("play handle", "error", err)
			return nil
		}
		st.play = sess
		if sess != nil {
			go sess.Run(c)
		}
		return nil
	}

	c.SetMessageHandler(func(m *chunk.Message) {
		if m == nil {
			return
		}

		if m.TypeID == 8 || m.TypeID == 9 {
			st.mediaLogger.ProcessMessage(m)
			if st.publish != nil {
				st.publish.Feed(m)
			}
			return
		}

		if m.TypeID != rpc.CommandMessageAMF0TypeIDForTest() {
			return
		}
		if err := d.Dispatch(m); err != nil {
			log.Error("dispatch error", "error", err)
		}
	})

	c.SetCloseHandler(func() {
		if st.publish != nil {
			st.publish.Close(h)
		}
		if st.play != nil {
			st.play.Close(h)
		}
	})
}
