package server

import (
	"testing"

	"github.com/alxayo/streamhub/internal/hub"
	"github.com/alxayo/streamhub/internal/rtmp/amf"
	"github.com/alxayo/streamhub/internal/rtmp/chunk"
	"github.com/alxayo/streamhub/internal/rtmp/rpc"
)

// stubConn captures the last message sent; it mimics the subset of the
// connection we need (SendMessage). SendMessage always succeeds.
type stubConn struct{ last *chunk.Message }

func (s *stubConn) SendMessage(m *chunk.Message) error { s.last = m; return nil }

// buildPublishMessage builds a minimal AMF0 publish command message for tests.
func buildPublishMessage(streamName string) *chunk.Message {
	payload, _ := amf.EncodeAll("publish", float64(0), nil, streamName, "live")
	return &chunk.Message{TypeID: rpc.CommandMessageAMF0TypeIDForTest(), Payload: payload, MessageLength: uint32(len(payload)), MessageStreamID: 1}
}

func startTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.New(nil, nil)
	go h.Run()
	t.Cleanup(func() {
		h.Stop()
		<-h.Done()
	})
	return h
}

func TestHandlePublishSuccess(t *testing.T) {
	h := startTestHub(t)
	sc := &stubConn{}
	msg := buildPublishMessage("testStream")

	onStatus, sess, err := HandlePublish(h, sc, "app", msg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if onStatus == nil || sc.last == nil || sess == nil {
		t.Fatalf("expected onStatus message and session")
	}

	vals, err := amf.DecodeAll(onStatus.Payload)
	if err != nil {
		t.Fatalf("decode onStatus: %v", err)
	}
	if len(vals) < 4 {
		t.Fatalf("expected >=4 AMF values, got %d", len(vals))
	}
	if vals[0] != "onStatus" {
		t.Fatalf("expected command name onStatus, got %v", vals[0])
	}
	info, _ := vals[3].(map[string]interface{})
	if info["code"] != "NetStream.Publish.Start" {
		t.Fatalf("unexpected status code: %v", info["code"])
	}

	sess.Close(h)
}

func TestHandlePublishDuplicate(t *testing.T) {
	h := startTestHub(t)
	first := &stubConn{}
	second := &stubConn{}
	msg := buildPublishMessage("dup")

	_, sess1, err := HandlePublish(h, first, "app", msg, nil)
	if err != nil {
		t.Fatalf("first publish failed: %v", err)
	}
	defer sess1.Close(h)

	_, sess2, err := HandlePublish(h, second, "app", msg, nil)
	if err == nil {
		t.Fatalf("expected the duplicate publish to be rejected")
	}
	// The Hub answers the duplicate with a DuplicatePublisher error on the
	// accepted channel, so no session is returned and no onStatus is sent.
	if sess2 != nil || second.last != nil {
		t.Fatalf("expected no session and no onStatus for a rejected publish")
	}
}
