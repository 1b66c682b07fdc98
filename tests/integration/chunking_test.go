package integration

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/alxayo/streamhub/internal/rtmp/chunk"
)

// Helpers (local to integration test) ---------------------------------------------------------

// encodeSingleMessage produces raw chunk bytes for a message using only FMT=0 and FMT=3 rules.
// It duplicates part of chunk.Writer's logic so these scenarios do not depend on the writer.
func encodeSingleMessage(msg *chunk.Message, chunkSize uint32) []byte {
	var out bytes.Buffer

	payload := msg.Payload
	remaining := uint32(len(payload))
	first := true
	for remaining > 0 {
		toWrite := remaining
		if toWrite > chunkSize {
			toWrite = chunkSize
		}

		if first {
			// Basic Header FMT=0 (2 bits 00) | csid (6 bits)
			bh := byte(msg.CSID & 0x3F) // assumes CSID in 2..63 per tests
			out.WriteByte(bh)           // fmt=0 so high 2 bits = 00

			ts := msg.Timestamp
			if ts >= 0xFFFFFF {
				out.Write([]byte{0xFF, 0xFF, 0xFF})
			} else {
				out.Write([]byte{byte(ts >> 16), byte(ts >> 8), byte(ts)})
			}
			// Message length (3 bytes)
			ml := msg.MessageLength
			out.Write([]byte{byte(ml >> 16), byte(ml >> 8), byte(ml)})
			// Type ID
			out.WriteByte(msg.TypeID)
			// Message Stream ID (little-endian)
			msid := make([]byte, 4)
			binary.LittleEndian.PutUint32(msid, msg.MessageStreamID)
			out.Write(msid)
			// Extended timestamp if needed
			if ts >= 0xFFFFFF {
				et := make([]byte, 4)
				binary.BigEndian.PutUint32(et, ts)
				out.Write(et)
			}
			first = false
		} else {
			// Continuation chunk: FMT=3 -> high bits 11, so add 0xC0
			bh := byte(0xC0 | (msg.CSID & 0x3F))
			out.WriteByte(bh)
			if msg.Timestamp >= 0xFFFFFF { // extended timestamp repeated for continuation
				et := make([]byte, 4)
				binary.BigEndian.PutUint32(et, msg.Timestamp)
				out.Write(et)
			}
		}

		out.Write(payload[:toWrite])
		payload = payload[toWrite:]
		remaining -= toWrite
	}
	return out.Bytes()
}

// readAllMessages attempts to read n messages via the chunk.Reader, returning those that succeed.
func readAllMessages(t *testing.T, r *chunk.Reader, n int) ([]*chunk.Message, []error) {
	msgs := make([]*chunk.Message, 0, n)
	errs := make([]error, 0)
	for len(msgs) < n {
		m, err := r.ReadMessage()
		if err != nil {
			errs = append(errs, err)
			break
		}
		msgs = append(msgs, m)
	}
	return msgs, errs
}

// TestChunkingFlow implements integration test scenarios for T010.
func TestChunkingFlow(t *testing.T) {
	// Scenario 1: Single chunk message (Set Chunk Size control message)
	single := &chunk.Message{
		CSID:            2,
		Timestamp:       1000,
		MessageLength:   4,
		TypeID:          1, // Set Chunk Size
		MessageStreamID: 0,
		Payload:         []byte{0x00, 0x00, 0x10, 0x00}, // 4096
	}
	b1 := encodeSingleMessage(single, 128)

	// Scenario 2: Multi-chunk message (384 bytes video, CSID=6)
	multiPayload := make([]byte, 384)
	multi := &chunk.Message{
		CSID:            6,
		Timestamp:       2000,
		MessageLength:   384,
		TypeID:          9, // Video
		MessageStreamID: 1,
		Payload:         multiPayload,
	}
	b2 := encodeSingleMessage(multi, 128)

	// Scenario 3: Interleaved (Audio CSID=4, Video CSID=6)
	interAudioPayload := make([]byte, 256)
	interVideoPayload := make([]byte, 256)
	interAudio := &chunk.Message{CSID: 4, Timestamp: 3000, MessageLength: 256, TypeID: 8, MessageStreamID: 1, Payload: interAudioPayload}
	interVideo := &chunk.Message{CSID: 6, Timestamp: 3000, MessageLength: 256, TypeID: 9, MessageStreamID: 1, Payload: interVideoPayload}
	// manually interleave first chunks then second chunks
	iaFirst := encodeSingleMessage(&chunk.Message{CSID: interAudio.CSID, Timestamp: interAudio.Timestamp, MessageLength: interAudio.MessageLength, TypeID: interAudio.TypeID, MessageStreamID: interAudio.MessageStreamID, Payload: interAudio.Payload[:128]}, 128)
	ivFirst := encodeSingleMessage(&chunk.Message{CSID: interVideo.CSID, Timestamp: interVideo.Timestamp, MessageLength: interVideo.MessageLength, TypeID: interVideo.TypeID, MessageStreamID: interVideo.MessageStreamID, Payload: interVideo.Payload[:128]}, 128)
	// continuation halves: a one-byte FMT=3 basic header followed by the remaining 128 bytes
	iaSecond := append([]byte{0xC0 | byte(interAudio.CSID&0x3F)}, interAudio.Payload[128:]...)
	ivSecond := append([]byte{0xC0 | byte(interVideo.CSID&0x3F)}, interVideo.Payload[128:]...)
	// Concatenate: first audio chunk, first video chunk, audio continuation chunk (FMT=3), video continuation chunk (FMT=3)
	interleavedBytes := append(append(append(append(iaFirst, ivFirst...), iaSecond...), ivSecond...), []byte{}...)

	// Scenario 4: Extended timestamp
	extPayload := make([]byte, 64)
	extMsg := &chunk.Message{CSID: 4, Timestamp: 20000000, MessageLength: 64, TypeID: 8, MessageStreamID: 1, Payload: extPayload}
	bExt := encodeSingleMessage(extMsg, 128)

	// Scenario 5: Set Chunk Size change then large message using new size 4096
	setChunk := single // reuse
	bigPayload := make([]byte, 8192)
	bigMsg := &chunk.Message{CSID: 6, Timestamp: 4000, MessageLength: 8192, TypeID: 9, MessageStreamID: 1, Payload: bigPayload}
	bSet := encodeSingleMessage(setChunk, 128)
	bBigPreSplit := encodeSingleMessage(bigMsg, 4096) // encoded as if chunk size already 4096; test will force reader to update after reading set-chunk-size
	setChunkSequence := append(bSet, bBigPreSplit...)

	// Aggregate all scenarios into separate subtests
	t.Run("single_chunk_message", func(t *testing.T) {
		r := chunk.NewReader(bytes.NewReader(b1), 128)
		m, err := r.ReadMessage()
		if err == nil {
			if m.TypeID != 1 || m.MessageLength != 4 || m.Timestamp != 1000 {
				t.Fatalf("unexpected message meta: type=%d len=%d ts=%d", m.TypeID, m.MessageLength, m.Timestamp)
			}
		} else {
			t.Fatalf("single chunk read error: %v", err)
		}
	})

	t.Run("multi_chunk_message", func(t *testing.T) {
		r := chunk.NewReader(bytes.NewReader(b2), 128)
		m, err := r.ReadMessage()
		if err != nil {
			// Fail early to drive implementation
			t.Fatalf("expected multi-chunk message, got error: %v", err)
		}
		if m.MessageLength != 384 || m.TypeID != 9 {
			t.Fatalf("unexpected message meta: len=%d type=%d", m.MessageLength, m.TypeID)
		}
	})

	t.Run("interleaved_streams", func(t *testing.T) {
		r := chunk.NewReader(bytes.NewReader(interleavedBytes), 128)
		// Expect two messages eventually (audio + video)
		msgs := []*chunk.Message{}
		for len(msgs) < 2 {
			m, err := r.ReadMessage()
			if err != nil {
				t.Fatalf("interleaved read error (expected 2 messages): %v", err)
			}
			msgs = append(msgs, m)
		}
	})

	t.Run("extended_timestamp", func(t *testing.T) {
		r := chunk.NewReader(bytes.NewReader(bExt), 128)
		m, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("extended timestamp read error: %v", err)
		}
		if m.Timestamp != 20000000 {
			t.Fatalf("expected timestamp 20000000, got %d", m.Timestamp)
		}
	})

	t.Run("set_chunk_size_then_large_message", func(t *testing.T) {
		r := chunk.NewReader(bytes.NewReader(setChunkSequence), 128)
		// First message: Set Chunk Size
		m1, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("expected set chunk size message first, got error: %v", err)
		}
		if m1.TypeID != 1 || m1.MessageLength != 4 {
			t.Fatalf("unexpected first message metadata: %+v", m1)
		}
		// Simulate applying new chunk size 4096
		r.SetChunkSize(4096)
		m2, err := r.ReadMessage()
		if err != nil {
			t.Fatalf("expected big message after chunk size change, got error: %v", err)
		}
		if m2.MessageLength != 8192 {
			t.Fatalf("expected big message length 8192, got %d", m2.MessageLength)
		}
	})

	// These scenarios exercise header parsing, state management, dechunking, and chunk size adaptation.
}

// Provide a concise summary if someone runs `go test -run TestChunkingFlow -v`.
func Example_chunkingIntegration() {
	fmt.Println("Chunking integration test scenarios: single, multi, interleaved, extended timestamp, set chunk size")
	// Output: Chunking integration test scenarios: single, multi, interleaved, extended timestamp, set chunk size
}
