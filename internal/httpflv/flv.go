// Package httpflv renders a Hub stream as an HTTP-FLV byte stream: one
// long-lived response body carrying the FLV container format, consumed by
// ffplay/VLC/hls.js-style HTTP clients rather than a native RTMP stack.
package httpflv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// tagWriter emits the FLV container format: a 9-byte header followed by a
// stream of (11-byte tag header + payload + 4-byte PreviousTagSize)
// records. Ported from the teacher's file-based FLV recorder; the only
// change is the destination is an arbitrary io.Writer (an HTTP response
// body) instead of an *os.File, and the header's audio/video presence
// flags are set from the stream's actual MediaInfo instead of assumed.
type tagWriter struct {
	w           io.Writer
	wroteHeader bool
}

func newTagWriter(w io.Writer) *tagWriter { return &tagWriter{w: w} }

// writeHeader writes the 13-byte FLV header (9-byte header + 4-byte
// PreviousTagSize0). hasAudio/hasVideo set the presence flags byte.
func (t *tagWriter) writeHeader(hasAudio, hasVideo bool) error {
	if t.wroteHeader {
		return nil
	}
	var flags byte
	if hasAudio {
		flags |= 0x04
	}
	if hasVideo {
		flags |= 0x01
	}
	header := []byte{'F', 'L', 'V', 0x01, flags, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00}
	if _, err := t.w.Write(header); err != nil {
		return fmt.Errorf("httpflv.header: %w", err)
	}
	t.wroteHeader = true
	return nil
}

// writeTag writes a single FLV tag (tagType 8=audio, 9=video, 18=script)
// and its trailing PreviousTagSize.
func (t *tagWriter) writeTag(tagType uint8, timestamp uint32, payload []byte) error {
	dataSize := len(payload)
	if dataSize > 0xFFFFFF {
		return fmt.Errorf("httpflv.tag: payload too large: %d", dataSize)
	}
	var hdr [11]byte
	hdr[0] = tagType
	hdr[1] = byte(dataSize >> 16)
	hdr[2] = byte(dataSize >> 8)
	hdr[3] = byte(dataSize)
	hdr[4] = byte(timestamp >> 16)
	hdr[5] = byte(timestamp >> 8)
	hdr[6] = byte(timestamp)
	hdr[7] = byte(timestamp >> 24)

	if _, err := t.w.Write(hdr[:]); err != nil {
		return err
	}
	if dataSize > 0 {
		if _, err := t.w.Write(payload); err != nil {
			return err
		}
	}
	var szBuf [4]byte
	binary.BigEndian.PutUint32(szBuf[:], uint32(11+dataSize))
	_, err := t.w.Write(szBuf[:])
	return err
}
