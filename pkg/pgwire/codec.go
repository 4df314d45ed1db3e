// Package pgwire implements the framing layer of the PostgreSQL
// frontend/backend protocol: tagged, length-prefixed binary messages,
// plus builders for the frontend messages and parsers for the backend
// messages a client needs to log in and run queries in text mode.
package pgwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Codec reads and writes wire protocol messages over a byte stream.
// The stream is typically a net.Conn or tls.Conn, but any bidirectional
// stream works; the codec never looks past the read/write interfaces.
//
// A Codec is not safe for concurrent use. The protocol is strictly
// request/response per connection, so the owning connection serializes
// access.
type Codec struct {
	r         io.Reader
	w         io.Writer
	headerBuf [5]byte
}

// NewCodec creates a Codec over rw.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: rw, w: rw}
}

// RawMessage holds one decoded frame: the tag byte and the payload that
// followed the length word. The payload excludes the 4 length bytes.
type RawMessage struct {
	Type MsgType
	Body []byte
}

// ReadMessage reads a single backend message from the wire.
// It reads the 5-byte header (type + length) then exactly length-4 payload
// bytes. A stream that closes mid-frame yields an error from io.ReadFull
// (io.ErrUnexpectedEOF), which callers surface as a protocol error.
func (c *Codec) ReadMessage() (RawMessage, error) {
	if _, err := io.ReadFull(c.r, c.headerBuf[:]); err != nil {
		return RawMessage{}, err
	}

	msgType := MsgType(c.headerBuf[0])
	// Length includes the 4-byte length field itself
	length := binary.BigEndian.Uint32(c.headerBuf[1:5])
	if length < 4 {
		return RawMessage{}, fmt.Errorf("invalid message length: %d", length)
	}

	bodyLen := length - 4
	body := make([]byte, bodyLen)
	if bodyLen > 0 {
		if _, err := io.ReadFull(c.r, body); err != nil {
			return RawMessage{}, err
		}
	}

	return RawMessage{Type: msgType, Body: body}, nil
}

// WriteMessage writes one tagged message: tag, big-endian length inclusive
// of itself, then payload. The frame is assembled in a single buffer and
// written with one Write call so the transport sees it as one unit.
func (c *Codec) WriteMessage(msgType MsgType, payload []byte) error {
	frame := make([]byte, 5+len(payload))
	frame[0] = byte(msgType)
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)+4))
	copy(frame[5:], payload)
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	return c.flush()
}

// WriteStartup writes the untagged startup message: big-endian length
// inclusive of itself, then payload. Only the StartupMessage omits the tag.
func (c *Codec) WriteStartup(payload []byte) error {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)+4))
	copy(frame[4:], payload)
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	return c.flush()
}

// WriteBatch writes several pre-built tagged messages as one Write call.
// The extended query protocol pipelines Parse/Bind/Execute/Sync without
// waiting for intermediate replies, so sending them as a single batch
// avoids three needless flushes.
func (c *Codec) WriteBatch(msgs ...TaggedMessage) error {
	size := 0
	for _, m := range msgs {
		size += 5 + len(m.Body)
	}
	frame := make([]byte, 0, size)
	for _, m := range msgs {
		var hdr [5]byte
		hdr[0] = byte(m.Type)
		binary.BigEndian.PutUint32(hdr[1:5], uint32(len(m.Body)+4))
		frame = append(frame, hdr[:]...)
		frame = append(frame, m.Body...)
	}
	if _, err := c.w.Write(frame); err != nil {
		return err
	}
	return c.flush()
}

// TaggedMessage is a frontend message ready for framing.
type TaggedMessage struct {
	Type MsgType
	Body []byte
}

type flusher interface {
	Flush() error
}

func (c *Codec) flush() error {
	if f, ok := c.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
