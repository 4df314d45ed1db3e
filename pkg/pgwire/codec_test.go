package pgwire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		msgType MsgType
		payload []byte
	}{
		{"empty payload", MsgClientSync, nil},
		{"small payload", MsgClientQuery, []byte("SELECT 1\x00")},
		{"binary payload", MsgServerAuth, []byte{0, 0, 0, 5, 1, 2, 3, 4}},
		{"large payload", MsgServerDataRow, bytes.Repeat([]byte{0xAB}, 64*1024)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			codec := NewCodec(&buf)

			require.NoError(t, codec.WriteMessage(tc.msgType, tc.payload))

			msg, err := codec.ReadMessage()
			require.NoError(t, err)
			assert.Equal(t, tc.msgType, msg.Type)
			if len(tc.payload) == 0 {
				assert.Empty(t, msg.Body)
			} else {
				assert.Equal(t, tc.payload, msg.Body)
			}
		})
	}
}

func TestCodecWriteFraming(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)
	require.NoError(t, codec.WriteMessage(MsgClientQuery, []byte("hi\x00")))

	raw := buf.Bytes()
	require.Len(t, raw, 5+3)
	assert.Equal(t, byte('Q'), raw[0])
	// Length includes itself but not the tag.
	assert.Equal(t, uint32(7), binary.BigEndian.Uint32(raw[1:5]))
	assert.Equal(t, []byte("hi\x00"), raw[5:])
}

func TestCodecWriteStartupOmitsTag(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)
	payload := []byte{0, 3, 0, 0}
	require.NoError(t, codec.WriteStartup(payload))

	raw := buf.Bytes()
	require.Len(t, raw, 4+4)
	assert.Equal(t, uint32(8), binary.BigEndian.Uint32(raw[0:4]))
	assert.Equal(t, payload, raw[4:])
}

func TestCodecReadTruncatedStream(t *testing.T) {
	t.Run("mid-header", func(t *testing.T) {
		codec := NewCodec(readWriter{bytes.NewReader([]byte{'Z', 0, 0})})
		_, err := codec.ReadMessage()
		require.Error(t, err)
	})

	t.Run("mid-body", func(t *testing.T) {
		frame := []byte{'D', 0, 0, 0, 10, 1, 2} // claims 6 body bytes, has 2
		codec := NewCodec(readWriter{bytes.NewReader(frame)})
		_, err := codec.ReadMessage()
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("empty stream", func(t *testing.T) {
		codec := NewCodec(readWriter{bytes.NewReader(nil)})
		_, err := codec.ReadMessage()
		require.ErrorIs(t, err, io.EOF)
	})
}

func TestCodecReadInvalidLength(t *testing.T) {
	frame := []byte{'Z', 0, 0, 0, 2}
	codec := NewCodec(readWriter{bytes.NewReader(frame)})
	_, err := codec.ReadMessage()
	require.ErrorContains(t, err, "invalid message length")
}

func TestCodecWriteBatch(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)
	require.NoError(t, codec.WriteBatch(
		TaggedMessage{Type: MsgClientParse, Body: []byte("\x00q\x00\x00\x00")},
		TaggedMessage{Type: MsgClientSync, Body: nil},
	))

	first, err := codec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, MsgClientParse, first.Type)

	second, err := codec.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, MsgClientSync, second.Type)
	assert.Empty(t, second.Body)
}

// readWriter adapts a reader into the ReadWriter NewCodec wants.
type readWriter struct {
	io.Reader
}

func (readWriter) Write(p []byte) (int, error) { return len(p), nil }
