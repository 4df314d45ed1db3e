package pgwire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartupPayload(t *testing.T) {
	payload := StartupPayload([]StartupParam{
		{Key: "user", Value: "alice"},
		{Key: "database", Value: "app"},
	})

	want := []byte{0, 3, 0, 0}
	want = append(want, "user\x00alice\x00database\x00app\x00\x00"...)
	assert.Equal(t, want, payload)
}

func TestStartupPayloadNoParams(t *testing.T) {
	payload := StartupPayload(nil)
	assert.Equal(t, []byte{0, 3, 0, 0, 0}, payload)
}

func TestPasswordPayload(t *testing.T) {
	assert.Equal(t, []byte("hunter2\x00"), PasswordPayload("hunter2"))
}

func TestSASLInitialResponsePayload(t *testing.T) {
	payload := SASLInitialResponsePayload("SCRAM-SHA-256", "n,,n=,r=abc")

	want := []byte("SCRAM-SHA-256\x00")
	want = append(want, 0, 0, 0, 11)
	want = append(want, "n,,n=,r=abc"...)
	assert.Equal(t, want, payload)
}

func TestQueryPayload(t *testing.T) {
	assert.Equal(t, []byte("SELECT 1\x00"), QueryPayload("SELECT 1"))
}

func TestParsePayload(t *testing.T) {
	payload := ParsePayload("", "SELECT $1")
	want := []byte("\x00SELECT $1\x00")
	want = append(want, 0, 0) // zero pre-declared parameter types
	assert.Equal(t, want, payload)
}

func TestBindPayload(t *testing.T) {
	payload := BindPayload("", "", []string{"hi", "world"})

	var want bytes.Buffer
	want.WriteString("\x00\x00")         // portal, statement
	want.Write([]byte{0, 0})             // param format codes
	want.Write([]byte{0, 2})             // param count
	want.Write([]byte{0, 0, 0, 2})       // len("hi")
	want.WriteString("hi")
	want.Write([]byte{0, 0, 0, 5})       // len("world")
	want.WriteString("world")
	want.Write([]byte{0, 0})             // result format codes
	assert.Equal(t, want.Bytes(), payload)
}

func TestExecutePayload(t *testing.T) {
	payload := ExecutePayload("", 0)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, payload)
}

func TestParseAuthRequest(t *testing.T) {
	t.Run("ok with salt", func(t *testing.T) {
		body := []byte{0, 0, 0, 5, 0xDE, 0xAD, 0xBE, 0xEF}
		req, err := ParseAuthRequest(body)
		require.NoError(t, err)
		assert.Equal(t, uint32(AuthMD5Password), req.Code)
		assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, req.Data)
	})

	t.Run("ok empty data", func(t *testing.T) {
		req, err := ParseAuthRequest([]byte{0, 0, 0, 0})
		require.NoError(t, err)
		assert.Equal(t, uint32(AuthOK), req.Code)
		assert.Empty(t, req.Data)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ParseAuthRequest([]byte{0, 0})
		require.Error(t, err)
	})
}

func TestParseSASLMechanisms(t *testing.T) {
	data := []byte("SCRAM-SHA-256-PLUS\x00SCRAM-SHA-256\x00\x00")
	assert.Equal(t, []string{"SCRAM-SHA-256-PLUS", "SCRAM-SHA-256"}, ParseSASLMechanisms(data))

	assert.Empty(t, ParseSASLMechanisms([]byte{0}))
	assert.Empty(t, ParseSASLMechanisms(nil))
}

func buildRowDescription(names ...string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(len(names)))
	for i, name := range names {
		buf.WriteString(name)
		buf.WriteByte(0)
		binary.Write(&buf, binary.BigEndian, uint32(0))     // table OID
		binary.Write(&buf, binary.BigEndian, uint16(i+1))   // attribute number
		binary.Write(&buf, binary.BigEndian, uint32(25))    // type OID (text)
		binary.Write(&buf, binary.BigEndian, int16(-1))     // type size
		binary.Write(&buf, binary.BigEndian, int32(-1))     // type modifier
		binary.Write(&buf, binary.BigEndian, uint16(0))     // format code
	}
	return buf.Bytes()
}

func TestParseRowDescription(t *testing.T) {
	columns, err := ParseRowDescription(buildRowDescription("id", "name"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, columns)
}

func TestParseRowDescriptionTruncated(t *testing.T) {
	body := buildRowDescription("id")
	_, err := ParseRowDescription(body[:len(body)-4])
	require.Error(t, err)

	_, err = ParseRowDescription([]byte{0})
	require.Error(t, err)
}

func TestParseDataRow(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(3))
	binary.Write(&buf, binary.BigEndian, int32(2))
	buf.WriteString("42")
	binary.Write(&buf, binary.BigEndian, int32(-1)) // NULL
	binary.Write(&buf, binary.BigEndian, int32(0))  // empty string

	values, err := ParseDataRow(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "", ""}, values)
}

func TestParseDataRowTruncated(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint16(1))
	binary.Write(&buf, binary.BigEndian, int32(10))
	buf.WriteString("short")

	_, err := ParseDataRow(buf.Bytes())
	require.Error(t, err)
}

func TestParseCommandComplete(t *testing.T) {
	cases := []struct {
		body     string
		wantTag  string
		wantRows int
		wantOK   bool
	}{
		{"INSERT 0 3\x00", "INSERT 0 3", 3, true},
		{"SELECT 12\x00", "SELECT 12", 12, true},
		{"UPDATE 0\x00", "UPDATE 0", 0, true},
		{"BEGIN\x00", "BEGIN", 0, false},
		{"CREATE TABLE\x00", "CREATE TABLE", 0, false},
		{"\x00", "", 0, false},
	}
	for _, tc := range cases {
		tag, rows, ok := ParseCommandComplete([]byte(tc.body))
		assert.Equal(t, tc.wantTag, tag)
		assert.Equal(t, tc.wantRows, rows)
		assert.Equal(t, tc.wantOK, ok)
	}
}

func TestParseParameterStatus(t *testing.T) {
	name, value, err := ParseParameterStatus([]byte("server_version\x0016.3\x00"))
	require.NoError(t, err)
	assert.Equal(t, "server_version", name)
	assert.Equal(t, "16.3", value)

	name, value, err = ParseParameterStatus([]byte("application_name\x00\x00"))
	require.NoError(t, err)
	assert.Equal(t, "application_name", name)
	assert.Equal(t, "", value)

	_, _, err = ParseParameterStatus([]byte("server_version\x00unterminated"))
	require.Error(t, err)

	_, _, err = ParseParameterStatus(nil)
	require.Error(t, err)
}

func TestParseReadyForQuery(t *testing.T) {
	assert.Equal(t, byte('I'), ParseReadyForQuery([]byte{'I'}))
	assert.Equal(t, byte('T'), ParseReadyForQuery([]byte{'T'}))
	assert.Equal(t, byte('E'), ParseReadyForQuery([]byte{'E'}))
	assert.Equal(t, byte('I'), ParseReadyForQuery(nil))
}
