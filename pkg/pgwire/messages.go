package pgwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// StartupParam is one key/value pair in the StartupMessage parameter list.
type StartupParam struct {
	Key   string
	Value string
}

// StartupPayload builds the StartupMessage body: protocol version, then
// NUL-terminated key/value pairs, then a final NUL terminating the list.
// The caller passes parameters in the order they should appear on the wire.
func StartupPayload(params []StartupParam) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(ProtocolVersion))
	for _, p := range params {
		writeCString(&buf, p.Key)
		writeCString(&buf, p.Value)
	}
	buf.WriteByte(0)
	return buf.Bytes()
}

// PasswordPayload builds the PasswordMessage ('p') body. The same message
// shape carries cleartext passwords and MD5 digests.
func PasswordPayload(password string) []byte {
	var buf bytes.Buffer
	writeCString(&buf, password)
	return buf.Bytes()
}

// SASLInitialResponsePayload builds the SASLInitialResponse ('p') body:
// mechanism name as a C string, then the initial response length and bytes.
func SASLInitialResponsePayload(mechanism, initialResponse string) []byte {
	var buf bytes.Buffer
	writeCString(&buf, mechanism)
	binary.Write(&buf, binary.BigEndian, uint32(len(initialResponse)))
	buf.WriteString(initialResponse)
	return buf.Bytes()
}

// SASLResponsePayload builds the SASLResponse ('p') body: the bare response
// bytes with no terminator.
func SASLResponsePayload(response string) []byte {
	return []byte(response)
}

// QueryPayload builds the simple Query ('Q') body: the SQL text as a C string.
func QueryPayload(sql string) []byte {
	var buf bytes.Buffer
	writeCString(&buf, sql)
	return buf.Bytes()
}

// ParsePayload builds the Parse ('P') body for the unnamed statement with no
// pre-declared parameter types: statement name, query, then a zero type count.
func ParsePayload(statement, query string) []byte {
	var buf bytes.Buffer
	writeCString(&buf, statement)
	writeCString(&buf, query)
	binary.Write(&buf, binary.BigEndian, uint16(0))
	return buf.Bytes()
}

// BindPayload builds the Bind ('B') body binding params to the unnamed
// portal in text format. Zero format-code counts select the default text
// format for every parameter and every result column. Each parameter is a
// signed 4-byte length followed by that many bytes.
func BindPayload(portal, statement string, params []string) []byte {
	var buf bytes.Buffer
	writeCString(&buf, portal)
	writeCString(&buf, statement)
	binary.Write(&buf, binary.BigEndian, uint16(0)) // param format codes: default text
	binary.Write(&buf, binary.BigEndian, uint16(len(params)))
	for _, p := range params {
		binary.Write(&buf, binary.BigEndian, int32(len(p)))
		buf.WriteString(p)
	}
	binary.Write(&buf, binary.BigEndian, uint16(0)) // result format codes: default text
	return buf.Bytes()
}

// ExecutePayload builds the Execute ('E') body: portal name and max row
// count, where 0 means no limit.
func ExecutePayload(portal string, maxRows int32) []byte {
	var buf bytes.Buffer
	writeCString(&buf, portal)
	binary.Write(&buf, binary.BigEndian, maxRows)
	return buf.Bytes()
}

// AuthRequest is a decoded 'R' message: the sub-code and whatever bytes
// follow it (salt for MD5, mechanism list for SASL, SCRAM messages for
// SASLContinue/SASLFinal).
type AuthRequest struct {
	Code uint32
	Data []byte
}

// ParseAuthRequest decodes an 'R' message body.
func ParseAuthRequest(body []byte) (AuthRequest, error) {
	if len(body) < 4 {
		return AuthRequest{}, fmt.Errorf("authentication message too short: %d bytes", len(body))
	}
	return AuthRequest{
		Code: binary.BigEndian.Uint32(body[0:4]),
		Data: body[4:],
	}, nil
}

// ParseSASLMechanisms decodes the mechanism list from an AuthenticationSASL
// message: NUL-terminated names ending with an empty name.
func ParseSASLMechanisms(data []byte) []string {
	var mechs []string
	pos := 0
	for pos < len(data) && data[pos] != 0 {
		end := bytes.IndexByte(data[pos:], 0)
		if end < 0 {
			mechs = append(mechs, string(data[pos:]))
			break
		}
		mechs = append(mechs, string(data[pos:pos+end]))
		pos += end + 1
	}
	return mechs
}

// rowDescriptionFieldTrailer is the fixed-size remainder of each
// RowDescription field after the name: table OID (4), attribute number (2),
// type OID (4), type size (2), type modifier (4), format code (2).
const rowDescriptionFieldTrailer = 18

// ParseRowDescription decodes a 'T' message body into the ordered list of
// column names. The per-field type descriptors are skipped: result values
// are always decoded as text.
func ParseRowDescription(body []byte) ([]string, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("row description too short: %d bytes", len(body))
	}
	fieldCount := int(binary.BigEndian.Uint16(body[0:2]))
	off := 2
	columns := make([]string, 0, fieldCount)
	for i := 0; i < fieldCount; i++ {
		name, next, err := readCString(body, off)
		if err != nil {
			return nil, fmt.Errorf("row description field %d: %w", i, err)
		}
		columns = append(columns, name)
		off = next + rowDescriptionFieldTrailer
		if off > len(body) {
			return nil, fmt.Errorf("row description field %d: truncated descriptor", i)
		}
	}
	return columns, nil
}

// ParseDataRow decodes a 'D' message body into per-column text values in
// wire order. A length of -1 denotes SQL NULL and decodes to the empty
// string, matching the text-only result model.
func ParseDataRow(body []byte) ([]string, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("data row too short: %d bytes", len(body))
	}
	colCount := int(binary.BigEndian.Uint16(body[0:2]))
	off := 2
	values := make([]string, 0, colCount)
	for i := 0; i < colCount; i++ {
		if off+4 > len(body) {
			return nil, fmt.Errorf("data row column %d: truncated length", i)
		}
		colLen := int32(binary.BigEndian.Uint32(body[off : off+4]))
		off += 4
		if colLen < 0 {
			values = append(values, "")
			continue
		}
		if off+int(colLen) > len(body) {
			return nil, fmt.Errorf("data row column %d: truncated value", i)
		}
		values = append(values, string(body[off:off+int(colLen)]))
		off += int(colLen)
	}
	return values, nil
}

// ParseCommandComplete decodes a 'C' message body. The command tag is
// returned whole; if its trailing token is numeric it is also returned as
// the affected-row count ("INSERT 0 3" yields 3, "BEGIN" yields ok=false).
func ParseCommandComplete(body []byte) (tag string, rows int, ok bool) {
	tag = strings.TrimSuffix(string(body), "\x00")
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return tag, 0, false
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return tag, 0, false
	}
	return tag, n, true
}

// ParseParameterStatus decodes an 'S' message body into a name/value pair.
func ParseParameterStatus(body []byte) (name, value string, err error) {
	name, off, err := readCString(body, 0)
	if err != nil {
		return "", "", fmt.Errorf("parameter status name: %w", err)
	}
	value, _, err = readCString(body, off)
	if err != nil {
		return "", "", fmt.Errorf("parameter status value: %w", err)
	}
	return name, value, nil
}

// ParseReadyForQuery decodes a 'Z' message body and returns the transaction
// status byte: 'I' idle, 'T' in transaction, 'E' in failed transaction.
func ParseReadyForQuery(body []byte) byte {
	if len(body) < 1 {
		return 'I'
	}
	return body[0]
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func readCString(b []byte, off int) (s string, next int, err error) {
	if off >= len(b) {
		return "", 0, fmt.Errorf("unterminated string at offset %d", off)
	}
	end := bytes.IndexByte(b[off:], 0)
	if end < 0 {
		return "", 0, fmt.Errorf("unterminated string at offset %d", off)
	}
	return string(b[off : off+end]), off + end + 1, nil
}
