package pgwire

import (
	"bytes"
	"fmt"

	"github.com/jackc/pgerrcode"
)

// PgError is a decoded ErrorResponse ('E') or NoticeResponse ('N') from the
// server. Raw preserves every field value in wire order for diagnostics.
type PgError struct {
	Severity string
	Code     string // SQLSTATE
	Message  string
	Detail   string
	Hint     string
	Raw      string
}

func (e *PgError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (SQLSTATE %s)", e.Message, e.Code)
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Raw
}

// IsAuthFailure reports whether the error is an authentication failure
// (invalid password or pg_hba rejection).
func (e *PgError) IsAuthFailure() bool {
	return e.Code == pgerrcode.InvalidPassword ||
		e.Code == pgerrcode.InvalidAuthorizationSpecification
}

// ParseErrorResponse decodes an ErrorResponse body: a sequence of
// single-byte field codes each followed by a C string, terminated by a
// zero byte. Unknown fields are kept in Raw but otherwise ignored.
func ParseErrorResponse(body []byte) *PgError {
	pgErr := &PgError{}
	var raw []string
	off := 0
	for off < len(body) && body[off] != 0 {
		fieldType := body[off]
		off++
		end := bytes.IndexByte(body[off:], 0)
		if end < 0 {
			end = len(body) - off
		}
		value := string(body[off : off+end])
		off += end + 1

		raw = append(raw, string(fieldType)+value)
		switch fieldType {
		case 'S':
			pgErr.Severity = value
		case 'C':
			pgErr.Code = value
		case 'M':
			pgErr.Message = value
		case 'D':
			pgErr.Detail = value
		case 'H':
			pgErr.Hint = value
		}
	}
	pgErr.Raw = joinFields(raw)
	return pgErr
}

func joinFields(fields []string) string {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(f)
	}
	return buf.String()
}
