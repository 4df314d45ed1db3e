package client

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeParam renders a Go value as a SQL literal: numbers bare, strings
// single-quoted with embedded quotes doubled, booleans as TRUE/FALSE, nil
// as NULL. It exists for callers that assemble SQL text directly; values
// passed as query parameters are quoted by the executor instead.
func EncodeParam(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteLiteral(x), nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case fmt.Stringer:
		return quoteLiteral(x.String()), nil
	default:
		return "", newError(QueryError, fmt.Sprintf("cannot encode %T as a SQL literal", v))
	}
}

// quoteLiteral single-quotes s, doubling embedded single quotes. No other
// escaping is performed; NUL bytes are rejected upstream before any SQL is
// assembled.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
