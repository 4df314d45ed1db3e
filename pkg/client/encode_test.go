package client

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParam(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "NULL"},
		{"string", "hello", "'hello'"},
		{"string with quote", "it's", "'it''s'"},
		{"true", true, "TRUE"},
		{"false", false, "FALSE"},
		{"int", 42, "42"},
		{"negative int", -7, "-7"},
		{"int32", int32(-1), "-1"},
		{"int64", int64(1) << 40, "1099511627776"},
		{"uint", uint(3), "3"},
		{"uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"float64", 3.5, "3.5"},
		{"float32", float32(0.25), "0.25"},
		{"stringer", netip.MustParseAddr("10.0.0.1"), "'10.0.0.1'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeParam(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEncodeParamUnsupported(t *testing.T) {
	_, err := EncodeParam(struct{ X int }{1})
	require.Error(t, err)
	assert.True(t, IsKind(err, QueryError))

	_, err = EncodeParam([]byte("raw"))
	require.Error(t, err)
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "''", quoteLiteral(""))
	assert.Equal(t, "'a'", quoteLiteral("a"))
	assert.Equal(t, "''''", quoteLiteral("'"))
	assert.Equal(t, "'; DROP TABLE users; --'", quoteLiteral("; DROP TABLE users; --"))
}
