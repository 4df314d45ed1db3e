package client

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsNeverLeakPassword(t *testing.T) {
	creds := NewCredentials("alice", "tops3cret")

	outputs := []string{
		creds.String(),
		fmt.Sprint(creds),
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%+v", creds),
		fmt.Sprintf("%#v", creds),
		fmt.Sprintf("%s", creds),
		fmt.Sprintf("%q", creds),
	}
	js, err := json.Marshal(creds)
	require.NoError(t, err)
	outputs = append(outputs, string(js))
	txt, err := creds.MarshalText()
	require.NoError(t, err)
	outputs = append(outputs, string(txt))

	for _, out := range outputs {
		assert.NotContains(t, out, "tops3cret")
		assert.Contains(t, out, "alice")
	}
}

func TestCredentialsAccessors(t *testing.T) {
	creds := NewCredentials("alice", "pw")
	assert.Equal(t, "alice", creds.Username())
	assert.Equal(t, "pw", creds.Password())
}

func TestConfigDefaults(t *testing.T) {
	cfg := NewConfig("db.example.com", 0).withDefaults()
	assert.Equal(t, uint16(DefaultPort), cfg.Port)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultApplicationName, cfg.ApplicationName)
	assert.NotNil(t, cfg.Logger)
	assert.Equal(t, "db.example.com:5432", NewConfig("db.example.com", 0).Addr())
}
