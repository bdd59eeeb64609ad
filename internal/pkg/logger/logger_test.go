package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactValue(t *testing.T) {
	assert.Equal(t, "pk_l**********", redactValue("klaviyo_api_key", "pk_live_abc123"))
	assert.Equal(t, "****", redactValue("password", "ab"))
	assert.Equal(t, "plain", redactValue("client_id", "plain"))
	assert.Equal(t, "Bear*********", redactValue("Authorization", "Bearer abc123"))
}

func TestLogEmitsJSONWithRedaction(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	Info("sync started", "client_id", "c-1", "api_key", "pk_live_secret")

	var entry map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "sync started", entry["msg"])
	assert.Equal(t, "c-1", entry["client_id"])
	assert.Equal(t, "pk_l**********", entry["api_key"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel(WARN)
	defer SetLevel(INFO)

	Debug("hidden")
	Info("hidden too")
	Warn("visible")

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
	assert.Contains(t, buf.String(), "visible")
}
