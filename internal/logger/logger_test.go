package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelGating(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("info", "text", &buf)

	l.Debug("hidden %d", 1)
	assert.Empty(t, buf.String())

	l.Info("sent %d items", 3)
	assert.Contains(t, buf.String(), "sent 3 items")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("debug", "json", &buf)

	l.Warn("stock feed has %d rows", 0)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "stock feed has 0 rows", rec["msg"])
}
