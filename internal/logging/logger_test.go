package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	quiet := New(Options{Writer: &buf})
	quiet.Debug("fetch started")
	quiet.Info("mutation settled", "status", "success")
	out := buf.String()
	assert.NotContains(t, out, "fetch started")
	assert.Contains(t, out, "mutation settled")
	assert.Contains(t, out, "status=success")

	buf.Reset()
	New(Options{Writer: &buf, Verbose: true}).Debug("fetch started", "key", "patients")
	assert.Contains(t, buf.String(), "key=patients")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Writer: &buf, Format: "json"}).Info("invalidated", "keys", 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &rec))
	assert.Equal(t, "invalidated", rec["msg"])
	assert.Equal(t, float64(2), rec["keys"])
	assert.Equal(t, "INFO", rec["level"])
}

func TestDiscard(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), 8))
}
