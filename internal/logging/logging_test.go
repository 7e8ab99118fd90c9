package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriterFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(&buf, "debug")
	require.NoError(t, err)

	l.WithRequest("req-1").WithField("sink", "telegram").Debugf("sent %d", 3)
	l.WithDevice("mac-1").Info("stored")

	out := buf.String()
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "sink=telegram")
	assert.Contains(t, out, "sent 3")
	assert.Contains(t, out, "machine_id=mac-1")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := NewWithWriter(&bytes.Buffer{}, "loud")
	assert.Error(t, err)
}

func TestNewWritesRotatedFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := New(dir, "info")
	require.NoError(t, err)
	l.Info("hello")
	l.Close()

	data, err := os.ReadFile(filepath.Join(dir, "health-service.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
