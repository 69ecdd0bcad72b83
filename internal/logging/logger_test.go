package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_DebugGate(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, false)
	l.Infof("hello %d", 1)
	l.Debugf("hidden")
	l.Warnf("careful")

	out := buf.String()
	assert.Contains(t, out, "hello 1\n")
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "⚠️  careful")

	buf.Reset()
	New(&buf, true).Debugf("shown")
	assert.Contains(t, buf.String(), "[debug] shown")
}

func TestLogger_AttachFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "docsync.log")
	l := Discard()
	require.NoError(t, l.AttachFile(path))
	l.Infof("📝 generating")
	l.Warnf("fetch failed")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFO 📝 generating")
	assert.Contains(t, string(data), "WARN fetch failed")
}

func TestLogger_NilSafe(t *testing.T) {
	var l *Logger
	l.Infof("nothing")
	assert.False(t, l.DebugEnabled())
	assert.NoError(t, l.Close())
}
