package utils

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogInterceptorStampsLines(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)

	_, err := li.Write([]byte("hello\nworld\n"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "line=1 time="), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "line=2 time="), lines[1])
	assert.True(t, strings.HasSuffix(lines[0], " hello"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], " world"), lines[1])
}

func TestLogInterceptorBuffersPartialLine(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)

	_, err := li.Write([]byte("par"))
	require.NoError(t, err)
	assert.Zero(t, out.Len(), "partial line must not be emitted")

	_, err = li.Write([]byte("tial\n"))
	require.NoError(t, err)
	assert.Contains(t, out.String(), " partial\n")
}

func TestLogInterceptorCloseFlushesTail(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)

	_, err := li.Write([]byte("tail without newline"))
	require.NoError(t, err)
	require.NoError(t, li.Close())

	assert.Contains(t, out.String(), "line=1 time=")
	assert.Contains(t, out.String(), "tail without newline")
}

func TestMultiLogHandlerFansOutByLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(NewMultiLogHandler(infoHandler, debugHandler))

	logger.Debug("quiet")
	assert.NotContains(t, infoBuf.String(), "quiet")
	assert.Contains(t, debugBuf.String(), "quiet")

	logger.Info("loud")
	assert.Contains(t, infoBuf.String(), "loud")
	assert.Contains(t, debugBuf.String(), "loud")
}
