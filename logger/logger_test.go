//go:build linux

package logger

import (
	"bytes"
	"log/slog"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreateLoggerDefaultsOutputWhenNil(t *testing.T) {
	log := CreateLogger(&LoggerOpts{LogLevel: slog.LevelInfo, LogFormat: LogText})
	assert.NotNil(t, log)
	assert.Same(t, log, Log)
}

func TestCreateLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := CreateLogger(&LoggerOpts{LogLevel: slog.LevelInfo, LogFormat: LogText, Output: &buf})

	log.Info("hello", slog.String("k", "v"))

	out := buf.String()
	assert.Contains(t, out, "msg=hello")
	assert.Contains(t, out, "k=v")
	assert.Contains(t, out, "pid="+strconv.Itoa(os.Getpid()))
}

func TestCreateLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := CreateLogger(&LoggerOpts{LogLevel: slog.LevelWarn, LogFormat: LogJSON, Output: &buf})

	log.Info("filtered out below warn")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
