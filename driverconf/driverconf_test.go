//go:build linux

package driverconf

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxcbox/lxcbox/logger"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(context.Background(), []string{"lxcboxd"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/lxcbox", cfg.ConfigDir)
	assert.Equal(t, "/var/run/lxcbox", cfg.StateDir)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, logger.LogText, cfg.LogFormat)
}

func TestParseHonorsFlags(t *testing.T) {
	cfg, err := Parse(context.Background(), []string{
		"lxcboxd",
		"--config-dir", "/tmp/conf",
		"--state-dir", "/tmp/state",
		"--log-level", "debug",
		"--log-format", "json",
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/conf", cfg.ConfigDir)
	assert.Equal(t, "/tmp/state", cfg.StateDir)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, logger.LogJSON, cfg.LogFormat)
}

func TestParseRejectsBadLogLevel(t *testing.T) {
	_, err := Parse(context.Background(), []string{"lxcboxd", "--log-level", "verbose"})
	assert.Error(t, err)
}

func TestParseRejectsBadLogFormat(t *testing.T) {
	_, err := Parse(context.Background(), []string{"lxcboxd", "--log-format", "yaml"})
	assert.Error(t, err)
}
