//go:build linux

// Package driverconf parses the driver-level command line: which
// directories to use for persisted definitions and runtime state, and
// the ambient logging configuration. Modeled on the teacher's CLI
// layer, generalized from sandbox-per-invocation flags to a long-running
// driver's startup flags.
package driverconf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/lxcbox/lxcbox/logger"
	"github.com/lxcbox/lxcbox/version"
)

// Config is the parsed result of the driver's command line.
type Config struct {
	ConfigDir string
	StateDir  string
	LogLevel  slog.Level
	LogFormat logger.LogFormat
}

/**
 * Parse builds a Config from argv, following the teacher's
 * urfave/cli-based option-parsing idiom.
 */
func Parse(ctx context.Context, args []string) (*Config, error) {
	var result *Config

	cmd := &cli.Command{
		Name:    "lxcboxd",
		Usage:   "Linux container lifecycle driver.",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Value: "/etc/lxcbox",
				Usage: "Directory holding persisted XML container definitions",
			},
			&cli.StringFlag{
				Name:  "state-dir",
				Value: "/var/run/lxcbox",
				Usage: "Directory holding runtime state (forwarder pid files)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
				Usage: "Log verbosity (debug|info|warn|error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format (text|json)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			level, err := parseLogLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			format, err := parseLogFormat(c.String("log-format"))
			if err != nil {
				return err
			}
			result = &Config{
				ConfigDir: c.String("config-dir"),
				StateDir:  c.String("state-dir"),
				LogLevel:  level,
				LogFormat: format,
			}
			return nil
		},
	}

	if err := cmd.Run(ctx, args); err != nil {
		_ = cli.ShowAppHelp(cmd)
		return nil, err
	}

	return result, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("bad --log-level %q", s)
	}
}

func parseLogFormat(s string) (logger.LogFormat, error) {
	switch s {
	case "text":
		return logger.LogText, nil
	case "json":
		return logger.LogJSON, nil
	default:
		return 0, fmt.Errorf("bad --log-format %q", s)
	}
}
