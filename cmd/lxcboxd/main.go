//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sys/unix"

	"github.com/lxcbox/lxcbox/driver"
	"github.com/lxcbox/lxcbox/driverconf"
	"github.com/lxcbox/lxcbox/logger"
	"github.com/lxcbox/lxcbox/pty"
	"github.com/lxcbox/lxcbox/version"
)

// oneShotOps are the subcommands handled as a single CLI invocation
// against already-persisted driver state, rather than the long-running
// daemon loop: a one-shot "lxcboxd define ..."/"start ..." looks and
// behaves like virsh against a libvirt daemon, except the state lives
// directly on disk instead of behind a separate running process.
var oneShotOps = map[string]bool{
	"define": true, "start": true, "destroy": true, "list": true, "dumpxml": true,
}

/**
 * Application entry point. Doubles as the re-exec target for the
 * console forwarder subprocess: when invoked as
 * "lxcboxd --forward-fds <fd1> <fd2>" it never reaches the driver
 * startup path at all, and instead runs the PTY pump of §4.3 until
 * killed.
 */
func main() {
	if len(os.Args) >= 4 && os.Args[1] == "--forward-fds" {
		runForwarder(os.Args[2], os.Args[3])
		return
	}

	if len(os.Args) >= 2 && oneShotOps[os.Args[1]] {
		runOneShot(os.Args)
		return
	}

	cfg, err := driverconf.Parse(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "parsing error:", err)
		os.Exit(1)
	} else if cfg == nil {
		os.Exit(0)
	}

	log := logger.CreateLogger(&logger.LoggerOpts{
		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,
	})
	log.Info("starting", slog.String("config-dir", cfg.ConfigDir), slog.String("state-dir", cfg.StateDir))

	d, err := driver.Startup(cfg.ConfigDir, cfg.StateDir)
	if err != nil {
		log.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}
	d.ForwarderExe = mustExecutable()

	sigCh := make(chan os.Signal, 16)
	signal.Notify(sigCh, syscall.SIGCHLD, syscall.SIGTERM, syscall.SIGINT)

	log.Info("ready", slog.Bool("have-netns", d.HaveNetns))

	for sig := range sigCh {
		switch sig {
		case syscall.SIGCHLD:
			reapExited(d)
		case syscall.SIGTERM, syscall.SIGINT:
			log.Info("shutting down")
			_ = d.Shutdown()
			os.Exit(0)
		}
	}
}

// reapExited drains every exited child with a non-blocking wait4 loop
// and hands each one to the driver's signal handler, since Go's signal
// delivery carries no per-signal siginfo to read the sender pid from
// directly.
func reapExited(d *driver.Driver) {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		d.SignalHandler(unix.SIGCHLD, pid)
	}
}

func runForwarder(fd1Str, fd2Str string) {
	fd1, err1 := strconv.Atoi(fd1Str)
	fd2, err2 := strconv.Atoi(fd2Str)
	if err1 != nil || err2 != nil {
		os.Exit(2)
	}

	if err := pty.Forward(context.Background(), fd1, fd2); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

// runOneShot dispatches a single virsh-style subcommand (define, start,
// destroy, list, dumpxml) against already-persisted driver state and
// exits, rather than entering the daemon's signal loop.
func runOneShot(args []string) {
	cmd := &cli.Command{
		Name:     "lxcboxd",
		Version:  version.Version(),
		Commands: opsCommands(),
	}
	if err := cmd.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func mustExecutable() string {
	exe, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return exe
}
