//go:build linux

// Package probe detects kernel namespace support and userland tooling
// availability for network namespace assignment.
package probe

import (
	"fmt"
	"log/slog"
	"os/exec"
	"unsafe"

	"github.com/lxcbox/lxcbox/logger"
	"golang.org/x/sys/unix"
)

// cloneArgs mirrors the clone3(2) ABI struct (uapi/linux/sched.h),
// adapted from the sandbox launcher's own clone3 invocation.
type cloneArgs struct {
	Flags      uint64
	Pidfd      uint64
	ChildTid   uint64
	ParentTid  uint64
	ExitSignal uint64
	Stack      uint64
	StackSize  uint64
	TLS        uint64
	SetTid     uint64
	SetTidSize uint64
	Cgroup     uint64
}

// Default namespace flags probed: PID | NS | UTS | USER | IPC, per §4.1.
const baseFlags = unix.CLONE_NEWPID |
	unix.CLONE_NEWNS |
	unix.CLONE_NEWUTS |
	unix.CLONE_NEWUSER |
	unix.CLONE_NEWIPC

/**
 * Probe forks a dummy child via clone3 with baseFlags|extraFlags|SIGCHLD
 * as the exit signal. No separate stack is allocated or passed: the
 * child runs on a copy of the parent's stack, as after fork, and exits
 * at once.
 * If the clone fails with EINVAL, namespaces are unavailable; otherwise
 * the probe reaps the child and reports ok.
 * @param extraFlags additional CLONE_* flags to probe alongside the base set
 * @return true if namespaces (plus extraFlags) are supported, false otherwise
 */
func Probe(extraFlags uintptr) (bool, error) {
	flags := uint64(baseFlags) | uint64(extraFlags)

	args := cloneArgs{
		Flags:      flags,
		ExitSignal: uint64(unix.SIGCHLD),
	}

	pid, _, errno := unix.Syscall(
		unix.SYS_CLONE3,
		uintptr(unsafe.Pointer(&args)),
		uintptr(unsafe.Sizeof(args)),
		0,
	)
	if errno == unix.EINVAL {
		logger.Log.Debug("clone3 returned EINVAL, namespaces unsupported")
		return false, nil
	}
	if errno != 0 {
		return false, fmt.Errorf("clone3 probe: %w", errno)
	}

	if pid == 0 {
		// Dummy child: exit immediately.
		unix.Exit(0)
	}

	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(int(pid), &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("reap probe child: %w", err)
		}
		break
	}

	return true, nil
}

/**
 * CheckNetNsSupport runs `ip link set lo netns -1` and inspects the
 * exit status: exit code 255 signals the tool lacks the netns
 * subcommand, any other non-zero means the command rejected the bogus
 * id (the tool is present). ANDed with a kernel probe for
 * CLONE_NEWNET support.
 * @return true if both the kernel and the `ip` tool support netns assignment
 */
func CheckNetNsSupport() bool {
	kernelOK, err := Probe(unix.CLONE_NEWNET)
	if err != nil || !kernelOK {
		if err != nil {
			logger.Log.Warn("kernel netns probe failed", slog.Any("err", err))
		}
		return false
	}

	cmd := exec.Command("ip", "link", "set", "lo", "netns", "-1")
	err = cmd.Run()
	if err == nil {
		// Exit 0 would be unexpected for a bogus netns id, but treat as present.
		return true
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		if exitErr.ExitCode() == 255 {
			// `ip` binary lacks the netns subcommand entirely.
			return false
		}
		// Any other non-zero: the tool parsed the command and rejected
		// the sentinel namespace id, i.e. the subcommand is present.
		return true
	}

	// ip not found, or some other exec failure.
	logger.Log.Warn("ip netns probe failed to execute", slog.Any("err", err))
	return false
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}
