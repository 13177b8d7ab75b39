//go:build linux

package initcollab

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/lxcbox/lxcbox/handshake"
)

// Run implements the in-container init contract of §6: reads the
// CONTINUE token from handshakeFd, mounts the minimal filesystems,
// drops to the default capability and seccomp profile, then execs
// execPath. It never returns on success; on failure it returns an
// error for the caller (normally a test harness) to report, since
// a real clone-entry-point caller would os.Exit instead.
func Run(handshakeFd int, root, consoleSlave, execPath string, env []string) error {
	ch := handshake.FromFd(handshakeFd)
	if err := ch.WaitContinue(); err != nil {
		return fmt.Errorf("initcollab: wait continue: %w", err)
	}
	_ = ch.Close()

	if err := MountBasics(root); err != nil {
		return fmt.Errorf("initcollab: mount basics: %w", err)
	}
	if err := AttachConsole(root, consoleSlave); err != nil {
		return fmt.Errorf("initcollab: attach console: %w", err)
	}

	if err := DropToDefaultCaps(); err != nil {
		return fmt.Errorf("initcollab: drop capabilities: %w", err)
	}
	if err := ApplySeccomp(); err != nil {
		return fmt.Errorf("initcollab: apply seccomp: %w", err)
	}

	if execPath == "" {
		execPath = "/sbin/init"
	}
	if err := unix.Exec(execPath, []string{execPath}, env); err != nil {
		return fmt.Errorf("initcollab: exec %s: %w", execPath, err)
	}
	return nil
}
