//go:build linux

// Package pty implements the PTY tunnel component (C4): allocating
// master/slave PTY pairs, putting them in raw mode, and pumping bytes
// bidirectionally between host and container consoles.
package pty

import (
	"fmt"

	"golang.org/x/sys/unix"
)

/**
 * SetupParent allocates the parent tunnel PTY whose slave is exposed
 * as the container's console device. If consoleRequested is false (the
 * definition names no console device), no tunnel is opened and (-1, "", nil)
 * is returned. Grounded on lxcSetupTtyTunnel/lxcPutTtyInRawMode from the
 * original libvirt LXC driver.
 * @return the master fd and the slave device path, or an error
 */
func SetupParent(consoleRequested bool) (int, string, error) {
	if !consoleRequested {
		return -1, "", nil
	}

	master, slave, err := openPTY()
	if err != nil {
		return -1, "", fmt.Errorf("open parent tty: %w", err)
	}

	if err := putRawMode(master); err != nil {
		_ = unix.Close(master)
		return -1, "", fmt.Errorf("raw mode: %w", err)
	}

	return master, slave, nil
}

/**
 * SetupContainerSide allocates the container-console PTY whose slave
 * is what the in-container init attaches to. Grounded on
 * lxcSetupContainerTty.
 * @return the master fd and the slave device path, or an error
 */
func SetupContainerSide() (int, string, error) {
	master, slave, err := openPTY()
	if err != nil {
		return -1, "", fmt.Errorf("open container tty: %w", err)
	}
	return master, slave, nil
}

/**
 * openPTY implements the posix_openpt/grantpt/unlockpt/ptsname flow
 * directly on top of golang.org/x/sys/unix, since the stdlib exposes
 * no PTY primitives.
 */
func openPTY() (int, string, error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, "", fmt.Errorf("posix_openpt: %w", err)
	}

	// grantpt(3) is a no-op on Linux's devpts filesystem; unlockpt(3)
	// clears the kernel-side lock bit via TIOCSPTLCK.
	var unlock int32
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, int(unlock)); err != nil {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("unlockpt: %w", err)
	}

	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("ptsname (TIOCGPTN): %w", err)
	}

	slave := fmt.Sprintf("/dev/pts/%d", n)
	return fd, slave, nil
}

/**
 * putRawMode disables all line discipline on the given fd so every
 * character is passed directly through, per §4.3 "raw mode (all line
 * discipline disabled)".
 */
func putRawMode(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr: %w", err)
	}

	// cfmakeraw(3) equivalent.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("tcsetattr: %w", err)
	}
	return nil
}
