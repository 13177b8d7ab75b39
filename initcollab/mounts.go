//go:build linux

// Package initcollab is a reference implementation of the "in-container
// init" collaborator named in §6: a program that, when run as the
// clone entry point, reads the CONTINUE token from its handshake fd,
// mounts the minimal filesystems a container needs, drops to a
// restricted capability and seccomp profile, and execs the container's
// configured init. The real collaborator is out of this driver's
// scope; this package exists so the launcher's protocol can be
// exercised end-to-end in tests without a separate external binary.
package initcollab

import (
	"errors"
	"os"
	"path"

	"golang.org/x/sys/unix"
)

// MountBasics sets up /proc and a minimal /dev under the container's
// new root, adapted from the rootfs builder's procfs/devfs mounting.
// Unlike the original (which builds a full isolated tree for an
// arbitrary rootfs), this assumes the container root is already the
// intended filesystem and only adds the two namespaced mounts every
// container needs to have a usable console and inspectable process list.
func MountBasics(root string) error {
	if root == "" {
		return unix.EINVAL
	}

	procTarget := path.Join(root, "proc")
	if err := os.MkdirAll(procTarget, 0o755); err != nil {
		return err
	}
	if err := unix.Mount("proc", procTarget, "proc", unix.MS_NOSUID|unix.MS_NOEXEC|unix.MS_NODEV, ""); err != nil {
		return err
	}

	devTarget := path.Join(root, "dev")
	if err := os.MkdirAll(devTarget, 0o755); err != nil {
		return err
	}
	if err := unix.Mount("tmpfs", devTarget, "tmpfs", unix.MS_NOSUID|unix.MS_STRICTATIME, "mode=755,size=65536k"); err != nil {
		return err
	}

	ptsTarget := path.Join(devTarget, "pts")
	if err := os.MkdirAll(ptsTarget, 0o755); err != nil {
		return err
	}
	if err := unix.Mount("devpts", ptsTarget, "devpts", unix.MS_NOSUID|unix.MS_NOEXEC, "newinstance,ptmxmode=0666,mode=0620"); err != nil && !errors.Is(err, unix.EINVAL) {
		return err
	}

	return nil
}

// AttachConsole bind-mounts the PTY slave the launcher allocated onto
// /dev/console inside the new root, so the container's init finds a
// controlling terminal at the conventional path.
func AttachConsole(root, slave string) error {
	if slave == "" {
		return nil
	}
	target := path.Join(root, "dev", "console")
	f, err := os.OpenFile(target, os.O_CREATE, 0o600)
	if err == nil {
		_ = f.Close()
	}
	return unix.Mount(slave, target, "", unix.MS_BIND, "")
}
