//go:build linux

// Package launcher implements the container launcher (C6): the
// eight-step start sequence of §4.5, executed so that it appears
// atomic to the caller, with compensating cleanup on any failure from
// the clone step onward.
package launcher

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/lxcbox/lxcbox/domain"
	"github.com/lxcbox/lxcbox/handshake"
	"github.com/lxcbox/lxcbox/logger"
	"github.com/lxcbox/lxcbox/lxcerr"
	"github.com/lxcbox/lxcbox/netif"
	"github.com/lxcbox/lxcbox/pty"
)

// baseFlags mirrors §4.5 step 5: "PID|NS|UTS|USER|IPC|SIGCHLD".
const baseFlags = unix.CLONE_NEWPID | unix.CLONE_NEWNS | unix.CLONE_NEWUTS |
	unix.CLONE_NEWUSER | unix.CLONE_NEWIPC

const stackPages = 4

// cloneArgs mirrors the clone3 ABI (uapi/linux/sched.h).
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

// Options carries everything the launcher needs that isn't already on
// the domain.Runtime: where to persist the forwarder pid file, the
// re-exec path used to spawn the console forwarder subprocess, and a
// callback used to persist the updated definition once started.
type Options struct {
	PidFileDir   string
	ForwarderExe string
	BridgeCtl    *netif.BridgeControl
	SaveConfig   func(*domain.Definition) error

	// ActivateID indexes the runtime by its real kernel pid once the
	// clone3 step has produced one; defaults to assigning rt.RuntimeID
	// directly when nil.
	ActivateID func(rt *domain.Runtime, pid int) int
}

/**
 * Start runs the eight-step sequence of §4.5 against an inactive
 * runtime record, mutating it in place to reflect the new running
 * state on success. On any failure from step 5 (clone) onward, it
 * performs the full compensating cleanup (kill+reap child, destroy
 * interfaces, kill+reap forwarder, reset to shutoff) before returning;
 * failures before step 5 are cleaned up shallowly, in proportion to
 * what had actually been set up.
 */
func Start(rt *domain.Runtime, opts *Options) (err error) {
	def := rt.Def

	// Step 1: PTY.
	parentMaster, parentSlave, err := pty.SetupParent(def.Console != "")
	if err != nil {
		return lxcerr.Wrapf(lxcerr.Internal, err, "setup parent tty")
	}
	containerMaster, containerSlave, err := pty.SetupContainerSide()
	if err != nil {
		if parentMaster >= 0 {
			_ = unix.Close(parentMaster)
		}
		return lxcerr.Wrapf(lxcerr.Internal, err, "setup container tty")
	}

	cleanupPTY := func() {
		if parentMaster >= 0 {
			_ = unix.Close(parentMaster)
		}
		_ = unix.Close(containerMaster)
	}

	// Step 2: fork the console forwarder subprocess.
	forwarderPID, err := spawnForwarder(opts.ForwarderExe, parentMaster, containerMaster)
	if err != nil {
		cleanupPTY()
		return lxcerr.Wrapf(lxcerr.Internal, err, "spawn console forwarder")
	}
	if err := writePidFile(opts.PidFileDir, def.Name, forwarderPID); err != nil {
		logger.Log.Warn("failed to write forwarder pid file", slog.Any("err", err))
	}
	// The forwarder inherited both masters across exec; the parent no
	// longer needs them.
	if parentMaster >= 0 {
		_ = unix.Close(parentMaster)
	}
	_ = unix.Close(containerMaster)

	cleanupForwarder := func() {
		killAndReap(forwarderPID)
		_ = os.Remove(pidFilePath(opts.PidFileDir, def.Name))
	}

	// Step 3: veth bring-up, full C2+C3 pre-clone sequence per interface.
	if err := bringUpInterfaces(def, opts.BridgeCtl); err != nil {
		for _, iface := range def.Interfaces {
			destroyInterface(iface)
		}
		cleanupForwarder()
		return lxcerr.Wrapf(lxcerr.Internal, err, "bring up interfaces")
	}

	cleanupInterfaces := func() {
		for _, iface := range def.Interfaces {
			destroyInterface(iface)
		}
	}

	// Step 4: handshake pair.
	parentChan, childFile, err := newHandshakePair()
	if err != nil {
		cleanupInterfaces()
		cleanupForwarder()
		return lxcerr.Wrapf(lxcerr.Internal, err, "create handshake pair")
	}

	closeHandshake := func() {
		_ = parentChan.Close()
		_ = childFile.Close()
	}

	// Step 5: clone.
	needNet := len(def.Interfaces) > 0
	childPID, err := cloneContainer(needNet, parentChan.Fd(), childFile, containerSlave, def)
	if err != nil {
		closeHandshake()
		cleanupInterfaces()
		cleanupForwarder()
		return lxcerr.Wrapf(lxcerr.Internal, err, "clone container")
	}

	// From here on, any failure requires the deep compensation path:
	// kill the child, reap it, cleanup interfaces, kill the forwarder.
	deepCleanup := func() {
		killAndReap(childPID)
		cleanupInterfaces()
		cleanupForwarder()
		closeHandshake()
	}

	// The parent no longer needs the child's handshake end or the
	// container console slave side; the child (via the cloned process)
	// holds its own reference.
	_ = childFile.Close()

	// Step 6: move interfaces into the child's netns.
	if err := moveInterfaces(def, childPID); err != nil {
		deepCleanup()
		return lxcerr.Wrapf(lxcerr.Internal, err, "move interfaces into container netns")
	}

	if err := WriteIDMappings(childPID); err != nil {
		deepCleanup()
		return lxcerr.Wrapf(lxcerr.Internal, err, "write id mappings")
	}

	// Step 7: release.
	if err := parentChan.SendContinue(); err != nil {
		deepCleanup()
		return lxcerr.Wrapf(lxcerr.Internal, err, "release child")
	}
	_ = parentChan.Close()

	// Step 8: commit state.
	rt.ForwarderPID = forwarderPID
	rt.ParentPTYMaster = -1
	rt.ContainerPTYMaster = -1
	rt.ContainerPTYSlave = containerSlave
	rt.State = domain.Running
	if opts.ActivateID != nil {
		rt.RuntimeID = opts.ActivateID(rt, childPID)
	} else {
		rt.RuntimeID = childPID
	}
	def.Console = parentSlave

	if opts.SaveConfig != nil {
		if err := opts.SaveConfig(def); err != nil {
			logger.Log.Warn("failed to persist config after start", slog.Any("err", err))
		}
	}

	return nil
}

func newHandshakePair() (*handshake.Channel, *os.File, error) {
	parent, child, err := handshake.New()
	if err != nil {
		return nil, nil, err
	}
	return parent, os.NewFile(uintptr(child.Fd()), "handshake-child"), nil
}

func bringUpInterfaces(def *domain.Definition, bridgeCtl *netif.BridgeControl) error {
	for _, iface := range def.Interfaces {
		parentVeth, containerVeth, err := netif.Create("", "")
		if err != nil {
			return fmt.Errorf("create veth pair: %w", err)
		}
		iface.ParentVeth = parentVeth
		iface.ContainerVeth = containerVeth
		if iface.Type == domain.NetIfaceBridge && bridgeCtl != nil {
			if err := netif.BridgeAttach(bridgeCtl, iface.Target, parentVeth); err != nil {
				return fmt.Errorf("attach %s to bridge %s: %w", parentVeth, iface.Target, err)
			}
		}
		if err := netif.Enable(parentVeth); err != nil {
			return fmt.Errorf("enable %s: %w", parentVeth, err)
		}

		if iface.Type == domain.NetIfaceBridge && iface.SubnetCIDR != "" {
			if _, _, err := netif.ValidateSubnet(iface.SubnetCIDR); err != nil {
				return fmt.Errorf("validate subnet %s: %w", iface.SubnetCIDR, err)
			}
			if iface.NAT {
				if err := netif.EnableIPv4Forwarding(); err != nil {
					return fmt.Errorf("enable ipv4 forwarding: %w", err)
				}
				if err := netif.AddForwardingRules(iface.Target, iface.SubnetCIDR); err != nil {
					return fmt.Errorf("add forwarding rules for %s: %w", iface.Target, err)
				}
				if err := netif.AddMasqueradeRule(iface.Target, iface.SubnetCIDR); err != nil {
					return fmt.Errorf("add masquerade rule for %s: %w", iface.Target, err)
				}
			}
		}
	}
	return nil
}

func moveInterfaces(def *domain.Definition, childPID int) error {
	for _, iface := range def.Interfaces {
		if !iface.HasVethNames() {
			continue
		}
		if err := netif.Move(iface.ContainerVeth, childPID); err != nil {
			return fmt.Errorf("move %s into pid %d: %w", iface.ContainerVeth, childPID, err)
		}
		if err := netif.ConfigureContainerSide(childPID, iface.ContainerVeth, iface.ContainerVeth, "", ""); err != nil {
			return fmt.Errorf("configure %s in container: %w", iface.ContainerVeth, err)
		}
	}
	return nil
}

func destroyInterface(iface *domain.NetIface) {
	if iface.ParentVeth != "" {
		if err := netif.Destroy(iface.ParentVeth); err != nil {
			logger.Log.Warn("veth destroy failed", slog.String("veth", iface.ParentVeth), slog.Any("err", err))
		}
	}
	iface.ParentVeth = ""
	iface.ContainerVeth = ""
}

/**
 * spawnForwarder re-executes the current binary with a hidden
 * forwarding subcommand, inheriting the two PTY masters as extra
 * files. This keeps the forwarder as a genuinely separate OS process
 * (so it survives independently of the driver, per §4.5 step 2)
 * without requiring the Go runtime to tolerate a raw fork of a
 * multi-threaded process.
 */
func spawnForwarder(exePath string, parentMaster, containerMaster int) (int, error) {
	if exePath == "" {
		var err error
		exePath, err = os.Executable()
		if err != nil {
			return -1, err
		}
	}

	pf := os.NewFile(uintptr(parentMaster), "parent-master")
	defer pf.Close()
	cf := os.NewFile(uintptr(containerMaster), "container-master")
	defer cf.Close()

	cmd := exec.Command(exePath, "--forward-fds", "3", "4")
	cmd.ExtraFiles = []*os.File{pf, cf}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start forwarder: %w", err)
	}
	return cmd.Process.Pid, nil
}

func writePidFile(dir, name string, pid int) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(dir, name), []byte(strconv.Itoa(pid)), 0o644)
}

func pidFilePath(dir, name string) string {
	return dir + "/" + name + ".pid"
}

/**
 * cloneContainer implements §4.5 step 5: allocate a four-page stack
 * for parity with clone(2)'s mandatory caller-provided stack (clone3
 * itself ignores it without CLONE_VM, but the spec calls for it
 * explicitly), then call clone3 directly from the running process, as
 * the teacher's sandbox package does. The cloned child inherits the
 * handshake child fd and blocks on it before execing the container
 * init; the parent receives the child's pid back as the return value
 * of the clone3 syscall.
 */
func cloneContainer(needNet bool, parentHandshakeFd int, childHandshake *os.File, consoleSlave string, def *domain.Definition) (int, error) {
	flags := uint64(baseFlags | unix.SIGCHLD)
	if needNet {
		flags |= unix.CLONE_NEWNET
	}

	stack, err := unix.Mmap(-1, 0, stackPages*unix.Getpagesize(),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_STACK)
	if err != nil {
		return -1, fmt.Errorf("mmap clone stack: %w", err)
	}

	args := cloneArgs{
		Flags:      flags,
		ExitSignal: uint64(unix.SIGCHLD),
		Stack:      uint64(uintptr(unsafe.Pointer(&stack[0]))),
		StackSize:  uint64(len(stack)),
	}

	pid, _, errno := unix.Syscall(unix.SYS_CLONE3,
		uintptr(unsafe.Pointer(&args)), uintptr(unsafe.Sizeof(args)), 0)
	if errno != 0 {
		_ = unix.Munmap(stack)
		return -1, errno
	}

	if pid == 0 {
		childMain(parentHandshakeFd, childHandshake, consoleSlave, def)
		unix.Exit(127)
	}

	return int(pid), nil
}

/**
 * childMain runs in the cloned child; per §4.5 step 5 it closes the
 * parent's socket end (the child gets a copy of the whole fd table,
 * since clone3 is called without CLONE_FILES), waits for CONTINUE,
 * then execs the container init. It never returns on success.
 */
func childMain(parentHandshakeFd int, childHandshake *os.File, consoleSlave string, def *domain.Definition) {
	_ = unix.Close(parentHandshakeFd)
	ch := handshake.FromFd(int(childHandshake.Fd()))

	if err := ch.WaitContinue(); err != nil {
		unix.Exit(1)
	}
	_ = ch.Close()

	if def.OSHint != "" {
		_ = unix.Sethostname([]byte(def.Name))
	}

	initPath := def.InitPath
	if initPath == "" {
		initPath = "/sbin/init"
	}

	env := os.Environ()
	if consoleSlave != "" {
		env = append(env, "LXCBOX_CONSOLE="+consoleSlave)
	}

	_ = unix.Exec(initPath, []string{initPath}, env)
	// unix.Exec only returns on failure.
}

/**
 * killAndReap sends SIGKILL and retry-waits for the given pid,
 * tolerating ESRCH/ECHILD (the process already gone) and EINTR.
 * Skips pids below 2, mirroring the reaper's forwarder-pid guard.
 */
func killAndReap(pid int) {
	if pid < 2 {
		return
	}
	_ = unix.Kill(pid, unix.SIGKILL)

	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		return
	}
}
