//go:build linux

// Package reaper implements the reaper (C7): reclaiming a container's
// resources either because it exited spontaneously (discovered via
// SIGCHLD) or because the user asked for domain_destroy. Both paths
// converge on the same four-step VMCleanup.
package reaper

import (
	"log/slog"
	"os"

	"golang.org/x/sys/unix"

	"github.com/lxcbox/lxcbox/domain"
	"github.com/lxcbox/lxcbox/logger"
	"github.com/lxcbox/lxcbox/netif"
	"github.com/lxcbox/lxcbox/registry"
)

// Deps bundles the collaborators VMCleanup needs to update bookkeeping;
// PidFileDir and SaveConfig mirror launcher.Options so that a driver can
// share one configuration between the two.
type Deps struct {
	Registry   *registry.Registry
	PidFileDir string
	SaveConfig func(*domain.Definition) error
}

/**
 * OnSigchld is the signal-dispatch entry point of §4.6: it looks the
 * sender pid up in the registry and, if it names a known container
 * root, runs VMCleanup. Any other sender pid is ignored, since SIGCHLD
 * fires for unrelated reaped children too (e.g. the forwarder
 * subprocess itself, or shelled-out helpers).
 */
func OnSigchld(d *Deps, senderPID int) {
	rt := d.Registry.FindByID(senderPID)
	if rt == nil {
		return
	}
	VMCleanup(d, rt)
}

/**
 * VMCleanup is the four-step teardown of §4.6, safe to invoke either
 * from the async signal path or synchronously from domain_destroy.
 * Step failures past (1) and (3) are logged and do not stop the
 * remaining steps, since partial cleanup must never leave the registry
 * permanently wedged.
 */
func VMCleanup(d *Deps, rt *domain.Runtime) {
	def := rt.Def

	// Step 1: best-effort veth destroy for all interfaces.
	for _, iface := range def.Interfaces {
		if iface.ParentVeth != "" {
			if err := netif.Destroy(iface.ParentVeth); err != nil {
				logger.Log.Warn("veth destroy failed during cleanup",
					slog.String("veth", iface.ParentVeth), slog.Any("err", err))
			}
		}
		iface.ParentVeth = ""
		iface.ContainerVeth = ""
	}

	// Step 2: waitpid(container_pid), retried while interrupted;
	// "no child" is accepted as success.
	if rt.RuntimeID >= 0 {
		waitChild(rt.RuntimeID)
	}

	// Step 3: terminate the console forwarder with SIGKILL (skip pids
	// below 2), retry-waitpid it.
	if rt.ForwarderPID >= 2 {
		_ = unix.Kill(rt.ForwarderPID, unix.SIGKILL)
		waitChild(rt.ForwarderPID)
	}

	// Step 4: remove the tty pid file, reset state, fix up counters,
	// persist config.
	if d.PidFileDir != "" && def.Name != "" {
		_ = os.Remove(d.PidFileDir + "/" + def.Name + ".pid")
	}

	rt.State = domain.ShutOff
	rt.ForwarderPID = -1
	rt.ContainerPTYSlave = ""
	if d.Registry != nil {
		d.Registry.DeactivateID(rt)
	} else {
		rt.RuntimeID = -1
	}

	if d.SaveConfig != nil {
		if err := d.SaveConfig(def); err != nil {
			logger.Log.Warn("failed to persist config after cleanup", slog.Any("err", err))
		}
	}
}

// waitChild retry-waits for pid, accepting ECHILD ("no child") as
// success and retrying across EINTR.
func waitChild(pid int) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &ws, 0, nil)
		if err == unix.EINTR {
			continue
		}
		return
	}
}
