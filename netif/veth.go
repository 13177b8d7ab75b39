//go:build linux

// Package netif implements the veth pair manager (C2) and bridge
// attach (C3) components: creating, naming, enabling, moving, and
// destroying veth pairs, and attaching a host-side endpoint to a
// named Linux bridge.
package netif

import (
	"fmt"
	"os"
	"syscall"

	"github.com/lxcbox/lxcbox/logger"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const defaultMTU = 1500

/**
 * Create makes a single veth pair via one rtnetlink operation. If
 * either name is empty on entry, a fresh unique name is allocated via
 * the name allocator (names.go). Returns the (parent, container) names.
 * @param parentName the desired host-side name, or "" to auto-allocate
 * @param containerName the desired container-side name, or "" to auto-allocate
 * @return the (parent, container) names actually created, or an error
 */
func Create(parentName, containerName string) (string, string, error) {
	var err error

	if parentName == "" {
		if parentName, err = AllocateName("v"); err != nil {
			return "", "", fmt.Errorf("allocate parent veth name: %w", err)
		}
	}
	if containerName == "" {
		if containerName, err = AllocateName("c"); err != nil {
			return "", "", fmt.Errorf("allocate container veth name: %w", err)
		}
	}

	v := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{
			Name: parentName,
			MTU:  defaultMTU,
		},
		PeerName: containerName,
	}

	if err := netlink.LinkAdd(v); err != nil && err != syscall.EEXIST {
		return "", "", fmt.Errorf("veth create %s/%s: %w", parentName, containerName, err)
	}

	return parentName, containerName, nil
}

/**
 * Enable brings a host-side veth endpoint up.
 */
func Enable(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(link); err != nil && err != syscall.EEXIST {
		return fmt.Errorf("enable %s: %w", name, err)
	}
	return nil
}

/**
 * Disable brings a host-side veth endpoint down.
 */
func Disable(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return fmt.Errorf("disable %s: %w", name, err)
	}
	return nil
}

/**
 * Move moves an endpoint into the network namespace of the given pid.
 */
func Move(name string, targetPID int) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", name, err)
	}
	if err := netlink.LinkSetNsPid(link, targetPID); err != nil {
		return fmt.Errorf("move %s to pid %d: %w", name, targetPID, err)
	}
	return nil
}

/**
 * Destroy deletes a veth endpoint; the peer disappears with it. Best
 * effort: failures are logged and swallowed so callers can continue
 * cleaning up the remaining interfaces of a container (§4.2/§4.6).
 */
func Destroy(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		if os.IsNotExist(err) || err == unix.ENODEV {
			return nil
		}
		logger.Log.Warn("veth destroy: lookup failed", "name", name, "err", err)
		return nil
	}
	if err := netlink.LinkDel(link); err != nil && !os.IsNotExist(err) {
		logger.Log.Warn("veth destroy failed", "name", name, "err", err)
	}
	return nil
}
