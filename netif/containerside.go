//go:build linux

package netif

import (
	stdnet "net"
	"syscall"
	"time"

	"fmt"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

/**
 * ConfigureContainerSide finalizes the container-side veth endpoint
 * inside the child's network namespace: renames it to its final name,
 * brings it (and loopback) up, optionally assigns an address and a
 * default route. Deferred to the launcher because it requires the
 * clone to have produced a target pid (§4.2).
 *
 * Adapted from the sandbox networking package's configureContainerInterface,
 * generalized to accept an empty addrCIDR for interfaces whose address
 * is assigned by an in-container DHCP client rather than statically by
 * the driver (e.g. network-service-resolved interfaces).
 *
 * @param childPID the pid of the cloned container root
 * @param tempName the interface's current (pre-clone) name in the child netns
 * @param finalName the name it should have inside the container (e.g. "eth0")
 * @param addrCIDR address to assign, or "" to skip static assignment
 * @param gwCIDR the gateway's CIDR address, or "" to skip the default route
 */
func ConfigureContainerSide(childPID int, tempName, finalName, addrCIDR, gwCIDR string) error {
	hostNS, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get host netns: %w", err)
	}
	defer hostNS.Close()

	targetNS, err := netns.GetFromPid(childPID)
	if err != nil {
		return fmt.Errorf("get netns for pid %d: %w", childPID, err)
	}
	defer targetNS.Close()

	if err := netns.Set(targetNS); err != nil {
		return fmt.Errorf("enter netns of pid %d: %w", childPID, err)
	}
	defer netns.Set(hostNS)

	link, err := waitLinkByName(tempName, 5*time.Second)
	if err != nil {
		return fmt.Errorf("wait veth %s in ns: %w", tempName, err)
	}

	if finalName != "" && finalName != tempName {
		if err := netlink.LinkSetName(link, finalName); err != nil {
			return fmt.Errorf("rename %s->%s: %w", tempName, finalName, err)
		}
		link, err = waitLinkByName(finalName, 5*time.Second)
		if err != nil {
			return err
		}
	}

	if lo, _ := netlink.LinkByName("lo"); lo != nil {
		_ = netlink.LinkSetUp(lo)
	}

	if err := netlink.LinkSetUp(link); err != nil && err != syscall.EEXIST {
		return fmt.Errorf("link up: %w", err)
	}

	if addrCIDR != "" {
		if err := AssignAddr(link, addrCIDR); err != nil {
			time.Sleep(100 * time.Millisecond)
			if err2 := AssignAddr(link, addrCIDR); err2 != nil {
				return err2
			}
		}
	}

	if gwCIDR != "" {
		gwIP, _, err := stdnet.ParseCIDR(gwCIDR)
		if err != nil {
			return fmt.Errorf("parse gw %q: %w", gwCIDR, err)
		}
		route := &netlink.Route{
			LinkIndex: link.Attrs().Index,
			Scope:     netlink.SCOPE_UNIVERSE,
			Gw:        gwIP,
			Dst: &stdnet.IPNet{
				IP:   stdnet.IPv4zero,
				Mask: stdnet.IPv4Mask(0, 0, 0, 0),
			},
		}
		if err := netlink.RouteReplace(route); err != nil && err != syscall.EEXIST {
			return fmt.Errorf("default route via %s: %w", gwIP, err)
		}
	}

	return nil
}

/**
 * AssignAddr assigns the given CIDR address to the specified link,
 * tolerating an already-assigned identical address.
 */
func AssignAddr(link netlink.Link, cidr string) error {
	ip, ipnet, err := stdnet.ParseCIDR(cidr)
	if err != nil {
		return err
	}

	addr := &netlink.Addr{
		IPNet: &stdnet.IPNet{
			IP:   ip,
			Mask: ipnet.Mask,
		},
	}

	addrs, _ := netlink.AddrList(link, unix.AF_INET)
	for _, a := range addrs {
		if a.IPNet.String() == addr.IPNet.String() {
			return nil
		}
	}

	if err := netlink.AddrAdd(link, addr); err != nil && err != syscall.EEXIST {
		return fmt.Errorf("addr add %s: %w", addr.IPNet, err)
	}
	return nil
}

func waitLinkByName(name string, timeout time.Duration) (netlink.Link, error) {
	deadline := time.Now().Add(timeout)
	for {
		if link, err := netlink.LinkByName(name); err == nil {
			return link, nil
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil, fmt.Errorf("link %q not found", name)
}
