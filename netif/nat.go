//go:build linux

package netif

import (
	"fmt"
	stdnet "net"
	"os"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/coreos/go-iptables/iptables"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

/**
 * EnableIPv4Forwarding turns on host-wide IPv4 forwarding, required
 * for bridge-mode containers to reach outside networks. Must be run
 * as root.
 */
func EnableIPv4Forwarding() error {
	const p = "/proc/sys/net/ipv4/ip_forward"
	if err := os.WriteFile(p, []byte("1\n"), 0o644); err != nil {
		return fmt.Errorf("enable ipv4 forwarding: %w", err)
	}
	return nil
}

/**
 * DefaultInterface finds the host's default outbound interface, used
 * to scope FORWARD/MASQUERADE rules to the actual egress path.
 */
func DefaultInterface() (string, error) {
	routes, err := netlink.RouteGet(stdnet.ParseIP("8.8.8.8"))
	if err == nil {
		for _, r := range routes {
			if r.LinkIndex != 0 {
				if l, err := netlink.LinkByIndex(r.LinkIndex); err == nil {
					return l.Attrs().Name, nil
				}
			}
		}
	}

	// Fallback for hosts where a probe route lookup fails (no reachable
	// default route, or the probe address itself unreachable): scan the
	// main routing table for the default entry directly.
	filter := &netlink.Route{Table: unix.RT_TABLE_MAIN}
	all, err2 := netlink.RouteListFiltered(unix.AF_INET, filter, netlink.RT_FILTER_TABLE)
	if err2 != nil {
		return "", fmt.Errorf("route list: %w", err2)
	}
	for _, r := range all {
		if r.Dst == nil && r.LinkIndex != 0 {
			if l, err := netlink.LinkByIndex(r.LinkIndex); err == nil {
				return l.Attrs().Name, nil
			}
		}
	}
	return "", fmt.Errorf("default route interface not found")
}

/**
 * AddForwardingRules installs iptables FORWARD rules allowing bridge
 * traffic to flow to/from the host's default interface.
 * @param iface the bridge interface name
 * @param subnetCIDR the bridge subnet, for an optional intra-bridge rule
 */
func AddForwardingRules(iface, subnetCIDR string) error {
	ipt, err := iptables.New()
	if err != nil {
		return err
	}

	defaultIf, err := DefaultInterface()
	if err != nil {
		return err
	}

	outRule := []string{"-i", iface, "-o", defaultIf, "-j", "ACCEPT"}
	if err := ensureRule(ipt, "filter", "FORWARD", outRule); err != nil {
		return err
	}

	inRule := []string{"-i", defaultIf, "-o", iface, "-m", "conntrack", "--ctstate", "RELATED,ESTABLISHED", "-j", "ACCEPT"}
	if err := ensureRule(ipt, "filter", "FORWARD", inRule); err != nil {
		return err
	}

	if subnetCIDR != "" {
		localRule := []string{"-i", iface, "-o", iface, "-s", subnetCIDR, "-d", subnetCIDR, "-j", "ACCEPT"}
		_ = ensureRule(ipt, "filter", "FORWARD", localRule)
	}

	return nil
}

/**
 * AddMasqueradeRule installs a NAT MASQUERADE rule for outbound
 * traffic leaving the given subnet via an interface other than the bridge.
 */
func AddMasqueradeRule(iface, subnetCIDR string) error {
	if subnetCIDR == "" {
		return nil
	}
	ipt, err := iptables.New()
	if err != nil {
		return err
	}
	return ensureRule(ipt, "nat", "POSTROUTING", []string{
		"-s", subnetCIDR, "!", "-o", iface, "-j", "MASQUERADE",
	})
}

func ensureRule(ipt *iptables.IPTables, table, chain string, rule []string) error {
	exists, err := ipt.Exists(table, chain, rule...)
	if err != nil {
		return fmt.Errorf("iptables exists %s/%s: %w", table, chain, err)
	}
	if exists {
		return nil
	}
	if err := ipt.Insert(table, chain, 1, rule...); err != nil {
		return fmt.Errorf("iptables insert %s/%s %v: %w", table, chain, rule, err)
	}
	return nil
}

/**
 * ValidateSubnet parses a subnet CIDR and returns its address range,
 * used by the launcher to sanity-check a bridge interface's configured
 * subnet before any NAT rules are installed for it.
 */
func ValidateSubnet(subnetCIDR string) (first, last stdnet.IP, err error) {
	_, ipNet, err := stdnet.ParseCIDR(subnetCIDR)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid subnet CIDR: %w", err)
	}
	if ipNet.IP.To4() == nil {
		return nil, nil, fmt.Errorf("only IPv4 subnets supported")
	}
	f, l := cidr.AddressRange(ipNet)
	return f, l, nil
}
