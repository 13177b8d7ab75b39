//go:build linux

package netif

import (
	"fmt"
	"os"
	"sync"

	"github.com/vishvananda/netlink"
)

/**
 * BridgeControl is a lazily-initialized handle shared by all interface
 * setups on a driver instance (§4.2, §5 "Shared resources").
 */
type BridgeControl struct {
	mu sync.Mutex
}

/**
 * NewBridgeControl constructs an (uninitialized) bridge control
 * handle. Construction is cheap; the actual kernel work happens lazily
 * on first use in BridgeAttach, matching the teacher's
 * "lazily-initializes a bridge-control handle the first time it is
 * used" behavior.
 */
func NewBridgeControl() *BridgeControl {
	return &BridgeControl{}
}

/**
 * EnsureBridge creates the named Linux bridge if it does not already
 * exist and brings it up.
 * @param name the bridge interface name
 * @return the bridge link, or an error
 */
func (b *BridgeControl) EnsureBridge(name string) (netlink.Link, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, err := netlink.LinkByName(name); err == nil {
		if err := netlink.LinkSetUp(l); err != nil {
			return nil, fmt.Errorf("bridge %s up: %w", name, err)
		}
		return l, nil
	}

	bridge := &netlink.Bridge{
		LinkAttrs: netlink.LinkAttrs{
			Name: name,
			MTU:  defaultMTU,
		},
	}
	if err := netlink.LinkAdd(bridge); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("create bridge %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(bridge); err != nil {
		return nil, fmt.Errorf("bridge %s up: %w", name, err)
	}
	return bridge, nil
}

/**
 * BridgeAttach attaches a host-side veth endpoint to a Linux bridge
 * (C3). The bring-up order for a single interface is strictly:
 * resolve bridge -> create pair -> BridgeAttach the parent side ->
 * Enable the parent side (§4.2); this function implements step 3.
 * @param b the bridge control handle
 * @param bridgeName the bridge to attach to
 * @param vethName the host-side veth endpoint name
 */
func BridgeAttach(b *BridgeControl, bridgeName, vethName string) error {
	bridge, err := b.EnsureBridge(bridgeName)
	if err != nil {
		return err
	}

	link, err := netlink.LinkByName(vethName)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", vethName, err)
	}

	if link.Attrs().MasterIndex != bridge.Attrs().Index {
		if err := netlink.LinkSetMaster(link, bridge); err != nil {
			return fmt.Errorf("attach %s to bridge %s: %w", vethName, bridgeName, err)
		}
	}
	return nil
}
