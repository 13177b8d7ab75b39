//go:build linux

package netif

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
)

// ConfigureContainerSide runs only on the launcher's start path, against
// a real cloned child's namespace, and no test calls it; unit-testing it
// here would require either a second real process or reaching into
// another thread's /proc/<pid>/task/<tid>/ns/net, so only its pure
// address-assignment helper is covered directly.
func TestAssignAddrIsIdempotent(t *testing.T) {
	inFreshNetns(t)
	SetNameDBPath(filepath.Join(t.TempDir(), "veth-names.db"))

	parent, _, err := Create("", "")
	require.NoError(t, err)
	require.NoError(t, Enable(parent))

	link, err := netlink.LinkByName(parent)
	require.NoError(t, err)

	require.NoError(t, AssignAddr(link, "10.250.9.1/24"))
	require.NoError(t, AssignAddr(link, "10.250.9.1/24"))

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}

func TestAssignAddrRejectsBadCIDR(t *testing.T) {
	inFreshNetns(t)
	SetNameDBPath(filepath.Join(t.TempDir(), "veth-names.db"))

	parent, _, err := Create("", "")
	require.NoError(t, err)

	link, err := netlink.LinkByName(parent)
	require.NoError(t, err)

	assert.Error(t, AssignAddr(link, "not-a-cidr"))
}
