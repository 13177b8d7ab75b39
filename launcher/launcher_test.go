//go:build linux

package launcher

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"

	"github.com/lxcbox/lxcbox/domain"
	"github.com/lxcbox/lxcbox/netif"
)

func TestPidFilePathLayout(t *testing.T) {
	assert.Equal(t, "/var/run/lxcbox/web1.pid", pidFilePath("/var/run/lxcbox", "web1"))
}

func TestWritePidFileSkippedWhenDirEmpty(t *testing.T) {
	assert.NoError(t, writePidFile("", "web1", 42))
}

func TestWritePidFileWritesNumericContent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writePidFile(dir, "web1", 4242))

	data, err := os.ReadFile(filepath.Join(dir, "web1.pid"))
	require.NoError(t, err)
	assert.Equal(t, "4242", string(data))
}

func TestKillAndReapSkipsLowPids(t *testing.T) {
	// Must not panic or block even though pids 0/1 aren't ours to touch.
	killAndReap(0)
	killAndReap(1)
}

func TestKillAndReapStopsRealChild(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())

	killAndReap(cmd.Process.Pid)

	err := cmd.Wait()
	assert.Error(t, err, "sleep should have been killed, not exited cleanly")
}

func TestSpawnForwarderStartsAndCanBeReaped(t *testing.T) {
	exe, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("no cat binary available")
	}

	r1, w1, err := os.Pipe()
	require.NoError(t, err)
	defer r1.Close()
	defer w1.Close()
	r2, w2, err := os.Pipe()
	require.NoError(t, err)
	defer r2.Close()
	defer w2.Close()

	pid, err := spawnForwarder(exe, int(r1.Fd()), int(r2.Fd()))
	require.NoError(t, err)
	assert.Greater(t, pid, 0)

	killAndReap(pid)
}

func requireNetAdmin(t *testing.T) {
	t.Helper()
	if unix.Geteuid() != 0 {
		t.Skip("needs CAP_NET_ADMIN to manipulate links")
	}
}

func inFreshNetns(t *testing.T) {
	t.Helper()
	requireNetAdmin(t)

	runtime.LockOSThread()
	orig, err := netns.Get()
	require.NoError(t, err)

	fresh, err := netns.New()
	if err != nil {
		runtime.UnlockOSThread()
		t.Skipf("cannot create network namespace: %v", err)
	}

	t.Cleanup(func() {
		_ = netns.Set(orig)
		fresh.Close()
		orig.Close()
		runtime.UnlockOSThread()
	})
}

func TestBringUpAndDestroyInterfaces(t *testing.T) {
	inFreshNetns(t)
	netif.SetNameDBPath(filepath.Join(t.TempDir(), "veth-names.db"))

	def := &domain.Definition{
		Interfaces: []*domain.NetIface{
			{Type: domain.NetIfaceBridge, Target: "lxcboxtest1"},
		},
	}
	bc := netif.NewBridgeControl()

	require.NoError(t, bringUpInterfaces(def, bc))
	iface := def.Interfaces[0]
	assert.True(t, iface.HasVethNames())

	destroyInterface(iface)
	assert.Empty(t, iface.ParentVeth)
	assert.Empty(t, iface.ContainerVeth)
}
