//go:build linux

package driver

import (
	"os/exec"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/lxcbox/lxcbox/config"
	"github.com/lxcbox/lxcbox/domain"
	"github.com/lxcbox/lxcbox/lxcerr"
	"github.com/lxcbox/lxcbox/registry"
)

func TestOpenAcceptsExactURIAsRoot(t *testing.T) {
	ok, err := Open("lxc:///", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenRejectsNonRootCaller(t *testing.T) {
	ok, _ := Open("lxc:///", 1000)
	assert.False(t, ok)
}

func TestOpenRejectsWrongSchemeHostOrPath(t *testing.T) {
	cases := []string{"qemu:///system", "lxc://remote/", "lxc:///system", "", "not a uri://%%"}
	for _, uri := range cases {
		ok, _ := Open(uri, 0)
		assert.False(t, ok, uri)
	}
}

func newTestDriver() *Driver {
	return &Driver{
		ConfigDir: "",
		StateDir:  "",
		Registry:  registry.New(),
		HaveNetns: true,
	}
}

func TestDefineRejectsInterfacesWithoutNetns(t *testing.T) {
	d := newTestDriver()
	d.HaveNetns = false

	_, err := d.Define(&domain.Definition{Name: "a", Interfaces: []*domain.NetIface{{}}})
	require.Error(t, err)
	assert.Equal(t, lxcerr.NoSupport, lxcerr.KindOf(err))
}

func TestLookupByIDUUIDAndNameMiss(t *testing.T) {
	d := newTestDriver()

	_, err := d.LookupByID(42)
	assert.Equal(t, lxcerr.NoDomain, lxcerr.KindOf(err))

	_, err = d.LookupByUUID(uuid.New())
	assert.Equal(t, lxcerr.NoDomain, lxcerr.KindOf(err))

	_, err = d.LookupByName("ghost")
	assert.Equal(t, lxcerr.NoDomain, lxcerr.KindOf(err))
}

func TestGetInfoReportsConfiguredBoundAndFixedFields(t *testing.T) {
	d := newTestDriver()
	rt := &domain.Runtime{
		Def:   &domain.Definition{MaxMemory: 512 * 1024 * 1024},
		State: domain.Running,
	}

	info, err := d.GetInfo(rt)
	require.NoError(t, err)
	assert.Equal(t, domain.Running, info.State)
	assert.Equal(t, uint64(0), info.CPUTimeNS)
	assert.Equal(t, uint64(512*1024*1024), info.MaxMemory)
	assert.Equal(t, uint64(512*1024*1024), info.Memory)
	assert.Equal(t, uint(1), info.VCPUs)
}

func TestGetOSTypeIsLinux(t *testing.T) {
	assert.Equal(t, "linux", newTestDriver().GetOSType())
}

func TestDumpXMLRoundTripsDefinition(t *testing.T) {
	d := newTestDriver()
	rt := &domain.Runtime{Def: &domain.Definition{Name: "web1", UUID: uuid.New()}}

	out, err := d.DumpXML(rt)
	require.NoError(t, err)
	assert.Contains(t, out, "web1")

	got, err := config.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, rt.Def.UUID, got.UUID)
	assert.Equal(t, rt.Def.Name, got.Name)
}

func TestNotSupportedNamesTheOperation(t *testing.T) {
	err := NotSupported("migrate")
	assert.Equal(t, lxcerr.NoSupport, lxcerr.KindOf(err))
	assert.Contains(t, err.Error(), "migrate")
}

func TestUndefineRejectsActiveDomain(t *testing.T) {
	d := newTestDriver()
	rt, err := d.Registry.Assign(&domain.Definition{Name: "web1"})
	require.NoError(t, err)
	rt.RuntimeID = 123
	rt.State = domain.Running

	err = d.Undefine(rt)
	assert.Equal(t, lxcerr.InvalidDomain, lxcerr.KindOf(err))
}

func TestStartRejectsAlreadyActiveDomain(t *testing.T) {
	d := newTestDriver()
	rt, err := d.Registry.Assign(&domain.Definition{Name: "web1"})
	require.NoError(t, err)
	rt.RuntimeID = 123
	rt.State = domain.Running

	assert.Error(t, d.Start(rt))
}

func TestDestroyAndShutdownGracefulRejectInactiveDomain(t *testing.T) {
	d := newTestDriver()
	rt, err := d.Registry.Assign(&domain.Definition{Name: "web1"})
	require.NoError(t, err)

	assert.Equal(t, lxcerr.InvalidDomain, lxcerr.KindOf(d.Destroy(rt)))
	assert.Equal(t, lxcerr.InvalidDomain, lxcerr.KindOf(d.ShutdownGraceful(rt)))
}

func TestShutdownGracefulSignalsRealProcessAndMarksRequested(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	d := newTestDriver()
	rt, err := d.Registry.Assign(&domain.Definition{Name: "web1"})
	require.NoError(t, err)
	rt.RuntimeID = cmd.Process.Pid
	rt.State = domain.Running

	require.NoError(t, d.ShutdownGraceful(rt))
	assert.Equal(t, domain.ShutdownRequested, rt.State)

	assert.NoError(t, unix.Kill(cmd.Process.Pid, 0))
}

func TestStartupRequiresRoot(t *testing.T) {
	if unix.Geteuid() == 0 {
		t.Skip("only meaningful for a non-root caller")
	}
	_, err := Startup(t.TempDir(), t.TempDir())
	assert.Equal(t, lxcerr.CapabilityMissing, lxcerr.KindOf(err))
}

func TestStartupLoadsEmptyDirSuccessfully(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("needs root")
	}
	d, err := Startup(t.TempDir(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, d.CountActive())
	assert.Equal(t, 0, d.CountInactive())
	require.NoError(t, d.Shutdown())
}
