//go:build linux

package reaper

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxcbox/lxcbox/domain"
	"github.com/lxcbox/lxcbox/registry"
)

func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestVMCleanupReapsChildKillsForwarderAndResetsState(t *testing.T) {
	container := startSleeper(t)
	forwarder := startSleeper(t)

	pidDir := t.TempDir()
	def := &domain.Definition{Name: "web1"}
	require.NoError(t, os.WriteFile(filepath.Join(pidDir, "web1.pid"), []byte("123"), 0o644))

	reg := registry.New()
	rt, err := reg.Assign(def)
	require.NoError(t, err)
	rt.State = domain.Running
	rt.RuntimeID = container.Process.Pid
	rt.ForwarderPID = forwarder.Process.Pid

	saved := false
	d := &Deps{
		Registry:   reg,
		PidFileDir: pidDir,
		SaveConfig: func(*domain.Definition) error { saved = true; return nil },
	}

	VMCleanup(d, rt)

	assert.Equal(t, domain.ShutOff, rt.State)
	assert.Equal(t, -1, rt.ForwarderPID)
	assert.Equal(t, -1, rt.RuntimeID)
	assert.Empty(t, rt.ContainerPTYSlave)
	assert.True(t, saved)

	_, err = os.Stat(filepath.Join(pidDir, "web1.pid"))
	assert.True(t, os.IsNotExist(err))

	// Both processes should now be reaped zombies/gone; Wait should
	// report them as already handled rather than block.
	assert.Error(t, container.Wait())
	assert.Error(t, forwarder.Wait())
}

func TestOnSigchldIgnoresUnknownSender(t *testing.T) {
	reg := registry.New()
	d := &Deps{Registry: reg}

	// Must not panic even though no runtime is registered under this pid.
	OnSigchld(d, 999999)
}

func TestOnSigchldDispatchesKnownSender(t *testing.T) {
	container := startSleeper(t)

	reg := registry.New()
	def := &domain.Definition{Name: "web2"}
	rt, err := reg.Assign(def)
	require.NoError(t, err)
	rt.State = domain.Running
	reg.ActivateID(rt, container.Process.Pid)
	rt.ForwarderPID = -1

	d := &Deps{Registry: reg}
	OnSigchld(d, container.Process.Pid)

	assert.Equal(t, domain.ShutOff, rt.State)
}
