package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRuntimeIsInactive(t *testing.T) {
	def := &Definition{Name: "web1"}
	rt := NewRuntime(def)

	assert.Equal(t, -1, rt.RuntimeID)
	assert.Equal(t, ShutOff, rt.State)
	assert.Equal(t, -1, rt.ForwarderPID)
	assert.False(t, rt.IsActive())
}

func TestRuntimeIsActiveRequiresBothIDAndState(t *testing.T) {
	rt := NewRuntime(&Definition{Name: "web1"})

	rt.State = Running
	assert.False(t, rt.IsActive(), "id still -1")

	rt.RuntimeID = 4242
	assert.True(t, rt.IsActive())

	rt.State = ShutdownRequested
	assert.True(t, rt.IsActive())

	rt.State = ShutOff
	assert.False(t, rt.IsActive())
}

func TestHasVethNamesRequiresBothEnds(t *testing.T) {
	iface := &NetIface{Type: NetIfaceBridge, Target: "br0"}
	assert.False(t, iface.HasVethNames())

	iface.ParentVeth = "veth0a1b2"
	assert.False(t, iface.HasVethNames())

	iface.ContainerVeth = "veth0c3d4"
	assert.True(t, iface.HasVethNames())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "shutoff", ShutOff.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "shutdown-requested", ShutdownRequested.String())
	assert.Equal(t, "unknown", State(99).String())
}
