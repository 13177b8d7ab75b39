// Package domain holds the container driver's data model: the
// declarative container definition, its network-interface specs, and
// the ephemeral runtime record tracked while a container is known to
// the driver.
package domain

import (
	"os"

	"github.com/google/uuid"
)

/**
 * State is the lifecycle state of a runtime container record.
 */
type State int

const (
	ShutOff State = iota
	Running
	ShutdownRequested
)

func (s State) String() string {
	switch s {
	case ShutOff:
		return "shutoff"
	case Running:
		return "running"
	case ShutdownRequested:
		return "shutdown-requested"
	default:
		return "unknown"
	}
}

/**
 * NetIfaceType distinguishes the two ways an interface spec may
 * resolve to a host bridge.
 */
type NetIfaceType int

const (
	// NetIfaceBridge attaches directly to a named host bridge.
	NetIfaceBridge NetIfaceType = iota

	// NetIfaceNetwork attaches to a named logical network whose bridge
	// is resolved via the external network service collaborator.
	NetIfaceNetwork
)

/**
 * NetIface is a tagged-variant network-interface specification.
 * Mutable ParentVeth/ContainerVeth fields are filled in at start time;
 * per the data-model invariant, both are either null or both non-null.
 */
type NetIface struct {
	Type NetIfaceType

	// Bridge name (NetIfaceBridge) or network name (NetIfaceNetwork).
	Target string

	// Optional subnet CIDR for the bridge (e.g. "10.44.0.0/24"), used
	// to validate and scope NAT/FORWARD rules. Empty disables both.
	SubnetCIDR string

	// Whether to install host NAT/FORWARD rules for this bridge
	// interface's outbound traffic.
	NAT bool

	// Filled in at start time. Both empty pre-start, both set post-start.
	ParentVeth    string
	ContainerVeth string
}

/**
 * HasVethNames reports whether both veth endpoint names have been
 * assigned (i.e. the interface has been brought up at least once).
 */
func (n *NetIface) HasVethNames() bool {
	return n.ParentVeth != "" && n.ContainerVeth != ""
}

/**
 * Definition is the declarative container definition: stable uuid,
 * unique human name, OS hint, memory bound, optional init program,
 * optional console device, and an ordered interface list.
 */
type Definition struct {
	UUID     uuid.UUID
	Name     string
	OSHint   string
	MaxMemory uint64

	// Optional; empty means "no init override".
	InitPath string

	// Optional host-visible console device path. Overwritten with the
	// allocated PTY slave path once the parent tunnel is set up.
	Console string

	Interfaces []*NetIface
}

/**
 * Runtime is the ephemeral record that exists for every domain known
 * to the driver, from define until undefine. Its fields are mutated
 * only by the launcher (on start) and the reaper (on cleanup).
 */
type Runtime struct {
	Def *Definition

	// Kernel pid of the cloned container root; the public domain id.
	// -1 when inactive.
	RuntimeID int

	State State

	// Console forwarder process id; -1 when none.
	ForwarderPID int

	// Parent-side PTY master fd, and the container-side PTY master fd
	// / slave name. -1 / "" when not set up.
	ParentPTYMaster     int
	ContainerPTYMaster  int
	ContainerPTYSlave   string

	// Handshake socket pair; both non-nil only between clone and release.
	HandshakeParent *os.File
	HandshakeChild  *os.File

	// Path to the persisted XML config file for this domain.
	ConfigPath string
}

/**
 * NewRuntime creates an inactive runtime record wrapping def.
 */
func NewRuntime(def *Definition) *Runtime {
	return &Runtime{
		Def:                def,
		RuntimeID:          -1,
		State:              ShutOff,
		ForwarderPID:       -1,
		ParentPTYMaster:    -1,
		ContainerPTYMaster: -1,
	}
}

/**
 * IsActive reports whether the record is currently active, per
 * invariant 2 of the data model (runtime id >= 0 iff state is
 * running or shutdown-requested).
 */
func (r *Runtime) IsActive() bool {
	return r.RuntimeID >= 0 && (r.State == Running || r.State == ShutdownRequested)
}
