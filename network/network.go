// Package network documents and provides a minimal implementation of
// the external network-service collaborator named in §6: resolving a
// logical network name to a handle, and a handle to the bridge name
// backing it. The real service lives outside this driver's scope;
// this package is the seam the launcher calls through.
package network

import (
	"fmt"
	"sync"
)

// Handle identifies a resolved logical network.
type Handle struct {
	name   string
	bridge string
}

// Service is the interface the launcher and driver consume; a real
// deployment wires this to the umbrella management service's network
// registry.
type Service interface {
	Lookup(name string) (*Handle, error)
	BridgeOf(h *Handle) string
	Release(h *Handle) error
}

// StaticService is a small in-memory Service backed by a fixed
// name->bridge table, useful for tests and for single-host deployments
// that don't run the full network management service.
type StaticService struct {
	mu      sync.RWMutex
	bridges map[string]string
}

// NewStaticService builds a StaticService from a name->bridge table.
func NewStaticService(bridges map[string]string) *StaticService {
	cp := make(map[string]string, len(bridges))
	for k, v := range bridges {
		cp[k] = v
	}
	return &StaticService{bridges: cp}
}

func (s *StaticService) Lookup(name string) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bridge, ok := s.bridges[name]
	if !ok {
		return nil, fmt.Errorf("network: no such network %q", name)
	}
	return &Handle{name: name, bridge: bridge}, nil
}

func (s *StaticService) BridgeOf(h *Handle) string {
	if h == nil {
		return ""
	}
	return h.bridge
}

// Release is a no-op for StaticService: static entries are never
// reference-counted, unlike a real network service's DHCP leases.
func (s *StaticService) Release(h *Handle) error {
	return nil
}
