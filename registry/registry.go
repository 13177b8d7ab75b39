// Package registry implements the in-memory container registry (C8):
// the authoritative bookkeeping of known definitions and their runtime
// state, keyed by UUID with secondary lookup by numeric id and by name.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/goombaio/namegenerator"
	"github.com/google/uuid"

	"github.com/lxcbox/lxcbox/domain"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	byUUID map[uuid.UUID]*domain.Runtime
	byID   map[int]*domain.Runtime
	byName map[string]*domain.Runtime

	generator namegenerator.Generator
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byUUID:    make(map[uuid.UUID]*domain.Runtime),
		byID:      make(map[int]*domain.Runtime),
		byName:    make(map[string]*domain.Runtime),
		generator: namegenerator.NewNameGenerator(time.Now().UTC().UnixNano()),
	}
}

/**
 * Assign registers a definition, generating a UUID and/or a name when
 * the definition leaves them blank, and returns the fresh inactive
 * runtime entry for it. Satisfies invariant 5: every live container's
 * name and UUID are unique within the registry. A definition whose UUID
 * or name is already registered is rejected with an error; an existing
 * record is never updated or merged into.
 */
func (r *Registry) Assign(def *domain.Definition) (*domain.Runtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.UUID == uuid.Nil {
		def.UUID = uuid.New()
	}
	if _, exists := r.byUUID[def.UUID]; exists {
		return nil, fmt.Errorf("registry: uuid %s already registered", def.UUID)
	}

	if def.Name == "" {
		def.Name = r.generator.Generate()
	}
	if _, exists := r.byName[def.Name]; exists {
		return nil, fmt.Errorf("registry: name %q already registered", def.Name)
	}

	rt := domain.NewRuntime(def)
	r.byUUID[def.UUID] = rt
	r.byName[def.Name] = rt
	return rt, nil
}

// ActivateID indexes the runtime by its real kernel pid, the public
// domain id per the data model (domain.Runtime.RuntimeID): called once
// the launcher's clone3 step has actually produced a container root.
func (r *Registry) ActivateID(rt *domain.Runtime, pid int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt.RuntimeID = pid
	r.byID[pid] = rt
	return pid
}

// FindByID returns the runtime with the given active id, or nil.
func (r *Registry) FindByID(id int) *domain.Runtime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// FindByUUID returns the runtime with the given UUID, or nil.
func (r *Registry) FindByUUID(id uuid.UUID) *domain.Runtime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byUUID[id]
}

// FindByName returns the runtime with the given name, or nil.
func (r *Registry) FindByName(name string) *domain.Runtime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// ListActive returns up to limit active runtime ids; limit<=0 means
// unlimited.
func (r *Registry) ListActive(limit int) []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []int
	for id, rt := range r.byID {
		if rt.IsActive() {
			ids = append(ids, id)
			if limit > 0 && len(ids) >= limit {
				break
			}
		}
	}
	return ids
}

// CountActive returns the number of currently active containers.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, rt := range r.byID {
		if rt.IsActive() {
			count++
		}
	}
	return count
}

// ListInactive returns up to limit inactive container names; limit<=0
// means unlimited.
func (r *Registry) ListInactive(limit int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, rt := range r.byName {
		if !rt.IsActive() {
			names = append(names, name)
			if limit > 0 && len(names) >= limit {
				break
			}
		}
	}
	return names
}

// CountInactive returns the number of defined-but-not-running containers.
func (r *Registry) CountInactive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, rt := range r.byUUID {
		if !rt.IsActive() {
			count++
		}
	}
	return count
}

/**
 * RemoveInactive undefines an inactive runtime, dropping it from every
 * index. Returns an error if the runtime is still active (callers must
 * Destroy first).
 */
func (r *Registry) RemoveInactive(rt *domain.Runtime) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt.IsActive() {
		return fmt.Errorf("registry: cannot remove active container %q", rt.Def.Name)
	}

	delete(r.byUUID, rt.Def.UUID)
	delete(r.byName, rt.Def.Name)
	if rt.RuntimeID >= 0 {
		delete(r.byID, rt.RuntimeID)
	}
	return nil
}

// DeactivateID drops the id index entry once a container has fully
// stopped, restoring the |active|+|inactive|==|registry| invariant
// without removing the definition itself.
func (r *Registry) DeactivateID(rt *domain.Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt.RuntimeID >= 0 {
		delete(r.byID, rt.RuntimeID)
	}
	rt.RuntimeID = -1
}
