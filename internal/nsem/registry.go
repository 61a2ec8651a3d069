// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package nsem implements the named semaphore registry: a fixed-capacity
// table mapping names to semaphores with create-or-attach semantics,
// reference counting across opens, and deferred destruction of names
// unlinked while still attached.
package nsem

import (
	"os"
	"sync"

	log "github.com/golang/glog"

	"github.com/jmtorrespalma/psem/internal/core"
	"github.com/jmtorrespalma/psem/pkg/ksem"
)

// Config encapsulates parameters for a registry.
type Config struct {
	Capacity int // Maximum number of simultaneously live names.
	NameMax  int // Names are stored and compared up to this many bytes.
}

// DefaultConfig includes default values for a registry.
var DefaultConfig = Config{
	Capacity: core.MaxNamedSems,
	NameMax:  core.NameMax,
}

// Flag controls whether Open creates a semaphore or simply attaches to it.
type Flag int

const (
	// Create makes Open create the semaphore if the name is not registered.
	Create Flag = 1 << iota

	// Exclusive, passed along with Create, makes Open fail if the name is
	// already registered.
	Exclusive
)

// CreateAttr carries the creation arguments of Open. Permissions are
// accepted for interface compatibility but unused: every semaphore lives in
// the single address space of the process.
type CreateAttr struct {
	Permissions  os.FileMode
	InitialValue int
}

// Handle is an opaque reference to a registered semaphore. It names a table
// slot together with the slot's liveness generation, so operations through a
// handle that outlived its slot fail with ErrInvalidHandle instead of
// touching whatever reused the slot. The zero Handle is never valid.
type Handle struct {
	slot int32 // 1-based table index; 0 marks the zero Handle
	gen  uint32
}

// slot is one entry of the registry table.
type slot struct {
	sem    *ksem.Sem
	name   string
	refs   int    // counts how many open handles exist for this name
	toFree bool   // flag set by unlink
	inUse  bool   // used to check if this spot is available
	gen    uint32 // bumped on every teardown
}

// Registry is a fixed-capacity table of named semaphores, shared by every
// goroutine of the process. A single mutex serializes all transactions on
// the table; no transaction ever blocks on a semaphore while holding it.
type Registry struct {
	cfg Config

	lock  sync.Mutex
	slots []slot
	used  int
}

var opm = newOpMetric("psem_registry_ops", "op")

// New creates an empty registry.
func New(cfg Config) *Registry {
	if cfg.Capacity <= 0 || cfg.NameMax <= 0 {
		panic("nsem: bad registry config")
	}
	return &Registry{
		cfg:   cfg,
		slots: make([]slot, cfg.Capacity),
	}
}

// clip truncates a name to the configured maximum significant length.
func (r *Registry) clip(name string) string {
	if len(name) > r.cfg.NameMax {
		return name[:r.cfg.NameMax]
	}
	return name
}

// findName returns the index of the live slot with the given (already
// clipped) name, or -1.
func (r *Registry) findName(name string) int {
	for i := range r.slots {
		if r.slots[i].inUse && r.slots[i].name == name {
			return i
		}
	}
	return -1
}

// slotFor resolves a handle to its live slot. A handle to a slot that was
// torn down fails the generation check even if the slot has been reused.
func (r *Registry) slotFor(h Handle) (*slot, core.Error) {
	i := int(h.slot) - 1
	if i < 0 || i >= len(r.slots) {
		return nil, core.ErrInvalidHandle
	}
	s := &r.slots[i]
	if !s.inUse || s.gen != h.gen {
		return nil, core.ErrInvalidHandle
	}
	return s, core.NoError
}

// Open attaches to the named semaphore, creating it first if requested and
// not present. It runs as a single transaction: concurrent creates of one
// name can never both allocate, and an exclusive create can never race a
// lookup.
//
// A successful Open counts one reference regardless of the caller, so a
// goroutine opening a name twice must close it twice.
func (r *Registry) Open(name string, flags Flag, attr CreateAttr) (h Handle, err core.Error) {
	op := opm.start("open")
	defer op.endWithSemError(&err)

	name = r.clip(name)

	r.lock.Lock()
	defer r.lock.Unlock()

	i := r.findName(name)
	if i < 0 && r.used == r.cfg.Capacity {
		return Handle{}, core.ErrCapacityExceeded
	}

	if i >= 0 {
		if flags&Exclusive != 0 {
			return Handle{}, core.ErrAlreadyExists
		}
		r.slots[i].refs++
		return Handle{slot: int32(i) + 1, gen: r.slots[i].gen}, core.NoError
	}

	if flags&Create == 0 {
		return Handle{}, core.ErrNotFound
	}
	if attr.InitialValue < 0 || attr.InitialValue > core.SemValueMax {
		return Handle{}, core.ErrInvalidArgument
	}

	// First free slot in table order. The capacity check above guarantees
	// one exists.
	for i = 0; r.slots[i].inUse; i++ {
	}
	s := &r.slots[i]
	s.sem = ksem.New(attr.InitialValue, core.SemValueMax)
	s.name = name
	s.refs = 1
	s.toFree = false
	s.inUse = true
	r.used++

	return Handle{slot: int32(i) + 1, gen: s.gen}, core.NoError
}

// Resolve returns the semaphore a handle refers to. Callers that want to
// block on the semaphore must do so on the returned value, after this call
// has released the table lock.
func (r *Registry) Resolve(h Handle) (*ksem.Sem, core.Error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	s, err := r.slotFor(h)
	if err != core.NoError {
		return nil, err
	}
	return s.sem, core.NoError
}

// Close detaches a handle, releasing one reference. The last close of a name
// that has been unlinked tears the slot down, making it eligible for reuse
// by a future create.
func (r *Registry) Close(h Handle) (err core.Error) {
	op := opm.start("close")
	defer op.endWithSemError(&err)

	r.lock.Lock()
	defer r.lock.Unlock()

	s, err := r.slotFor(h)
	if err != core.NoError {
		return err
	}

	s.refs--
	if s.refs == 0 && s.toFree {
		r.teardown(s)
	}
	return core.NoError
}

// Unlink marks the named semaphore for destruction. Handles already open
// keep operating on the same semaphore; the slot is torn down immediately if
// no references remain, otherwise on the last close.
func (r *Registry) Unlink(name string) (err core.Error) {
	op := opm.start("unlink")
	defer op.endWithSemError(&err)

	r.lock.Lock()
	defer r.lock.Unlock()

	i := r.findName(r.clip(name))
	if i < 0 {
		return core.ErrNotFound
	}

	s := &r.slots[i]
	s.toFree = true
	if s.refs == 0 {
		r.teardown(s)
	}
	return core.NoError
}

// teardown destroys a slot's semaphore and frees the slot. Called with the
// table lock held, exactly once per slot lifetime: either by the unlink that
// found no references or by the close that dropped the last one.
func (r *Registry) teardown(s *slot) {
	if c := s.sem.Count(); c != 0 {
		// Destroying with a non-zero count means posts and waits are
		// unbalanced for a semaphore nobody can reach anymore. Not fatal
		// for us, but almost certainly a bug in the caller.
		log.Errorf("destroying named semaphore %q with non-zero count %d", s.name, c)
	}
	s.sem = nil
	s.inUse = false
	s.toFree = false
	s.gen++
	r.used--
}

// Used returns how many names are currently registered.
func (r *Registry) Used() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.used
}

// Names returns a snapshot of the registered names in table order.
func (r *Registry) Names() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	var names []string
	for i := range r.slots {
		if r.slots[i].inUse {
			names = append(names, r.slots[i].name)
		}
	}
	return names
}

// OpStats returns human readable metric lines for each registry transaction
// type, for status pages.
func (r *Registry) OpStats() map[string]string {
	out := make(map[string]string)
	for _, op := range []string{"open", "close", "unlink"} {
		out[op] = opm.String(op)
	}
	return out
}
