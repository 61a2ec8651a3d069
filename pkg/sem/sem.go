// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package sem provides POSIX-shaped counting semaphores for a single
// process: anonymous semaphores owned by their creator, and named
// semaphores shared by every goroutine that opens the same name. There is
// no cross-process sharing; the shared flag of New is accepted and ignored.
//
// Blocking happens only in the wait family. Open, Close and Unlink are
// registry transactions that complete without suspending the caller.
package sem

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/jmtorrespalma/psem/internal/core"
	"github.com/jmtorrespalma/psem/internal/nsem"
	"github.com/jmtorrespalma/psem/internal/tick"
	"github.com/jmtorrespalma/psem/pkg/ksem"
)

// OpenFlag controls whether Open creates a semaphore or attaches to an
// existing one.
type OpenFlag int

const (
	// Create makes Open create the semaphore if it does not exist.
	Create OpenFlag = OpenFlag(nsem.Create)

	// Exclusive, passed along with Create, makes Open fail if a semaphore
	// with the name already exists.
	Exclusive OpenFlag = OpenFlag(nsem.Exclusive)
)

// OpenConfig carries the creation arguments of Open. Permissions are
// accepted for compatibility with the interprocess interface and ignored.
type OpenConfig struct {
	Permissions  os.FileMode
	InitialValue int
}

// Sem is one counting semaphore. The zero value is not usable; get one from
// New or Open.
type Sem struct {
	k *ksem.Sem

	// Set only for named semaphores.
	reg *nsem.Registry
	h   nsem.Handle
}

// registry holds every named semaphore of the process. It lives as long as
// the process and starts empty.
var registry = nsem.New(nsem.DefaultConfig)

// clock is the tick source for timed waits. Tests swap it for a frozen one.
var clock tick.Source = tick.Monotonic{}

// New creates an anonymous semaphore with the given initial value, the
// equivalent of sem_init. The semaphore is exclusively owned by the caller,
// which should destroy it with Destroy when done. The shared flag is
// meaningless in a single address space and is ignored.
func New(value int, shared bool) (*Sem, error) {
	if value < 0 || value > core.SemValueMax {
		return nil, core.ErrInvalidArgument.Error()
	}
	return &Sem{k: ksem.New(value, core.SemValueMax)}, nil
}

// Open attaches to the named semaphore, creating it first if flags contains
// Create and the name is not registered. Every successful Open counts one
// reference against the name, with no notion of which caller took it: a
// goroutine that opens a name twice holds two references and must close the
// semaphore twice.
func Open(name string, flags OpenFlag, cfg OpenConfig) (*Sem, error) {
	attr := nsem.CreateAttr{
		Permissions:  cfg.Permissions,
		InitialValue: cfg.InitialValue,
	}
	h, err := registry.Open(name, nsem.Flag(flags), attr)
	if err != core.NoError {
		return nil, err.Error()
	}

	// The reference taken above keeps the slot alive, so the semaphore
	// cannot be torn down before our Close.
	k, err := registry.Resolve(h)
	if err != core.NoError {
		return nil, err.Error()
	}
	return &Sem{k: k, reg: registry, h: h}, nil
}

// Unlink marks the named semaphore for destruction. Semaphores still open
// keep working; the name is destroyed once the last reference is closed, or
// immediately if none remain.
func Unlink(name string) error {
	return registry.Unlink(name).Error()
}

// Close releases one reference to a named semaphore. The Sem must not be
// used afterwards. Closing an anonymous semaphore fails with an invalid
// handle error.
func (s *Sem) Close() error {
	if s.reg == nil {
		return core.ErrInvalidHandle.Error()
	}
	if err := s.reg.Close(s.h); err != core.NoError {
		return err.Error()
	}
	s.k = nil
	return nil
}

// Destroy destroys an anonymous semaphore. It fails with a busy error if
// the count is non-zero at the time of the call. The Sem must not be used
// afterwards.
func (s *Sem) Destroy() error {
	if s.k.Count() != 0 {
		return core.ErrBusy.Error()
	}
	s.k = nil
	return nil
}

// Post increments the semaphore, waking a waiter if there is one.
func (s *Sem) Post() {
	s.k.Give()
}

// Wait decrements the semaphore, blocking until the count is positive.
func (s *Sem) Wait() {
	s.k.Take()
}

// TryWait attempts to decrement the semaphore without blocking, failing
// with a would-block error if the count is zero.
func (s *Sem) TryWait() error {
	if !s.k.TryTake() {
		return core.ErrWouldBlock.Error()
	}
	return nil
}

// TimedWait decrements the semaphore, blocking until the count is positive
// or the absolute deadline passes, whichever comes first. The deadline is
// measured on the monotonic tick counter, with sub-millisecond precision
// discarded. A deadline already in the past degrades to a single
// non-blocking attempt.
func (s *Sem) TimedWait(deadline unix.Timespec) error {
	d, err := tick.UntilDeadline(deadline, clock)
	if err != core.NoError {
		return err.Error()
	}
	if !s.k.TakeTimeout(d) {
		return core.ErrTimedOut.Error()
	}
	return nil
}

// Value returns the current count, the equivalent of sem_getvalue.
func (s *Sem) Value() int {
	return s.k.Count()
}

// Names returns a snapshot of the currently registered semaphore names.
func Names() []string {
	return registry.Names()
}

// OpStats returns human readable metric lines for the registry transaction
// types, keyed by operation name.
func OpStats() map[string]string {
	return registry.OpStats()
}
