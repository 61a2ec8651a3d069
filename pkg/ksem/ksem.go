// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package ksem

import (
	"time"
)

// Sem is a counting semaphore with a fixed upper bound on its count,
// implemented using a Go channel of tokens. A token in the channel is one
// unit of the count, so the channel capacity is the bound and queueing of
// blocked takers is left to the runtime. It is safe for use by multiple
// goroutines at once.
type Sem struct {
	slots chan struct{}
}

// New creates a semaphore with the given initial count and upper bound.
// It panics if max is not positive or initial is not in [0, max]; validating
// caller-supplied values is the caller's job.
func New(initial, max int) *Sem {
	if max <= 0 || initial < 0 || initial > max {
		panic("ksem: bad initial count or bound")
	}
	s := &Sem{slots: make(chan struct{}, max)}
	for i := 0; i < initial; i++ {
		s.slots <- struct{}{}
	}
	return s
}

// Take decrements the semaphore, blocking until the count is positive.
func (s *Sem) Take() {
	<-s.slots
}

// TryTake attempts to decrement the semaphore without blocking. It succeeds
// if and only if the count is positive at the invocation time.
func (s *Sem) TryTake() bool {
	select {
	case <-s.slots:
		return true
	default:
		return false
	}
}

// TakeTimeout attempts to decrement the semaphore, waiting at most d for the
// count to become positive. A non-positive d makes a single non-blocking
// attempt, like TryTake.
func (s *Sem) TakeTimeout(d time.Duration) bool {
	if d <= 0 {
		return s.TryTake()
	}
	select {
	case <-s.slots:
		return true
	case <-time.After(d):
		return false
	}
}

// Give increments the semaphore, waking a blocked taker if there is one.
// The count saturates at the bound; giving a full semaphore is a no-op.
func (s *Sem) Give() {
	select {
	case s.slots <- struct{}{}:
	default:
	}
}

// Count returns the current count.
func (s *Sem) Count() int {
	return len(s.slots)
}

// Max returns the upper bound on the count.
func (s *Sem) Max() int {
	return cap(s.slots)
}

// Reset drains the semaphore, setting its count to zero. Takers already
// blocked stay blocked until enough Gives happen after the reset.
func (s *Sem) Reset() {
	for {
		select {
		case <-s.slots:
		default:
			return
		}
	}
}
