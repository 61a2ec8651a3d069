// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package tick translates the absolute deadlines used by timed waits into
// the relative durations the semaphore primitive understands. Deadlines are
// measured against a monotonically increasing tick counter running at
// core.TickRate ticks per second.
package tick

import (
	"time"

	log "github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/jmtorrespalma/psem/internal/core"
)

// Source provides the current value of a monotonic tick counter.
type Source interface {
	Ticks() int64
}

// Monotonic is the real tick source, backed by CLOCK_MONOTONIC.
type Monotonic struct{}

// Ticks returns the monotonic clock reading converted to ticks.
func (Monotonic) Ticks() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// CLOCK_MONOTONIC is required by POSIX and this cannot fail with
		// a valid timespec pointer.
		log.Fatalf("clock_gettime(CLOCK_MONOTONIC) failed: %v", err)
	}
	return int64(ts.Sec)*core.TickRate + int64(ts.Nsec)*core.TickRate/int64(time.Second)
}

// UntilDeadline converts an absolute deadline into a relative wait duration
// using the given tick source. Sub-millisecond precision of the deadline is
// intentionally discarded. The result may be zero or negative, which a taker
// must treat as an immediate non-blocking attempt. Fails with
// ErrInvalidArgument if the nanosecond field is outside [0, 1e9).
func UntilDeadline(deadline unix.Timespec, src Source) (time.Duration, core.Error) {
	sec, nsec := int64(deadline.Sec), int64(deadline.Nsec)
	if nsec < 0 || nsec >= int64(time.Second) {
		return 0, core.ErrInvalidArgument
	}

	deadlineMs := sec*1000 + nsec/int64(time.Millisecond)
	nowMs := src.Ticks() * 1000 / core.TickRate

	return time.Duration(deadlineMs-nowMs) * time.Millisecond, core.NoError
}
