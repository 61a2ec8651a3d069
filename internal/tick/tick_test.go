// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package tick

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jmtorrespalma/psem/internal/core"
)

// frozen is a tick source stuck at a fixed millisecond reading.
type frozen int64

func (f frozen) Ticks() int64 {
	return int64(f) * core.TickRate / 1000
}

func TestFutureDeadline(t *testing.T) {
	// Frozen at t=5s, deadline at t=7.5s: expect exactly 2.5s of wait.
	src := frozen(5000)
	d, err := UntilDeadline(unix.Timespec{Sec: 7, Nsec: 500e6}, src)
	if core.NoError != err {
		t.Fatal(err.String())
	}
	if 2500*time.Millisecond != d {
		t.Fatalf("expected 2.5s wait, got %v", d)
	}
}

func TestPastDeadline(t *testing.T) {
	src := frozen(10000)
	d, err := UntilDeadline(unix.Timespec{Sec: 3, Nsec: 0}, src)
	if core.NoError != err {
		t.Fatal(err.String())
	}
	if d > 0 {
		t.Fatalf("past deadline should yield a non-positive wait, got %v", d)
	}
}

func TestNowDeadline(t *testing.T) {
	src := frozen(4000)
	d, err := UntilDeadline(unix.Timespec{Sec: 4, Nsec: 0}, src)
	if core.NoError != err {
		t.Fatal(err.String())
	}
	if 0 != d {
		t.Fatalf("deadline equal to now should yield zero wait, got %v", d)
	}
}

func TestSubMillisecondDiscarded(t *testing.T) {
	src := frozen(0)
	// 999999ns is below a millisecond and must be dropped, not rounded up.
	d, err := UntilDeadline(unix.Timespec{Sec: 1, Nsec: 999999}, src)
	if core.NoError != err {
		t.Fatal(err.String())
	}
	if time.Second != d {
		t.Fatalf("expected 1s wait with sub-ms part discarded, got %v", d)
	}
}

func TestBadNanoseconds(t *testing.T) {
	src := frozen(0)
	for _, nsec := range []int64{-1, 1e9, 2e9} {
		ts := unix.Timespec{Sec: 1}
		ts.Nsec = nsec
		if _, err := UntilDeadline(ts, src); core.ErrInvalidArgument != err {
			t.Errorf("nsec=%d: expected ErrInvalidArgument, got %v", nsec, err)
		}
	}
}

func TestMonotonicAdvances(t *testing.T) {
	var m Monotonic
	a := m.Ticks()
	time.Sleep(5 * time.Millisecond)
	b := m.Ticks()
	if b <= a {
		t.Fatalf("ticks did not advance: %d then %d", a, b)
	}
}
