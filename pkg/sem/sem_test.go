// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package sem

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jmtorrespalma/psem/internal/core"
	"github.com/jmtorrespalma/psem/internal/tick"
)

// frozenMs is a tick source stuck at a fixed millisecond reading.
type frozenMs int64

func (f frozenMs) Ticks() int64 {
	return int64(f) * core.TickRate / 1000
}

// withClock swaps the package tick source for the duration of a test.
func withClock(t *testing.T, src tick.Source) {
	t.Helper()
	old := clock
	clock = src
	t.Cleanup(func() { clock = old })
}

// cleanupName makes sure a test-created name is gone when the test ends,
// since the registry is process-wide package state.
func cleanupName(t *testing.T, name string) {
	t.Helper()
	t.Cleanup(func() { Unlink(name) })
}

func TestAnonymous(t *testing.T) {
	s, err := New(2, false)
	if err != nil {
		t.Fatal(err)
	}
	if 2 != s.Value() {
		t.Fatalf("expected value 2, got %d", s.Value())
	}

	s.Wait()
	s.Wait()
	if err := s.TryWait(); !core.ErrWouldBlock.Is(err) {
		t.Fatalf("expected ErrWouldBlock, got %v", err)
	}

	s.Post()
	if 1 != s.Value() {
		t.Fatalf("expected value 1 after post, got %d", s.Value())
	}

	if err := s.Destroy(); !core.ErrBusy.Is(err) {
		t.Fatalf("destroy with count 1 should be busy, got %v", err)
	}
	s.Wait()
	if err := s.Destroy(); err != nil {
		t.Fatal(err)
	}
}

func TestNewBadValue(t *testing.T) {
	if _, err := New(-1, false); !core.ErrInvalidArgument.Is(err) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := New(core.SemValueMax+1, true); !core.ErrInvalidArgument.Is(err) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

// TestOpenAttachClose runs the shared-name scenario: create with value 1,
// attach a second time, close both, and check the name stays registered.
func TestOpenAttachClose(t *testing.T) {
	cleanupName(t, "s")

	h1, err := Open("s", Create, OpenConfig{InitialValue: 1})
	if err != nil {
		t.Fatal(err)
	}
	h2, err := Open("s", 0, OpenConfig{})
	if err != nil {
		t.Fatal(err)
	}

	// Both handles operate on the same instance.
	h1.Wait()
	if 0 != h2.Value() {
		t.Fatal("wait through one handle should be visible through the other")
	}
	h2.Post()

	if err := h1.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h2.Close(); err != nil {
		t.Fatal(err)
	}

	// Not unlinked: the name remains attachable, with its value intact.
	h3, err := Open("s", 0, OpenConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if 1 != h3.Value() {
		t.Fatalf("expected the surviving value 1, got %d", h3.Value())
	}
	h3.Close()
}

// TestUnlinkThenClose runs the deferred-destruction scenario: unlink with a
// handle still open, then the final close destroys the name.
func TestUnlinkThenClose(t *testing.T) {
	h, err := Open("doomed", Create, OpenConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := Unlink("doomed"); err != nil {
		t.Fatal(err)
	}

	// Still usable through the open handle.
	h.Post()
	if err := h.TryWait(); err != nil {
		t.Fatal(err)
	}

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := Open("doomed", 0, OpenConfig{}); !core.ErrNotFound.Is(err) {
		t.Fatalf("expected ErrNotFound after unlink and close, got %v", err)
	}
}

func TestCloseAnonymous(t *testing.T) {
	s, err := New(0, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); !core.ErrInvalidHandle.Is(err) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestTimedWaitBadDeadline(t *testing.T) {
	s, err := New(1, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.TimedWait(unix.Timespec{Sec: 0, Nsec: 2e9}); !core.ErrInvalidArgument.Is(err) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	// The semaphore must not have been touched.
	if 1 != s.Value() {
		t.Fatalf("bad deadline consumed the count: %d", s.Value())
	}
}

func TestTimedWaitSuccess(t *testing.T) {
	withClock(t, frozenMs(5000))

	s, err := New(1, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.TimedWait(unix.Timespec{Sec: 6, Nsec: 0}); err != nil {
		t.Fatal(err)
	}
	if 0 != s.Value() {
		t.Fatalf("timed wait should have consumed the count, got %d", s.Value())
	}
}

func TestTimedWaitTimeout(t *testing.T) {
	withClock(t, frozenMs(5000))

	s, err := New(0, false)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	// 30ms past the frozen now.
	if err := s.TimedWait(unix.Timespec{Sec: 5, Nsec: 30e6}); !core.ErrTimedOut.Is(err) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("timed wait returned before the deadline")
	}
}

func TestTimedWaitExpiredDeadline(t *testing.T) {
	withClock(t, frozenMs(5000))

	s, err := New(0, false)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := s.TimedWait(unix.Timespec{Sec: 1, Nsec: 0}); !core.ErrTimedOut.Is(err) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	// A deadline in the past must not block at all.
	if time.Since(start) > 20*time.Millisecond {
		t.Fatal("expired deadline should fail immediately")
	}

	// But it still succeeds when the count is available.
	s.Post()
	if err := s.TimedWait(unix.Timespec{Sec: 1, Nsec: 0}); err != nil {
		t.Fatal(err)
	}
}

func TestNamedTimedWait(t *testing.T) {
	cleanupName(t, "timed")
	withClock(t, frozenMs(1000))

	h, err := Open("timed", Create, OpenConfig{InitialValue: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if err := h.TimedWait(unix.Timespec{Sec: 1, Nsec: 50e6}); err != nil {
		t.Fatal(err)
	}
	if err := h.TimedWait(unix.Timespec{Sec: 1, Nsec: 50e6}); !core.ErrTimedOut.Is(err) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestWaitBlocksUntilPost(t *testing.T) {
	cleanupName(t, "blocky")

	h, err := Open("blocky", Create, OpenConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned without a post")
	case <-time.After(50 * time.Millisecond):
	}

	h.Post()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after a post")
	}
}

func TestNames(t *testing.T) {
	cleanupName(t, "visible")

	h, err := Open("visible", Create, OpenConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	found := false
	for _, n := range Names() {
		if n == "visible" {
			found = true
		}
	}
	if !found {
		t.Fatalf("open name missing from Names(): %v", Names())
	}
}
