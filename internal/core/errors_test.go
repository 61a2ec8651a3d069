// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

import "testing"

func TestErrorRoundTrip(t *testing.T) {
	g := ErrTimedOut.Error()
	if g == nil {
		t.Fatal("non-NoError should produce a go error")
	}
	e, ok := SemError(g)
	if !ok || ErrTimedOut != e {
		t.Fatalf("expected ErrTimedOut back, got %v (%v)", e, ok)
	}
	if !ErrTimedOut.Is(g) {
		t.Fatal("Is should match the wrapped error")
	}
	if ErrBusy.Is(g) {
		t.Fatal("Is should not match a different error")
	}
}

func TestNoError(t *testing.T) {
	if NoError.Error() != nil {
		t.Fatal("NoError should map to a nil go error")
	}
	if _, ok := SemError(nil); ok {
		t.Fatal("SemError(nil) should not find an error")
	}
}

func TestDescriptions(t *testing.T) {
	for e := NoError; e <= ErrUnknown; e++ {
		if _, ok := description[e]; !ok {
			t.Errorf("error %d has no description", e)
		}
	}
}

func TestIsTransientError(t *testing.T) {
	for _, e := range []Error{ErrTimedOut, ErrWouldBlock, ErrBusy} {
		if !IsTransientError(e) {
			t.Errorf("%v should be transient", e)
		}
	}
	for _, e := range []Error{NoError, ErrNotFound, ErrInvalidHandle, ErrCapacityExceeded} {
		if IsTransientError(e) {
			t.Errorf("%v should not be transient", e)
		}
	}
}
