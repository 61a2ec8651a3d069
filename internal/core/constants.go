// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

// Global constants that several components need to agree on are defined here.
// If a constant is only needed for a single component, probably it should not
// be placed here.
const (
	// MaxNamedSems is the capacity of the named semaphore registry: the
	// maximum number of simultaneously live named semaphores. It does not
	// limit the number of opens of an existing name.
	MaxNamedSems = 32

	// NameMax is the maximum significant length of a semaphore name.
	// Lookup compares names up to this many bytes; longer names are
	// stored truncated.
	NameMax = 64

	// SemValueMax is the maximum value a semaphore count may reach.
	// POSIX guarantees at least 32767 and that is what we provide.
	SemValueMax = 32767

	// TickRate is the frequency of the monotonic tick source, in ticks per
	// second. Timed waits convert ticks to milliseconds with this factor.
	TickRate = 1000
)
