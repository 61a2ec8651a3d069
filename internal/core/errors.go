// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

// Error is our own defined error type so that the registry and the facade
// can agree on exact failure kinds without string matching.
type Error int

const (
	// NoError means no error.
	NoError = Error(iota)

	//------ Errors from the registry level ------//

	// ErrCapacityExceeded is returned when a create is requested for a new
	// name but the registry table is full.
	ErrCapacityExceeded

	// ErrAlreadyExists is returned when an exclusive create finds the name
	// already registered.
	ErrAlreadyExists

	// ErrNotFound is returned when an open without the create flag, or an
	// unlink, names a semaphore that is not registered.
	ErrNotFound

	// ErrInvalidHandle is returned when a close is given a handle that does
	// not refer to a live slot (including handles to slots already torn down).
	ErrInvalidHandle

	//------ Errors from the semaphore level ------//

	// ErrInvalidArgument is returned if an argument is bad or confusing
	// (eg a deadline with an out-of-range nanosecond field, or an initial
	// value above SemValueMax).
	ErrInvalidArgument

	// ErrTimedOut is returned when a timed wait's deadline passes before
	// the semaphore becomes available.
	ErrTimedOut

	// ErrWouldBlock is returned by a non-blocking wait on an unavailable
	// semaphore.
	ErrWouldBlock

	// ErrBusy is returned by destroy while the semaphore count is non-zero.
	ErrBusy

	//------ Meta-error ------//

	// ErrUnknown is an error that we're not really sure about.
	ErrUnknown
)

var description = map[Error]string{
	NoError: "no error",

	// Registry level errors.
	ErrCapacityExceeded: "too many named semaphores",
	ErrAlreadyExists:    "named semaphore already exists",
	ErrNotFound:         "named semaphore does not exist",
	ErrInvalidHandle:    "handle does not refer to a live named semaphore",

	// Semaphore level errors.
	ErrInvalidArgument: "invalid argument",
	ErrTimedOut:        "timed out waiting for the semaphore",
	ErrWouldBlock:      "semaphore not available",
	ErrBusy:            "semaphore count is non-zero",

	// Meta-error.
	ErrUnknown: "unknown error!!!! contact a programming professional to diagnose",
}

// String returns a human readable error message.
func (e Error) String() string {
	if s, ok := description[e]; ok {
		return s
	}
	return "NO DESCRIPTION FOR ERROR FIX THIS"
}

// Error returns a golang error object with an error message corresponding to
// this core.Error.
func (e Error) Error() error {
	if e == NoError {
		return nil
	}
	return goError(e)
}

// Is checks whether the generic Go error 'g' is actually the receiver error
// underneath.
func (e Error) Is(g error) bool {
	b, ok := g.(goError)
	return ok && (Error)(b) == e
}

// goError is a wrapper type to make our Error act like Go's 'error'
type goError Error

// Error implements the 'error' interface.
func (g goError) Error() string {
	return (Error)(g).String()
}

// SemError gets the underlying core.Error from an error.
func SemError(err error) (Error, bool) {
	e, ok := err.(goError)
	return Error(e), ok
}

// IsTransientError checks if an error reports a condition that can clear on
// its own, meaning the caller may retry the wait (or the destroy) later.
// Hard failures like ErrNotFound or ErrInvalidHandle are not in this set.
func IsTransientError(err Error) bool {
	switch err {
	case ErrTimedOut,
		ErrWouldBlock,
		ErrBusy:
		return true
	}
	return false
}
