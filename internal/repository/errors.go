// Package repository defines the persistence collaborators of the
// session subsystem: the MySQL-backed credential store and the
// Redis-backed session store. The sentinel errors below let higher
// layers distinguish a missing record from a uniqueness violation and
// from an unreachable backend without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested account or session does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update would violate the
// uniqueness of a username or email.
var ErrConflict = errors.New("conflict")

// ErrUnavailable wraps every I/O failure of a backing store. Services
// translate it into a store-unavailable error for the caller.
var ErrUnavailable = errors.New("store unavailable")
