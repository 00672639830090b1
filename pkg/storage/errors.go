package storage

import "errors"

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a record with the same key already exists.
var ErrAlreadyExists = errors.New("already exists")

// ErrConflict is returned when a record changed since it was read (version mismatch).
var ErrConflict = errors.New("concurrent modification")

// ErrPackUnavailable is returned when a pack guarded as available no longer is,
// or its version moved. Nothing was written.
var ErrPackUnavailable = errors.New("pack unavailable")

// ErrPackMismatch is returned when a pack expected to be reserved by a given
// transaction is not. Nothing was written.
var ErrPackMismatch = errors.New("pack reservation mismatch")
