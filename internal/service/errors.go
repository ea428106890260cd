package service

import "errors"

// Extend is the one operation whose caller needs to know why it failed, so
// its failures are discriminated sentinels rather than wrapped opaque errors.
var (
	ErrEntryNotFound       = errors.New("queue entry not found")
	ErrEntryNotActive      = errors.New("queue entry is not active")
	ErrExtensionUsed       = errors.New("time extension already used")
	ErrExtensionNotAllowed = errors.New("time extension not allowed for this event")
)
