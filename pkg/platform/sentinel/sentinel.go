// Package sentinel holds the storage-level facts stores report. Services map
// them onto coded domain errors; handlers never see them.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: a unique key (CID, key prefix, event id) already exists.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState: the record cannot make the requested transition.
	ErrInvalidState = errors.New("invalid state")
	// ErrOutOfOrder: the ledger already holds this sequence number for the CID.
	ErrOutOfOrder = errors.New("out of order")
	// ErrUnavailable: the backing store could not be reached.
	ErrUnavailable = errors.New("unavailable")
)
