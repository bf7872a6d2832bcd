// Package apperr holds the sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// ErrBusy is returned while an algorithm switch holds the store.
	ErrBusy = errors.New("sync in progress")

	// ErrConsistency marks a broken cross-reference between items and tracked files.
	ErrConsistency = errors.New("consistency error")

	ErrUnsupportedConversion = errors.New("unsupported algorithm conversion")
	ErrPostCondition         = errors.New("conversion post-condition failed")

	// ErrAmbiguousCard is returned when a card moved and changed in the same sync.
	ErrAmbiguousCard = errors.New("ambiguous card identity")

	ErrInvalidOption = errors.New("invalid response option")
)
