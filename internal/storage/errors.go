package storage

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrAlreadyPending is returned when a patch is enqueued twice.
	ErrAlreadyPending = errors.New("patch is already pending")

	// ErrNotPending is returned when an operation targets a patch
	// that has no pendingpatches row.
	ErrNotPending = errors.New("patch is not pending")

	// ErrBadReference is returned when a referenced patch or pending
	// job does not exist.
	ErrBadReference = errors.New("referenced row does not exist")

	// ErrNotFound is returned for lookups with no matching row.
	ErrNotFound = errors.New("not found")
)

// translateErr maps SQLite constraint failures onto the ledger's
// sentinel errors so callers can distinguish them without inspecting
// driver internals.
func translateErr(err error) error {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return err
	}
	switch serr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return ErrAlreadyPending
	case sqlite3.ErrConstraintForeignKey:
		return ErrBadReference
	}
	return err
}

// retryable reports whether an error is a transient SQLite lock that
// is worth retrying.
func retryable(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
}
