// status.go defines the closed set of publication statuses for a catalog entry and the
// transition table that every status write is checked against. Keeping the machine in one
// place means a new status cannot be introduced without updating the transition table, and
// no caller can move an entry along an edge the pipeline does not define.
package models

import "sort"

// EntryStatus is the publication state of a catalog entry.
type EntryStatus string

const (
	// StatusPendingReview is the initial state of every upload and republish; the
	// processing pipeline (scan, pin) runs while the entry sits here.
	StatusPendingReview EntryStatus = "pending_review"

	// StatusScanFailed means the remote security scan rejected the archive.
	// Recoverable via retry.
	StatusScanFailed EntryStatus = "scan_failed"

	// StatusPinFailed means pinning the archive to the content-addressed store
	// failed (download, upload, or missing identifier). Recoverable via retry.
	// The value keeps the legacy "ipfs_pin_failed" spelling for wire compatibility.
	StatusPinFailed EntryStatus = "ipfs_pin_failed"

	// StatusApproved means the entry passed scan and pin and is publicly visible.
	StatusApproved EntryStatus = "approved"

	// StatusRejected is set by an admin review decision.
	StatusRejected EntryStatus = "rejected"

	// StatusArchived is the terminal soft-delete state. Entries are never removed
	// from the database; "delete" moves them here.
	StatusArchived EntryStatus = "archived"
)

// transitions is the full edge set of the status machine. The automatic pipeline
// owns pending_review → {scan_failed, ipfs_pin_failed, approved}; retry owns the
// failure states back to pending_review; republish re-enters pending_review from
// any live state; admin review moves between pending_review/approved/rejected;
// archive is reachable from everywhere and terminal.
var transitions = map[EntryStatus][]EntryStatus{
	StatusPendingReview: {StatusScanFailed, StatusPinFailed, StatusApproved, StatusRejected, StatusArchived},
	StatusScanFailed:    {StatusPendingReview, StatusArchived},
	StatusPinFailed:     {StatusPendingReview, StatusArchived},
	StatusApproved:      {StatusPendingReview, StatusRejected, StatusArchived},
	StatusRejected:      {StatusPendingReview, StatusApproved, StatusArchived},
	StatusArchived:      {},
}

// Valid reports whether s is one of the defined statuses.
func (s EntryStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the machine defines an edge from s to next.
// A no-op transition (s == next) is always permitted so idempotent writes
// (e.g. a retried status update) do not fail.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// TransitionsInto returns every status the machine allows to move into next,
// including next itself since self-transitions are always permitted. Sorted so
// callers embedding the set in queries see a stable order. Writes that carry a
// status use this to guard against edges the machine does not define, e.g.
// resurrecting an archived entry.
func TransitionsInto(next EntryStatus) []EntryStatus {
	var from []EntryStatus
	for s := range transitions {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	sort.Slice(from, func(i, j int) bool { return from[i] < from[j] })
	return from
}

// Terminal reports whether no further transition is possible from s.
func (s EntryStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Retryable reports whether s is one of the failure states that retryProcessing
// may move back to pending_review.
func (s EntryStatus) Retryable() bool {
	return s == StatusScanFailed || s == StatusPinFailed
}
