// Package workflow drives a generation request to a terminal song or a
// terminal failure. This file centralizes the error taxonomy surfaced by the
// engine so the queue and HTTP layer can classify outcomes consistently.
//
// Three terminal classes exist:
//   - synth.Error with Retryable=false: the external backend rejected the
//     request permanently (bad input, quota).
//   - ErrInsufficientCredits: the user's ledger is exhausted. Terminal and
//     user-visible; the external generation cost is not refunded because the
//     debit only ever happens after a successful external call.
//   - PersistenceError: storage infrastructure failed. The whole workflow is
//     safe to rerun, because the persistence step is idempotent on request_id.
package workflow

import "errors"

// ErrInsufficientCredits is returned when the credit ledger refuses the
// debit. No song row exists and no credit was consumed.
var ErrInsufficientCredits = errors.New("insufficient credits")

// PersistenceError wraps a storage or transaction failure. Unlike the other
// terminal errors, a run that ends here may be retried wholesale: the replay
// lookup inside the persistence transaction makes the rerun indistinguishable
// from a fresh attempt.
type PersistenceError struct {
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string { return "persistence failed: " + e.Err.Error() }

// Unwrap exposes the underlying storage error.
func (e *PersistenceError) Unwrap() error { return e.Err }

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
