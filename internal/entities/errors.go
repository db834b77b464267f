package entities

import (
	"github.com/cockroachdb/errors"
)

// Sentinel errors for the relationship engine.
// Check with errors.Is; wrap with errors.Wrap to add context while
// preserving the type.
var (
	// ErrSchemaMismatch indicates the declared relationship schema does not
	// match storage (missing table or reference column). Configuration bug:
	// abort startup rather than surface per-request.
	ErrSchemaMismatch = errors.New("relationship schema mismatch")

	// ErrSelfReference indicates an attempt to relate a record to itself.
	ErrSelfReference = errors.New("record cannot reference itself")

	// ErrCircularRelationship indicates a rewrite that would leave both
	// reference columns pointing at the same record.
	ErrCircularRelationship = errors.New("circular relationship not permitted")

	// ErrDanglingReference indicates an incoming description points at a
	// record that does not exist.
	ErrDanglingReference = errors.New("referenced record does not exist")

	// ErrInvalidReference indicates an incoming description references a
	// record type that does not participate in the relationship. Caller
	// input error, not a schema fault.
	ErrInvalidReference = errors.New("record type cannot participate in relationship")

	// ErrConcurrencyConflict indicates an optimistic version bump raced
	// with another writer. Callers own retry policy.
	ErrConcurrencyConflict = errors.New("record version conflict")

	// ErrMergeBlocked indicates a merge victim was still referenced after
	// its relationships were transferred. No victims are deleted.
	ErrMergeBlocked = errors.New("merge blocked: record still referenced")

	// ErrUnknownRelationship indicates a lookup for a relationship that was
	// never declared. Programmer error.
	ErrUnknownRelationship = errors.New("unknown relationship")
)

// IsConcurrencyConflict checks if an error is or wraps ErrConcurrencyConflict.
func IsConcurrencyConflict(err error) bool {
	return err != nil && errors.Is(err, ErrConcurrencyConflict)
}

// IsMergeBlocked checks if an error is or wraps ErrMergeBlocked.
func IsMergeBlocked(err error) bool {
	return err != nil && errors.Is(err, ErrMergeBlocked)
}

// IsSchemaMismatch checks if an error is or wraps ErrSchemaMismatch.
func IsSchemaMismatch(err error) bool {
	return err != nil && errors.Is(err, ErrSchemaMismatch)
}
