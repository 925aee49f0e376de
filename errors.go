package strata

import (
	"errors"
	"strings"
)

// Sentinel errors for the engine's fatal conditions. Lock and lease
// conflicts are not errors: they are advisory signals returned as data.
// Dictionary insert races are never surfaced; they are resolved by
// re-reading after the idempotent insert.
var (
	// ErrNotFound is returned by Read when no matching revision exists, and
	// by operations addressing a document that has no latest revision.
	ErrNotFound = errors.New("strata: document not found")

	// ErrNoContainer is returned when a container path cannot be resolved.
	ErrNoContainer = errors.New("strata: container not found")

	// ErrContainerExists is returned by CreateContainer for a duplicate path.
	ErrContainerExists = errors.New("strata: container already exists")

	// ErrNoPriorRevision is returned by Rollback when the document has no
	// superseded revision to restore, including when the current version is 1.
	// This is fatal and unretried: there is nothing to roll back to.
	ErrNoPriorRevision = errors.New("strata: no prior revision to roll back to")

	// ErrMissingSchema is returned when the strata tables do not exist.
	// Run `strata migrate` to create them.
	ErrMissingSchema = errors.New("strata: schema tables missing")
)

// IsNotFoundErr returns true if err is or wraps ErrNotFound.
func IsNotFoundErr(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNoPriorRevisionErr returns true if err is or wraps ErrNoPriorRevision.
func IsNoPriorRevisionErr(err error) bool {
	return errors.Is(err, ErrNoPriorRevision)
}

// IsMissingSchemaErr returns true if err is or wraps ErrMissingSchema.
func IsMissingSchemaErr(err error) bool {
	return errors.Is(err, ErrMissingSchema)
}

// PostgreSQL error codes used for sentinel mapping.
const (
	pgUndefinedTable  = "42P01" // undefined_table
	pgUniqueViolation = "23505" // unique_violation
)

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: Code field (via error interface)
//
// Returns empty string if the error doesn't contain a SQLSTATE.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	if e, ok := err.(sqlStateErr); ok {
		return e.SQLState()
	}

	type codeErr interface{ Code() string }
	if e, ok := err.(codeErr); ok {
		return e.Code()
	}

	// Fallback: string matching for known patterns (last resort).
	// Format: "... (SQLSTATE 42P01)" or "SQLSTATE: 42P01"
	errStr := err.Error()
	if strings.Contains(errStr, "SQLSTATE") {
		for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
			if idx := strings.Index(errStr, prefix); idx >= 0 {
				start := idx + len(prefix)
				if start+5 <= len(errStr) {
					return errStr[start : start+5]
				}
			}
		}
	}

	return ""
}
