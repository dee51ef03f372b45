// Package errs names the fixed error taxonomy the engine's components
// fail with. Nothing here panics or throws; values of these kinds are
// returned and, where the call site says so, dropped silently.
package errs

import "errors"

var (
	// ErrMissingRow means a query referenced a row type that no table
	// currently carries. A task that meant to run against it should
	// discard, not fail.
	ErrMissingRow = errors.New("store: missing row")

	// ErrInvalidMigration means a migration was attempted into or out
	// of a table lacking a stable-id row, or between a row set that
	// cannot satisfy the destination table's shared-row requirements.
	ErrInvalidMigration = errors.New("store: invalid migration")

	// ErrSolverNonFinite means a constraint's effective mass diagonal
	// could not be formed (zero or non-finite); the solver skips that
	// constraint for the remainder of the island's solve.
	ErrSolverNonFinite = errors.New("solver: non-finite constraint")

	// ErrInternalAssertion marks a violated structural invariant (a
	// pair row without a matching island-graph edge, a table whose
	// per-element rows disagree in length, ...). Debug builds should
	// treat this as fatal; the engine's default behavior is to log and
	// repair where a repair is well defined.
	ErrInternalAssertion = errors.New("internal assertion failed")
)

// StaleReference is deliberately not an error value: spec callers ask
// "does this stable reference still resolve?" and get (T, false) or
// (zero, false), never an error to check. See ids.Mapping.Resolve.
