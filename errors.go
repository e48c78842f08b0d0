package hyperbatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pthm/hyperbatch/schema"
)

// Sentinel errors for setup and store failures. A viewer lacking access is
// never an error: invisible entities render as empty documents.
//
// Use the Is*Err helper functions to check for specific errors.
var (
	// ErrMissingRelations is returned when a table the stores read doesn't
	// exist. Run `hyperbatch migrate` to create it.
	ErrMissingRelations = errors.New("hyperbatch: table missing")

	// ErrMissingFunction is returned when the allowed_containers function
	// doesn't exist. Run `hyperbatch migrate` to create it.
	ErrMissingFunction = errors.New("hyperbatch: visibility function missing")

	// ErrStoreUnavailable wraps any other store failure. The whole batch
	// fails; no partial documents are returned.
	ErrStoreUnavailable = errors.New("hyperbatch: store unavailable")

	// ErrInvalidRegistry is returned when a registry fails validation.
	ErrInvalidRegistry = schema.ErrInvalidRegistry
)

// IsMissingRelationsErr returns true if err is or wraps ErrMissingRelations.
func IsMissingRelationsErr(err error) bool {
	return errors.Is(err, ErrMissingRelations)
}

// IsMissingFunctionErr returns true if err is or wraps ErrMissingFunction.
func IsMissingFunctionErr(err error) bool {
	return errors.Is(err, ErrMissingFunction)
}

// IsStoreUnavailableErr returns true if err is or wraps ErrStoreUnavailable.
func IsStoreUnavailableErr(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsInvalidRegistryErr returns true if err is or wraps ErrInvalidRegistry.
func IsInvalidRegistryErr(err error) bool {
	return errors.Is(err, ErrInvalidRegistry)
}

// PostgreSQL error codes for error mapping.
const (
	pgUndefinedTable    = "42P01" // undefined_table
	pgUndefinedFunction = "42883" // undefined_function
)

// MapStoreError maps a PostgreSQL error raised by operation to a sentinel.
// Context errors pass through unchanged. Detection is driver-agnostic and
// works with both lib/pq and pgx.
func MapStoreError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	switch sqlState(err) {
	case pgUndefinedTable:
		return fmt.Errorf("%s: %w: %w", operation, ErrMissingRelations, err)
	case pgUndefinedFunction:
		return fmt.Errorf("%s: %w: %w", operation, ErrMissingFunction, err)
	}
	return fmt.Errorf("%s: %w: %w", operation, ErrStoreUnavailable, err)
}

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: Code field (via error interface)
//
// Returns empty string if the error doesn't contain a SQLSTATE.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	var se sqlStateErr
	if errors.As(err, &se) {
		return se.SQLState()
	}

	type codeErr interface{ Code() string }
	var ce codeErr
	if errors.As(err, &ce) {
		return ce.Code()
	}

	// Format: "... (SQLSTATE 42P01)" or "SQLSTATE: 42P01"
	errStr := err.Error()
	for _, prefix := range []string{"SQLSTATE ", "SQLSTATE: "} {
		if idx := strings.Index(errStr, prefix); idx >= 0 {
			start := idx + len(prefix)
			if start+5 <= len(errStr) {
				return errStr[start : start+5]
			}
		}
	}
	return ""
}
