package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
	ErrDatabase  = errors.New("database error")
)

// StoreError provides context for catalog errors.
type StoreError struct {
	Op  string // Operation that failed (e.g., "insert game")
	Key string // Natural key or id if applicable
	Err error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s '%s': %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapDBError converts a database error into a StoreError carrying one of
// the sentinel errors above.
func WrapDBError(err error, op, key string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &StoreError{Op: op, Key: key, Err: ErrNotFound}
	}

	// SQLite reports constraint failures only through the message text.
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "UNIQUE constraint failed"):
		return &StoreError{Op: op, Key: key, Err: fmt.Errorf("%w: entry already exists", ErrDuplicate)}
	case strings.Contains(errStr, "FOREIGN KEY constraint failed"):
		return &StoreError{Op: op, Key: key, Err: fmt.Errorf("%w: referenced item does not exist", ErrDatabase)}
	case strings.Contains(errStr, "no such table"):
		return &StoreError{Op: op, Key: key, Err: fmt.Errorf("%w: database not initialized", ErrDatabase)}
	}

	return &StoreError{Op: op, Key: key, Err: fmt.Errorf("%w: %v", ErrDatabase, err)}
}
