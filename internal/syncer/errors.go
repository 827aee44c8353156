package syncer

import (
	"errors"
	"fmt"
)

// ErrNoLibrary is returned for an addon that registered no game library.
var ErrNoLibrary = errors.New("addon has no game library")

// ScanError aborts a pass whose library scan failed.
type ScanError struct {
	AddonID string
	Err     error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("sync '%s': scan: %v", e.AddonID, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// TransactionError aborts a pass whose catalog access failed. Nothing from
// the pass was written.
type TransactionError struct {
	AddonID string
	Op      string
	Err     error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("sync '%s': %s: %v", e.AddonID, e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

func passStatus(err error) string {
	var scanErr *ScanError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &scanErr):
		return "scan_error"
	default:
		return "tx_error"
	}
}
