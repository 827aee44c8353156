package addons

import (
	"errors"
	"fmt"
)

// Sentinel errors for addon loading and calls.
var (
	ErrOpenLibrary     = errors.New("cannot open addon library")
	ErrMissingSymbol   = errors.New("missing exported symbol")
	ErrInvalidSymbol   = errors.New("exported symbol has unexpected type")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrDuplicateAddon  = errors.New("addon already loaded")
	ErrAddonTimeout    = errors.New("addon call timed out")
	ErrProxyReleased   = errors.New("capability proxy released")
	ErrUnknownAddon    = errors.New("unknown addon")
	ErrUnknownSetting  = errors.New("unknown setting")
	ErrInvalidValue    = errors.New("invalid setting value")
)

// AddonLoadError reports why an addon library was rejected. Nothing from a
// rejected library is registered.
type AddonLoadError struct {
	Path    string
	AddonID string // empty when the failure happened before the id was known
	Err     error
}

func (e *AddonLoadError) Error() string {
	if e.AddonID != "" {
		return fmt.Sprintf("load addon '%s' from %s: %v", e.AddonID, e.Path, e.Err)
	}
	return fmt.Sprintf("load addon %s: %v", e.Path, e.Err)
}

func (e *AddonLoadError) Unwrap() error {
	return e.Err
}

// AddonFaultError reports a panic raised by addon code.
type AddonFaultError struct {
	AddonID string
	Op      string
	Value   any
	Stack   []byte
}

func (e *AddonFaultError) Error() string {
	return fmt.Sprintf("addon '%s' panicked during %s: %v", e.AddonID, e.Op, e.Value)
}

// loadFailureReason maps a load error to its metrics label.
func loadFailureReason(err error) string {
	var fault *AddonFaultError
	switch {
	case errors.Is(err, ErrOpenLibrary):
		return "open"
	case errors.Is(err, ErrMissingSymbol), errors.Is(err, ErrInvalidSymbol):
		return "symbol"
	case errors.Is(err, ErrVersionMismatch):
		return "version"
	case errors.Is(err, ErrDuplicateAddon):
		return "duplicate"
	case errors.As(err, &fault), errors.Is(err, ErrAddonTimeout):
		return "register"
	default:
		return "other"
	}
}
