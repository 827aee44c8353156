package fetch

import (
	"errors"
	"fmt"

	"github.com/ryanm101/gami/sdk"
)

// Kind classifies a per-item fetch failure.
type Kind uint8

const (
	// KindNetwork covers request construction, transport failures, timeouts
	// and non-success statuses.
	KindNetwork Kind = iota
	// KindDecode covers response bodies that do not match the expected shape.
	KindDecode
)

func (k Kind) String() string {
	if k == KindDecode {
		return "decode"
	}
	return "network"
}

// Sentinel errors for common conditions.
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrBodyTooLarge     = errors.New("response body too large")
)

// FetchError records why metadata for one game could not be fetched.
type FetchError struct {
	Kind Kind
	Game sdk.GameKey
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s error: %v", e.Game, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
