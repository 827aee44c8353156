package syncer

import "fmt"

// Phase is the stage a sync pass is in.
type Phase uint8

const (
	LibraryScan Phase = iota
	FetchingMetadata
	Done
)

func (p Phase) String() string {
	switch p {
	case LibraryScan:
		return "scanning library"
	case FetchingMetadata:
		return "fetching metadata"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Event reports sync progress. Current and Total are set during
// FetchingMetadata.
type Event struct {
	AddonID string
	Phase   Phase
	Current int
	Total   int
}

func (e Event) String() string {
	if e.Phase == FetchingMetadata {
		return fmt.Sprintf("%s: %s %d/%d", e.AddonID, e.Phase, e.Current, e.Total)
	}
	return fmt.Sprintf("%s: %s", e.AddonID, e.Phase)
}
