package tasks

import (
	"fmt"

	"github.com/desertthunder/mixtape/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase       // Operation phase
	Kind    models.Kind // Kind being processed, empty when not kind-scoped
	Step    int         // Current step number within phase
	Total   int         // Total steps in this phase, 0 when unknown
	Message string      // Human-readable message for display
	Data    any         // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Purge Phase = iota
	FetchPage
	CommitBatch
	KindDone
	Score
	Publish
)

func (p Phase) String() string {
	switch p {
	case Purge:
		return "purge"
	case FetchPage:
		return "fetch_page"
	case CommitBatch:
		return "commit_batch"
	case KindDone:
		return "kind_done"
	case Score:
		return "score"
	case Publish:
		return "publish"
	default:
		return ""
	}
}

func purgeUpdate(removed int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Purge,
		Message: fmt.Sprintf("Cleared %d prior associations", removed),
	}
}

func fetchPageUpdate(kind models.Kind, offset, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPage,
		Kind:    kind,
		Step:    offset,
		Total:   total,
		Message: fmt.Sprintf("Fetching %s (offset %d)...", kind, offset),
	}
}

func commitUpdate(kind models.Kind, committed int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CommitBatch,
		Kind:    kind,
		Step:    committed,
		Message: fmt.Sprintf("Stored %d %s associations", committed, kind),
	}
}

func kindDoneUpdate(kind models.Kind, committed int, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:   KindDone,
			Kind:    kind,
			Step:    committed,
			Message: fmt.Sprintf("✗ %s failed after %d associations: %v", kind, committed, err),
		}
	}
	return ProgressUpdate{
		Phase:   KindDone,
		Kind:    kind,
		Step:    committed,
		Message: fmt.Sprintf("✓ %s (%d associations)", kind, committed),
	}
}

func scoreUpdate(candidates, distinct int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Score,
		Step:    distinct,
		Total:   candidates,
		Message: fmt.Sprintf("Scored %d tracks from %d listening events", distinct, candidates),
	}
}

func publishUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Publish,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Adding tracks to %s...", step, total, name),
	}
}
