package reconcile

import (
	"fmt"

	"github.com/steveyegge/marksync/internal/bookmark"
)

// OutcomeKind says how a change was handled.
type OutcomeKind int

const (
	// OutcomeApplied means the synced tree was updated.
	OutcomeApplied OutcomeKind = iota + 1
	// OutcomeSkipped means the change was benign and ignored.
	OutcomeSkipped
	// OutcomeFailed means the change could not be processed.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of processing one change. Tree is only set when
// Kind is OutcomeApplied.
type Outcome struct {
	Kind     OutcomeKind
	Tree     *bookmark.Tree
	SyncedID int
	Reason   string
	Err      error
}

func applied(tree *bookmark.Tree, syncedID int) Outcome {
	return Outcome{Kind: OutcomeApplied, Tree: tree, SyncedID: syncedID}
}

func skipped(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: fmt.Sprintf(format, args...)}
}

func failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeApplied:
		return fmt.Sprintf("applied (synced id %d)", o.SyncedID)
	case OutcomeSkipped:
		return "skipped: " + o.Reason
	case OutcomeFailed:
		return fmt.Sprintf("failed: %v", o.Err)
	default:
		return o.Kind.String()
	}
}
