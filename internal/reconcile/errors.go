package reconcile

import (
	"github.com/cockroachdb/errors"

	"github.com/steveyegge/marksync/internal/container"
)

// Sentinel errors for change processing.
var (
	// ErrContainerChanged is returned when a change targets one of the
	// native root folders themselves. The event is dropped.
	ErrContainerChanged = errors.New("container was changed")

	// ErrAmbiguousRequest is returned for change kinds the engine does not
	// understand.
	ErrAmbiguousRequest = errors.New("ambiguous sync request")

	// ErrNoContainer is returned when a synced node does not sit inside a
	// container.
	ErrNoContainer = errors.New("synced bookmark is outside every container")
)

// IsFatal reports whether err must abort the whole reconciliation pass
// rather than just the current event.
func IsFatal(err error) bool {
	return errors.Is(err, container.ErrContainerNotFound)
}
