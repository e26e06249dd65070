package reconcile

import "github.com/steveyegge/marksync/internal/native"

// CorrectMoveBatches fixes the old indexes Firefox reports when several
// bookmarks are moved in one operation. Consecutive moves form a batch while
// they share the first move's destination parent and each index either
// equals the first move's index or follows the previous event's index. When
// the batch left its old parent, or landed after its old position, each
// entry's oldIndex is lowered by its 1-based position in the batch.
//
// Only OldIndex is modified. It returns the number of corrected events.
func CorrectMoveBatches(events []ChangeEvent) int {
	corrected := 0
	var batch []*native.MoveChange

	flush := func() {
		if len(batch) == 0 {
			return
		}
		first := batch[0]
		if first.ParentID != first.OldParentID || first.Index > first.OldIndex {
			for i := len(batch) - 1; i >= 0; i-- {
				batch[i].OldIndex -= i + 1
			}
			corrected += len(batch)
		}
		batch = batch[:0]
	}

	for i, ev := range events {
		mv, ok := ev.Change.(*native.MoveChange)
		if !ok {
			flush()
			continue
		}
		if len(batch) > 0 {
			first := batch[0]
			prev, _ := events[i-1].Change.(*native.MoveChange)
			sameParent := mv.ParentID == first.ParentID
			adjacent := mv.Index == first.Index || (prev != nil && mv.Index == prev.Index+1)
			if !sameParent || !adjacent {
				flush()
			}
		}
		batch = append(batch, mv)
	}
	flush()
	return corrected
}
