package annotation

// History is a totally-ordered log of document snapshots with a cursor
// identifying the live one. Invariants: 0 <= cursor < len(snapshots), and
// snapshots[cursor] equals the live shape collection immediately after the
// most recent commit.
type History struct {
	snapshots [][]Shape
	cursor    int
}

// NewHistory creates a log whose first snapshot is a copy of initial.
func NewHistory(initial []Shape) *History {
	return &History{snapshots: [][]Shape{cloneShapes(initial)}}
}

// Commit truncates any snapshots beyond the cursor, then appends a copy of
// shapes and moves the cursor to it. The redo branch is discarded the moment
// a new edit is made after an undo.
func (h *History) Commit(shapes []Shape) {
	h.snapshots = append(h.snapshots[:h.cursor+1], cloneShapes(shapes))
	h.cursor = len(h.snapshots) - 1
}

// Undo moves the cursor back one snapshot and returns a copy of it. The
// second return is false at the oldest snapshot (no-op).
func (h *History) Undo() ([]Shape, bool) {
	if h.cursor == 0 {
		return nil, false
	}
	h.cursor--
	return cloneShapes(h.snapshots[h.cursor]), true
}

// Redo moves the cursor forward one snapshot and returns a copy of it. The
// second return is false at the newest snapshot (no-op).
func (h *History) Redo() ([]Shape, bool) {
	if h.cursor >= len(h.snapshots)-1 {
		return nil, false
	}
	h.cursor++
	return cloneShapes(h.snapshots[h.cursor]), true
}

// CanUndo reports whether the cursor can move back.
func (h *History) CanUndo() bool { return h.cursor > 0 }

// CanRedo reports whether the cursor can move forward.
func (h *History) CanRedo() bool { return h.cursor < len(h.snapshots)-1 }

// Len returns the number of snapshots in the log.
func (h *History) Len() int { return len(h.snapshots) }

// Cursor returns the index of the live snapshot.
func (h *History) Cursor() int { return h.cursor }
