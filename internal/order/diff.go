package order

// LineChange pairs the before and after state of a modified line.
type LineChange struct {
	Before Line `json:"before"`
	After  Line `json:"after"`
}

// Changes describes how an order moved between two snapshots, keyed by
// line id.
type Changes struct {
	Added    []Line       `json:"added,omitempty"`
	Removed  []Line       `json:"removed,omitempty"`
	Modified []LineChange `json:"modified,omitempty"`
}

// Empty reports whether no line changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// Diff compares two document snapshots by line id. Lines preserve
// their order from the respective snapshot.
func Diff(before, after Document) Changes {
	var c Changes

	prev := make(map[string]Line, len(before.Items))
	for _, line := range before.Items {
		prev[line.ID] = line
	}
	next := make(map[string]Line, len(after.Items))
	for _, line := range after.Items {
		next[line.ID] = line
	}

	for _, line := range after.Items {
		old, ok := prev[line.ID]
		if !ok {
			c.Added = append(c.Added, line)
			continue
		}
		if old != line {
			c.Modified = append(c.Modified, LineChange{Before: old, After: line})
		}
	}
	for _, line := range before.Items {
		if _, ok := next[line.ID]; !ok {
			c.Removed = append(c.Removed, line)
		}
	}

	return c
}
