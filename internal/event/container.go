package event

import "sort"

// Container is an ordered multiset of events kept sorted by (timestamp,
// rank) at all times (spec §3-§4.1). It owns every Event it holds.
type Container struct {
	events     []*Event
	nextID     uint64
	hasTempo   bool
	hasTimeSig bool
}

// NewContainer returns an empty, ready-to-use Container.
func NewContainer() *Container {
	return &Container{nextID: 1}
}

func less(a, b *Event) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return Rank(a.Kind) < Rank(b.Kind)
}

// Len returns the number of events currently stored.
func (c *Container) Len() int { return len(c.events) }

// At returns the event at sorted position i. Callers must not mutate the
// timestamp/kind of the returned event outside of the container's own
// re-sort path; mutate via Remove+Append instead.
func (c *Container) At(i int) *Event { return c.events[i] }

// All returns the events in sorted order. The returned slice aliases the
// container's storage and must be treated as read-only by callers outside
// this package.
func (c *Container) All() []*Event { return c.events }

// HasTempo reports whether at least one set-tempo event is present.
func (c *Container) HasTempo() bool { return c.hasTempo }

// HasTimeSignature reports whether at least one time-signature event is present.
func (c *Container) HasTimeSignature() bool { return c.hasTimeSig }

// Append inserts e in sorted position, clamping a negative timestamp to 0,
// assigning a stable ID if the event doesn't already have one, and
// updating has_tempo/has_time_signature. It is the only insertion path
// used by live recording and (conceptually) by file load.
func (c *Container) Append(e *Event) bool {
	if e == nil {
		return false
	}
	if e.Timestamp < 0 {
		e.Timestamp = 0
	}
	if e.ID == 0 {
		e.ID = c.nextID
		c.nextID++
	} else if e.ID >= c.nextID {
		c.nextID = e.ID + 1
	}
	idx := sort.Search(len(c.events), func(i int) bool { return !less(c.events[i], e) })
	c.events = append(c.events, nil)
	copy(c.events[idx+1:], c.events[idx:])
	c.events[idx] = e

	if e.Kind == KindMeta {
		switch e.Meta {
		case MetaSetTempo:
			c.hasTempo = true
		case MetaTimeSignature:
			c.hasTimeSig = true
		}
	}
	return true
}

// Merge transfers all events of other into c. When presort is true, other
// is assumed unsorted and is sorted once before a linear merge; when
// false, other is assumed already sorted and the merge skips that step.
// Used for paste.
func (c *Container) Merge(other *Container, presort bool) {
	if other == nil || len(other.events) == 0 {
		return
	}
	incoming := other.events
	if presort {
		incoming = append([]*Event(nil), incoming...)
		sort.SliceStable(incoming, func(i, j int) bool { return less(incoming[i], incoming[j]) })
	}
	merged := make([]*Event, 0, len(c.events)+len(incoming))
	i, j := 0, 0
	for i < len(c.events) && j < len(incoming) {
		if less(incoming[j], c.events[i]) {
			merged = append(merged, incoming[j])
			j++
		} else {
			merged = append(merged, c.events[i])
			i++
		}
	}
	merged = append(merged, c.events[i:]...)
	merged = append(merged, incoming[j:]...)
	c.events = merged

	for _, e := range incoming {
		if e.ID == 0 || e.ID >= c.nextID {
			c.nextID = e.ID + 1
		}
		if e.Kind == KindMeta {
			switch e.Meta {
			case MetaSetTempo:
				c.hasTempo = true
			case MetaTimeSignature:
				c.hasTimeSig = true
			}
		}
	}
}

// GetLength returns the timestamp of the last event, or 0 when empty.
func (c *Container) GetLength() int64 {
	if len(c.events) == 0 {
		return 0
	}
	return c.events[len(c.events)-1].Timestamp
}

// VerifyAndLink clears every existing link, re-pairs every note-on with
// the nearest following unpaired note-off of the same note and channel
// (wrapping to the start of the container if none is found before the
// end), marks and removes any event outside [0, patternLength), and
// finally links each set-tempo event to the next one in time order
// (spec §4.1).
func (c *Container) VerifyAndLink(patternLength int64) {
	for _, e := range c.events {
		e.LinkID = NoLink
	}

	n := len(c.events)
	byID := make(map[uint64]*Event, n)
	for _, e := range c.events {
		byID[e.ID] = e
	}

	used := make(map[uint64]bool, n)
	for i, e := range c.events {
		if e.Kind != KindNoteOn || e.LinkID != NoLink {
			continue
		}
		partner := findNoteOff(c.events, i, e, used)
		if partner != nil {
			e.LinkID = partner.ID
			partner.LinkID = e.ID
			used[partner.ID] = true
		}
	}

	for _, e := range c.events {
		if e.Timestamp < 0 || e.Timestamp >= patternLength {
			e.Marked = true
		}
	}
	c.RemoveMarked()

	c.linkTempos()
}

// findNoteOff scans forward from i+1 for the first unused note-off
// matching note number and channel, wrapping to the start of the
// container (up to, but not including, index i) if none is found.
func findNoteOff(events []*Event, i int, on *Event, used map[uint64]bool) *Event {
	n := len(events)
	for step := 1; step <= n; step++ {
		j := (i + step) % n
		if j == i {
			break
		}
		cand := events[j]
		if cand.Kind == KindNoteOff && cand.Data1 == on.Data1 && cand.Channel == on.Channel &&
			cand.LinkID == NoLink && !used[cand.ID] {
			return cand
		}
	}
	return nil
}

// linkTempos links each set-tempo event forward to the next set-tempo
// event in time order (a one-way chain).
func (c *Container) linkTempos() {
	var prev *Event
	for _, e := range c.events {
		if e.Kind != KindMeta || e.Meta != MetaSetTempo {
			continue
		}
		if prev != nil {
			prev.LinkID = e.ID
		}
		prev = e
	}
}

// MarkAll sets the Marked flag on every event.
func (c *Container) MarkAll() {
	for _, e := range c.events {
		e.Marked = true
	}
}

// UnmarkAll clears the Marked flag on every event.
func (c *Container) UnmarkAll() {
	for _, e := range c.events {
		e.Marked = false
	}
}

// MarkSelected sets Marked on every event for which pred returns true.
func (c *Container) MarkSelected(pred func(*Event) bool) {
	for _, e := range c.events {
		if pred(e) {
			e.Marked = true
		}
	}
}

// RemoveMarked removes every marked event and reports whether anything
// was removed.
func (c *Container) RemoveMarked() bool {
	out := c.events[:0]
	removed := false
	for _, e := range c.events {
		if e.Marked {
			removed = true
			continue
		}
		out = append(out, e)
	}
	c.events = out
	c.recomputeMetaFlags()
	return removed
}

func (c *Container) recomputeMetaFlags() {
	c.hasTempo = false
	c.hasTimeSig = false
	for _, e := range c.events {
		if e.Kind != KindMeta {
			continue
		}
		switch e.Meta {
		case MetaSetTempo:
			c.hasTempo = true
		case MetaTimeSignature:
			c.hasTimeSig = true
		}
	}
}

// CountSelectedNotes counts selected note-on events.
func (c *Container) CountSelectedNotes() int {
	n := 0
	for _, e := range c.events {
		if e.Selected && e.Kind == KindNoteOn {
			n++
		}
	}
	return n
}

// CountSelectedEvents counts selected events matching kind; for
// control-change, cc must also match the controller number. Set-tempo
// events are always countable regardless of the kind filter, per §4.1.
func (c *Container) CountSelectedEvents(kind Kind, cc uint8) int {
	n := 0
	for _, e := range c.events {
		if !e.Selected {
			continue
		}
		if e.Kind == KindMeta && e.Meta == MetaSetTempo {
			n++
			continue
		}
		if e.Kind != kind {
			continue
		}
		if kind == KindCC && e.Data1 != cc {
			continue
		}
		n++
	}
	return n
}

// AnySelectedNotes is the early-exit form of CountSelectedNotes.
func (c *Container) AnySelectedNotes() bool {
	for _, e := range c.events {
		if e.Selected && e.Kind == KindNoteOn {
			return true
		}
	}
	return false
}

// AnySelectedEvents is the early-exit form of CountSelectedEvents.
func (c *Container) AnySelectedEvents(kind Kind, cc uint8) bool {
	for _, e := range c.events {
		if !e.Selected {
			continue
		}
		if e.Kind == KindMeta && e.Meta == MetaSetTempo {
			return true
		}
		if e.Kind != kind {
			continue
		}
		if kind == KindCC && e.Data1 != cc {
			continue
		}
		return true
	}
	return false
}

// Clone returns a deep copy of the container, suitable as an undo
// snapshot. Link IDs are preserved since they refer to stable event IDs,
// not positions.
func (c *Container) Clone() *Container {
	clone := &Container{
		events:     make([]*Event, len(c.events)),
		nextID:     c.nextID,
		hasTempo:   c.hasTempo,
		hasTimeSig: c.hasTimeSig,
	}
	for i, e := range c.events {
		cp := *e
		if e.SysEx != nil {
			cp.SysEx = append([]byte(nil), e.SysEx...)
		}
		if e.MetaBytes != nil {
			cp.MetaBytes = append([]byte(nil), e.MetaBytes...)
		}
		clone.events[i] = &cp
	}
	return clone
}
