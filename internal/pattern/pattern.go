// Package pattern implements the looping MIDI pattern: its event
// container, length, playback state machine, and the bulk edit
// operations (transpose, reverse, multiply, randomize, LFO) that each
// push an undo snapshot before mutating (spec §4.2).
package pattern

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/loopforge/engine/internal/calc"
	"github.com/loopforge/engine/internal/event"
	"github.com/loopforge/engine/internal/midi/wire"
)

// PlayState is the pattern's position in the mute/queue state machine
// (spec §4.2's state table).
type PlayState uint8

const (
	Stopped PlayState = iota
	Playing
	Muted
	QueuedOn
	QueuedOff
)

// ShrinkMode picks what set_length does to a note-on whose partner falls
// past a new, shorter pattern end (spec §9's open question, resolved by
// exposing both modes the source mixed inconsistently).
type ShrinkMode uint8

const (
	// ShrinkSynthesizeOff fabricates a note-off at the new end for any
	// note-on that would otherwise lose its partner.
	ShrinkSynthesizeOff ShrinkMode = iota
	// ShrinkDrop removes the orphaned note-on outright.
	ShrinkDrop
)

// DefaultUndoDepth bounds the undo/redo history unless overridden.
const DefaultUndoDepth = 64

// OutputSink is the minimal surface play() needs from a port or bus: just
// enough to forward one encoded channel message or SysEx payload. Any
// internal/port backend or internal/bus.Bus satisfies this
// structurally.
type OutputSink interface {
	SendEvent(kind wire.StatusKind, channel, data1, data2 uint8) error
	SendSysEx(payload []byte) error
}

func kindToStatusKind(k event.Kind) (wire.StatusKind, bool) {
	switch k {
	case event.KindNoteOff:
		return wire.NoteOff, true
	case event.KindNoteOn:
		return wire.NoteOn, true
	case event.KindPolyAT:
		return wire.PolyAT, true
	case event.KindCC:
		return wire.CC, true
	case event.KindProgram:
		return wire.Program, true
	case event.KindChanAT:
		return wire.ChanAT, true
	case event.KindPitch:
		return wire.Pitch, true
	default:
		return 0, false
	}
}

// Pattern is one loop: a named, channel- and bus-routed stream of events
// of a fixed length in pulses, plus the state a live looper needs around
// that stream (mute/queue flags, a time-signature/tempo override, an
// undo/redo history and a trigger list for the song arrangement).
type Pattern struct {
	mu sync.Mutex

	name    string
	channel uint8
	busIdx  int
	color   string

	ppqn   int
	bpb    int
	bw     int
	length int64 // pulses; always a positive multiple of one measure

	events *event.Container

	state      PlayState
	snapOn     bool
	snapPulses int64
	thru       bool
	recording  bool
	shrinkMode ShrinkMode

	triggers Triggers

	undoDepth int
	undoStack []*event.Container
	redoStack []*event.Container

	modified bool
}

// Config carries the construction-time parameters of a Pattern.
type Config struct {
	Name       string
	Channel    uint8
	Bus        int
	PPQN       int
	BeatsPerBar int
	BeatWidth  int
	Measures   int
	UndoDepth  int
	ShrinkMode ShrinkMode
}

// New builds an empty pattern of cfg.Measures measures under the given
// time signature and PPQN.
func New(cfg Config) (*Pattern, error) {
	if cfg.PPQN == 0 {
		cfg.PPQN = calc.DefaultPPQN
	}
	if cfg.BeatsPerBar == 0 {
		cfg.BeatsPerBar = 4
	}
	if cfg.BeatWidth == 0 {
		cfg.BeatWidth = 4
	}
	if cfg.Measures <= 0 {
		cfg.Measures = 1
	}
	if cfg.UndoDepth <= 0 {
		cfg.UndoDepth = DefaultUndoDepth
	}
	if err := calc.ValidateTimeSignature(cfg.BeatsPerBar, cfg.BeatWidth); err != nil {
		return nil, err
	}
	p := &Pattern{
		name:       cfg.Name,
		channel:    cfg.Channel,
		busIdx:     cfg.Bus,
		ppqn:       cfg.PPQN,
		bpb:        cfg.BeatsPerBar,
		bw:         cfg.BeatWidth,
		length:     calc.MeasuresToPulses(cfg.PPQN, cfg.BeatsPerBar, cfg.BeatWidth, cfg.Measures),
		events:     event.NewContainer(),
		undoDepth:  cfg.UndoDepth,
		shrinkMode: cfg.ShrinkMode,
	}
	return p, nil
}

// Name returns the pattern's display name; satisfies arena.Patterner.
func (p *Pattern) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// SetName renames the pattern.
func (p *Pattern) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	p.modified = true
}

// Length returns the pattern length in pulses.
func (p *Pattern) Length() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.length
}

// Channel returns the pattern's output MIDI channel.
func (p *Pattern) Channel() uint8 { return p.channel }

// Bus returns the index of the output bus this pattern routes to.
func (p *Pattern) Bus() int { return p.busIdx }

// State returns the current play-state-machine value.
func (p *Pattern) State() PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Modified reports whether the pattern has unsaved edits.
func (p *Pattern) Modified() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modified
}

// SetSnap configures note-on-quantization-on-record: pulses is the grid
// size events snap to when on is true.
func (p *Pattern) SetSnap(on bool, pulses int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapOn = on
	p.snapPulses = pulses
}

// SetThru toggles whether streamed (live) events are also echoed to the
// pattern's own output.
func (p *Pattern) SetThru(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.thru = on
}

// SetLength implements set_length: pulses must be a positive multiple of
// one measure under the pattern's time signature. Events beyond the new
// length are marked and pruned; triggers past the new length are
// truncated; a shrinking pattern resolves any note-on whose partner falls
// past the new end per p.shrinkMode (spec §4.2, §9).
func (p *Pattern) SetLength(pulses int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	measure := calc.PulsesPerMeasure(p.ppqn, p.bpb, p.bw)
	if measure <= 0 || pulses <= 0 || pulses%measure != 0 {
		return fmt.Errorf("pattern: length %d is not a positive multiple of the %d-pulse measure", pulses, measure)
	}

	if pulses < p.length {
		p.resolveShrink(pulses)
	}

	p.events.MarkSelected(func(e *event.Event) bool { return e.Timestamp >= pulses })
	p.events.RemoveMarked()
	p.triggers.Truncate(pulses)

	p.length = pulses
	p.events.VerifyAndLink(p.length)
	p.modified = true
	return nil
}

// resolveShrink handles note-ons that would lose their note-off partner
// when the pattern shrinks to newLength.
func (p *Pattern) resolveShrink(newLength int64) {
	for i := 0; i < p.events.Len(); i++ {
		on := p.events.At(i)
		if on.Kind != event.KindNoteOn {
			continue
		}
		off := p.findLinkedOff(on)
		if off == nil || off.Timestamp < newLength {
			continue
		}
		switch p.shrinkMode {
		case ShrinkSynthesizeOff:
			p.events.Append(event.NewNoteOff(newLength-1, on.Channel, on.Data1, 0))
			off.Marked = true
		case ShrinkDrop:
			on.Marked = true
			off.Marked = true
		}
	}
}

func (p *Pattern) findLinkedOff(on *event.Event) *event.Event {
	if on.LinkID == event.NoLink {
		return nil
	}
	for i := 0; i < p.events.Len(); i++ {
		e := p.events.At(i)
		if e.ID == on.LinkID {
			return e
		}
	}
	return nil
}

// AddEvent implements add_event: appends e, quantizes its timestamp to
// the snap grid when snap-on is active and e is a note, and sets the
// modified flag.
func (p *Pattern) AddEvent(e *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapOn && e.IsNote() && p.snapPulses > 0 {
		e.Timestamp = quantize(e.Timestamp, p.snapPulses)
	}
	p.events.Append(e)
	p.modified = true
}

func quantize(ts, grid int64) int64 {
	if grid <= 0 {
		return ts
	}
	return ((ts + grid/2) / grid) * grid
}

// StreamEvent implements stream_event: the live-recording entry point.
// The event is timestamped to currentTick modulo the pattern length; if
// Thru is active it is also written to thruOut.
func (p *Pattern) StreamEvent(e *event.Event, currentTick int64, thruOut OutputSink) error {
	p.mu.Lock()
	if p.length > 0 {
		e.Timestamp = currentTick % p.length
	} else {
		e.Timestamp = 0
	}
	p.events.Append(e)
	p.modified = true
	thru := p.thru
	channel := p.channel
	p.mu.Unlock()

	if !thru || thruOut == nil {
		return nil
	}
	return sendEvent(thruOut, e, channel)
}

func sendEvent(out OutputSink, e *event.Event, channel uint8) error {
	if e.Kind == event.KindSysEx {
		return out.SendSysEx(e.SysEx)
	}
	sk, ok := kindToStatusKind(e.Kind)
	if !ok {
		return nil // meta events never reach the wire
	}
	return out.SendEvent(sk, channel, e.Data1, e.Data2)
}

// Play implements the scheduler's play hook: every event whose timestamp
// falls in [begin, end) modulo the pattern length is forwarded to out,
// stamped with the pattern's channel. A window spanning one or more full
// loops (end-begin >= length) is walked one loop-relative sub-window at
// a time, so a wide scheduler step still yields one note-on/note-off
// pair per loop traversed, not just the first.
func (p *Pattern) Play(begin, end int64, out OutputSink) error {
	p.mu.Lock()
	length := p.length
	channel := p.channel
	p.mu.Unlock()

	if length <= 0 || out == nil || end <= begin {
		return nil
	}

	for cursor := begin; cursor < end; {
		localBegin := cursor % length
		remaining := end - cursor
		span := length - localBegin
		if span > remaining {
			span = remaining
		}
		if err := p.playRange(localBegin, localBegin+span, channel, out); err != nil {
			return err
		}
		cursor += span
	}
	return nil
}

func (p *Pattern) playRange(begin, end int64, channel uint8, out OutputSink) error {
	p.mu.Lock()
	n := p.events.Len()
	hits := make([]*event.Event, 0, 4)
	for i := 0; i < n; i++ {
		e := p.events.At(i)
		if e.Timestamp >= begin && e.Timestamp < end {
			hits = append(hits, e)
		}
	}
	p.mu.Unlock()

	for _, e := range hits {
		if err := sendEvent(out, e, channel); err != nil {
			continue // spec §4.4: a backend send error is a soft, per-port failure
		}
	}
	return nil
}

// pushUndo snapshots the current event container. Must be called with
// p.mu held.
func (p *Pattern) pushUndo() {
	p.undoStack = append(p.undoStack, p.events.Clone())
	if len(p.undoStack) > p.undoDepth {
		p.undoStack = p.undoStack[1:]
	}
	p.redoStack = nil
}

// PushUndo records a snapshot of the current state without mutating
// anything, for callers that perform an edit outside this package (e.g.
// the LFO transformer).
func (p *Pattern) PushUndo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushUndo()
}

// PopUndo restores the most recent undo snapshot, pushing the current
// state onto the redo stack. Reports whether a snapshot was available.
func (p *Pattern) PopUndo() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.undoStack) == 0 {
		return false
	}
	last := p.undoStack[len(p.undoStack)-1]
	p.undoStack = p.undoStack[:len(p.undoStack)-1]
	p.redoStack = append(p.redoStack, p.events.Clone())
	p.events = last
	p.modified = true
	return true
}

// PopRedo restores the most recent redo snapshot, pushing the current
// state back onto the undo stack. Reports whether a snapshot was
// available.
func (p *Pattern) PopRedo() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.redoStack) == 0 {
		return false
	}
	last := p.redoStack[len(p.redoStack)-1]
	p.redoStack = p.redoStack[:len(p.redoStack)-1]
	p.undoStack = append(p.undoStack, p.events.Clone())
	p.events = last
	p.modified = true
	return true
}

// MultiplyPattern implements multiply_pattern(factor): repeats the
// current event stream factor times, each copy offset by a multiple of the
// original length, and grows the pattern length factor-fold to hold them.
func (p *Pattern) MultiplyPattern(factor int) error {
	if factor < 1 {
		return fmt.Errorf("pattern: multiply factor must be >= 1, got %d", factor)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushUndo()

	originalLen := p.length
	newContainer := event.NewContainer()
	for rep := 0; rep < factor; rep++ {
		offset := int64(rep) * originalLen
		for i := 0; i < p.events.Len(); i++ {
			e := p.events.At(i).Clone()
			e.ID = 0
			e.Timestamp += offset
			newContainer.Append(e)
		}
	}
	p.events = newContainer
	p.length = originalLen * int64(factor)
	p.events.VerifyAndLink(p.length)
	p.modified = true
	return nil
}

// Reverse implements reverse: flips every event's timestamp about the
// pattern midpoint and swaps note-on/note-off kinds so paired notes stay
// playable in the new direction.
func (p *Pattern) Reverse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushUndo()

	reversed := event.NewContainer()
	for i := 0; i < p.events.Len(); i++ {
		e := p.events.At(i).Clone()
		e.Timestamp = p.length - 1 - e.Timestamp
		switch e.Kind {
		case event.KindNoteOn:
			e.Kind = event.KindNoteOff
		case event.KindNoteOff:
			e.Kind = event.KindNoteOn
		}
		reversed.Append(e)
	}
	p.events = reversed
	p.events.VerifyAndLink(p.length)
	p.modified = true
}

// Transpose implements transpose(semitones): shifts every note-on/off's
// note number, clamping to the valid MIDI note range.
func (p *Pattern) Transpose(semitones int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushUndo()

	for i := 0; i < p.events.Len(); i++ {
		e := p.events.At(i)
		if !e.IsNote() {
			continue
		}
		n := int(e.Data1) + semitones
		if n < 0 {
			n = 0
		}
		if n > 127 {
			n = 127
		}
		e.Data1 = uint8(n)
	}
	p.modified = true
}

// Randomize implements randomize(range): adds a uniform random offset in
// [-range, range] to every note-on velocity, clamped to [1,127].
func (p *Pattern) Randomize(rng int, source *rand.Rand) {
	if rng <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushUndo()

	for i := 0; i < p.events.Len(); i++ {
		e := p.events.At(i)
		if e.Kind != event.KindNoteOn {
			continue
		}
		delta := source.Intn(2*rng+1) - rng
		v := int(e.Data2) + delta
		if v < 1 {
			v = 1
		}
		if v > 127 {
			v = 127
		}
		e.Data2 = uint8(v)
	}
	p.modified = true
}

// Events exposes the underlying container for callers (the LFO
// transformer, the scheduler's trigger expansion) that need direct
// access; it is the caller's responsibility to hold no assumptions about
// concurrent mutation beyond what the pattern mutex already serializes.
func (p *Pattern) Events() *event.Container {
	return p.events
}

// Lock/Unlock expose the pattern's own mutex so multi-step callers (the
// LFO transformer) can group a read-modify-write sequence atomically
// with respect to the scheduler's per-pattern walk (spec §5).
func (p *Pattern) Lock()   { p.mu.Lock() }
func (p *Pattern) Unlock() { p.mu.Unlock() }

// Triggers returns the pattern's trigger list.
func (p *Pattern) Triggers() *Triggers {
	return &p.triggers
}

// SetMute requests the muted/playing transition. Honored immediately:
// the looping musical "queue" delay is a separate operation
// (RequestQueueOn/RequestQueueOff).
func (p *Pattern) SetMute(muted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if muted {
		p.state = Muted
	} else if p.state == Muted {
		p.state = Playing
	}
}

// RequestPlay implements the "stopped -> playing" transition (spec §4.2's
// state table: "play() called with pattern unmuted"). It only takes
// effect from Stopped; a Muted pattern must go through RequestQueueOn
// instead, since unmuting a live loop is a queued transition but starting
// one fresh is not. Named apart from the container-walking Play(begin,
// end, out) scheduler hook above.
func (p *Pattern) RequestPlay() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Stopped {
		p.state = Playing
	}
}

// RequestQueueOn transitions a muted pattern to queued-on; it will flip
// to Playing the next time AdvanceBar is called.
func (p *Pattern) RequestQueueOn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Muted || p.state == Stopped {
		p.state = QueuedOn
	}
}

// RequestQueueOff transitions a playing pattern to queued-off; it will
// flip to Muted the next time AdvanceBar is called.
func (p *Pattern) RequestQueueOff() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Playing {
		p.state = QueuedOff
	}
}

// AdvanceBar resolves any pending queue transition; the scheduler calls
// this once per bar boundary it crosses (spec §4.2's state table).
func (p *Pattern) AdvanceBar() {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case QueuedOn:
		p.state = Playing
	case QueuedOff:
		p.state = Muted
	}
}

// Stop implements the "any -> stopped" transition. Flushing active
// note-ons as note-offs on the output is the scheduler's responsibility,
// since only the scheduler tracks which notes are currently sounding
// across all playing patterns (spec §4.4).
func (p *Pattern) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Stopped
}
