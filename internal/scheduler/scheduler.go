// Package scheduler implements the playback scheduler: the single
// dedicated-thread loop that converts wall-clock time into song pulses
// through a tempo map and asks every active pattern to emit its events
// for the resulting window (spec §4.4).
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/loopforge/engine/internal/bus"
	"github.com/loopforge/engine/internal/calc"
	"github.com/loopforge/engine/internal/midi/wire"
	"github.com/loopforge/engine/internal/pattern"
)

// noteKey identifies one sounding note for the all-notes-off flush on stop.
type noteKey struct {
	busIdx  int
	channel uint8
	note    uint8
}

// track pairs a pattern with the output bus it routes to.
type track struct {
	pattern *pattern.Pattern
	busIdx  int
}

// Scheduler is the output-thread loop described in spec §4.4-§5: it
// holds no global state, reads tempo/PPQN from values passed in at
// construction, and observes a stop flag between steps rather than
// blocking on anything but a sleep.
type Scheduler struct {
	bus   *bus.Bus
	ppqn  int
	tempo *TempoMap

	mu     sync.RWMutex
	tracks []track

	cursor   int64 // current song tick
	wallRef  time.Time
	stopping atomic.Bool
	running  atomic.Bool

	activeMu sync.Mutex
	active   map[noteKey]bool
}

// New returns a Scheduler driving b at the given PPQN, honoring tempo.
func New(b *bus.Bus, ppqn int, tempo *TempoMap) *Scheduler {
	return &Scheduler{bus: b, ppqn: ppqn, tempo: tempo, active: make(map[noteKey]bool)}
}

// AddTrack registers a pattern to be walked by the scheduler, routed to
// output bus busIdx.
func (s *Scheduler) AddTrack(p *pattern.Pattern, busIdx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track{pattern: p, busIdx: busIdx})
}

// CurrentTick returns the scheduler's current song position.
func (s *Scheduler) CurrentTick() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Start resets the cursor to startTick, records now as the wall-clock
// reference, clears the stop flag, and broadcasts MIDI Start (or a
// Song-Position-Pointer + Continue when resuming from a nonzero
// startTick, per spec §4.4's "resumes by walking from either tick 0
// (start) or the last cursor (continue)"). A startTick that falls on a
// track's loop boundary counts as that track's bar boundary, so a pattern
// queued before Start resolves its queue transition here.
func (s *Scheduler) Start(now time.Time, startTick int64) {
	s.mu.Lock()
	s.cursor = startTick
	s.wallRef = now
	tracks := append([]track(nil), s.tracks...)
	s.mu.Unlock()

	for _, tr := range tracks {
		if length := tr.pattern.Length(); length > 0 && startTick%length == 0 {
			tr.pattern.AdvanceBar()
		}
	}

	s.stopping.Store(false)
	s.running.Store(true)
	if startTick == 0 {
		s.bus.Start()
	} else {
		s.bus.ContinueFrom(startTick)
	}
}

// RequestStop sets the stop flag; the next Step observes it, flushes an
// all-notes-off to every active channel, emits MIDI Stop, and reports
// itself no longer running (spec §4.4 cancellation).
func (s *Scheduler) RequestStop() {
	s.stopping.Store(true)
}

// Running reports whether the scheduler is between a Start and its
// matching stop-flush.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Step advances the scheduler from its current cursor to the tick
// implied by elapsed wall-clock time at now, walking every track's
// playable sub-range, emitting MIDI clock for every PPQN/24 boundary
// crossed, and resolving any bar-boundary queue transitions. If the stop
// flag is set, it instead performs the stop sequence and returns.
func (s *Scheduler) Step(now time.Time) {
	if s.stopping.Load() {
		s.flushStop()
		return
	}
	if !s.running.Load() {
		return
	}

	s.mu.RLock()
	wallRef := s.wallRef
	cursor := s.cursor
	tracks := append([]track(nil), s.tracks...)
	s.mu.RUnlock()

	elapsedUs := float64(now.Sub(wallRef).Microseconds())
	target := s.tempo.TickFromElapsedMicros(elapsedUs, s.ppqn)
	if target <= cursor {
		return
	}

	s.emitClocksBetween(cursor, target)

	for _, tr := range tracks {
		s.stepTrack(tr, cursor, target)
	}

	s.mu.Lock()
	s.cursor = target
	s.mu.Unlock()
}

func (s *Scheduler) emitClocksBetween(begin, end int64) {
	step := calc.PulsesPerClock(s.ppqn)
	if step <= 0 {
		return
	}
	first := (begin/step + 1) * step
	for tick := first; tick < end; tick += step {
		s.bus.EmitClock()
	}
}

func (s *Scheduler) stepTrack(tr track, begin, end int64) {
	state := tr.pattern.State()
	length := tr.pattern.Length()
	if length > 0 {
		// A bar boundary, for queue-on/queue-off purposes, is a crossing
		// of the pattern's own loop length (spec §4.2's state table).
		if crossesMultiple(begin, end, length) {
			tr.pattern.AdvanceBar()
			state = tr.pattern.State()
		}
	}

	if state != pattern.Playing && state != pattern.QueuedOff {
		return
	}

	sink := &trackSink{s: s, busIdx: tr.busIdx}
	triggers := tr.pattern.Triggers()
	if triggers.Len() == 0 {
		_ = tr.pattern.Play(begin, end, sink)
		return
	}
	for tick := begin; tick < end; {
		trig, ok := triggers.Active(tick)
		if !ok {
			tick++
			continue
		}
		segEnd := end
		if trig.End < segEnd {
			segEnd = trig.End
		}
		localBegin := tick - trig.Start + trig.Offset
		localEnd := localBegin + (segEnd - tick)
		_ = tr.pattern.Play(localBegin, localEnd, sink)
		tick = segEnd
	}
}

// crossesMultiple reports whether [begin, end) crosses a multiple of m.
func crossesMultiple(begin, end, m int64) bool {
	if m <= 0 {
		return false
	}
	return end/m > begin/m
}

// flushStop sends a note-off for every tracked sounding note, emits MIDI
// Stop on every clocking output, and marks the scheduler not running.
func (s *Scheduler) flushStop() {
	s.activeMu.Lock()
	keys := make([]noteKey, 0, len(s.active))
	for k := range s.active {
		keys = append(keys, k)
	}
	s.active = make(map[noteKey]bool)
	s.activeMu.Unlock()

	for _, k := range keys {
		_ = s.bus.Play(k.busIdx, wire.NoteOff, k.channel, k.note, 0)
	}
	s.bus.Stop()
	s.stopping.Store(false)
	s.running.Store(false)
}

// trackSink adapts the Scheduler's active-note bookkeeping onto
// pattern.OutputSink, so the scheduler always knows which notes are
// sounding on which bus/channel without the bus or pattern needing to
// track it themselves.
type trackSink struct {
	s      *Scheduler
	busIdx int
}

func (t *trackSink) SendEvent(kind wire.StatusKind, channel, data1, data2 uint8) error {
	switch kind {
	case wire.NoteOn:
		t.s.activeMu.Lock()
		t.s.active[noteKey{t.busIdx, channel, data1}] = true
		t.s.activeMu.Unlock()
	case wire.NoteOff:
		t.s.activeMu.Lock()
		delete(t.s.active, noteKey{t.busIdx, channel, data1})
		t.s.activeMu.Unlock()
	}
	return t.s.bus.Play(t.busIdx, kind, channel, data1, data2)
}

func (t *trackSink) SendSysEx(payload []byte) error {
	return t.s.bus.Sysex(t.busIdx, payload)
}
