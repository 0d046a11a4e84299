package scheduler

import (
	"testing"
	"time"

	"github.com/loopforge/engine/internal/bus"
	"github.com/loopforge/engine/internal/event"
	"github.com/loopforge/engine/internal/midi/wire"
	"github.com/loopforge/engine/internal/pattern"
	"github.com/loopforge/engine/internal/port"
)

func onePatBar(t *testing.T) *pattern.Pattern {
	t.Helper()
	p, err := pattern.New(pattern.Config{Name: "bar", PPQN: 192, BeatsPerBar: 4, BeatWidth: 4, Measures: 1})
	if err != nil {
		t.Fatalf("pattern.New: %v", err)
	}
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))
	p.AddEvent(event.NewNoteOff(96, 0, 60, 0))
	return p
}

func countKind(sent []port.SentEvent, kind wire.StatusKind) int {
	n := 0
	for _, s := range sent {
		if s.Realtime == 0 && s.Kind == kind {
			n++
		}
	}
	return n
}

func countRealtime(sent []port.SentEvent, b byte) int {
	n := 0
	for _, s := range sent {
		if s.Realtime == b {
			n++
		}
	}
	return n
}

// Spec §8 scenario 1: single note, fixed tempo, one bar.
func TestSchedulerSingleNoteFixedTempo(t *testing.T) {
	b := bus.New(192)
	d := port.NewDummy("out0", 256)
	b.AddOutput(d, true)

	s := New(b, 192, NewTempoMap(120))
	p := onePatBar(t)
	p.SetMute(false)
	p.RequestQueueOn()
	s.AddTrack(p, 0)

	t0 := time.Unix(0, 0)
	s.Start(t0, 0)
	s.Step(t0) // no time has elapsed; Start already resolved the queued-on transition at tick 0

	oneBar := t0.Add(2 * time.Second) // 768 pulses at 120 BPM, PPQN 192
	s.Step(oneBar)

	if n := countKind(d.Sent, wire.NoteOn); n != 1 {
		t.Errorf("expected 1 note-on, got %d", n)
	}
	if n := countKind(d.Sent, wire.NoteOff); n != 1 {
		t.Errorf("expected 1 note-off, got %d", n)
	}
	// One 4/4 bar (768 pulses) holds 768/(PPQN/24) = 96 clock boundaries;
	// the first clock fires after the first 8-pulse interval, not at
	// tick 0 itself, so a single bar from a cold start carries 95.
	if n := countRealtime(d.Sent, wire.RealtimeClock); n != 95 {
		t.Errorf("expected 95 clock bytes in one 4/4 bar at PPQN 192 from a cold start, got %d", n)
	}
}

// Spec §8 scenario 2: loop wrap over 1.5 bars.
func TestSchedulerLoopWrap(t *testing.T) {
	b := bus.New(192)
	d := port.NewDummy("out0", 512)
	b.AddOutput(d, true)

	s := New(b, 192, NewTempoMap(120))
	p := onePatBar(t)
	p.SetMute(false)
	p.RequestQueueOn()
	s.AddTrack(p, 0)

	t0 := time.Unix(0, 0)
	s.Start(t0, 0)
	s.Step(t0)
	s.Step(t0.Add(3 * time.Second)) // 1.5 bars at 120 BPM

	if n := countKind(d.Sent, wire.NoteOn); n != 2 {
		t.Errorf("expected 2 note-ons across the wrap, got %d", n)
	}
	if n := countKind(d.Sent, wire.NoteOff); n != 2 {
		t.Errorf("expected 2 note-offs across the wrap, got %d", n)
	}
}

// Spec §8 scenario 4: queue-on resolves at the next bar boundary, not
// immediately.
func TestSchedulerQueueOnWaitsForBarBoundary(t *testing.T) {
	b := bus.New(192)
	d := port.NewDummy("out0", 256)
	b.AddOutput(d, true)

	s := New(b, 192, NewTempoMap(120))
	p := onePatBar(t)
	s.AddTrack(p, 0)

	if p.State() != pattern.Stopped {
		t.Fatalf("pattern should start stopped, got %v", p.State())
	}

	t0 := time.Unix(0, 0)
	s.Start(t0, 0)
	p.RequestQueueOn() // queues; the first Step below is still at tick 0, so nothing elapses yet
	s.Step(t0)

	// Halfway through the first bar: no bar boundary crossed yet, so the
	// pattern must still be silent, queued rather than playing.
	s.Step(t0.Add(1 * time.Second))
	if p.State() == pattern.Playing {
		t.Fatal("pattern should not flip to Playing before its bar boundary")
	}
	if countKind(d.Sent, wire.NoteOn) != 0 {
		t.Errorf("pattern should not have played before its queued transition resolves")
	}

	// Cross the bar boundary (2s = 768 pulses at 120 BPM, PPQN 192): now
	// it must be playing and its note-on must appear.
	s.Step(t0.Add(2100 * time.Millisecond))
	if p.State() != pattern.Playing {
		t.Fatalf("pattern should be Playing after crossing its bar boundary, got %v", p.State())
	}
	if countKind(d.Sent, wire.NoteOn) == 0 {
		t.Error("expected the pattern's note-on once the queued transition resolves")
	}
}

// Spec §8 scenario 5 (partial): a large SysEx sent through the scheduler's
// track sink is forwarded whole to the output bus.
func TestSchedulerTrackSinkForwardsSysEx(t *testing.T) {
	b := bus.New(192)
	d := port.NewDummy("out0", 16)
	b.AddOutput(d, true)
	s := New(b, 192, NewTempoMap(120))

	sink := &trackSink{s: s, busIdx: 0}
	payload := []byte{wire.SysExStart, 1, 2, 3, wire.SysExEnd}
	if err := sink.SendSysEx(payload); err != nil {
		t.Fatalf("SendSysEx: %v", err)
	}
	if len(d.Sent) != 1 || len(d.Sent[0].SysEx) != len(payload) {
		t.Fatalf("expected the sysex forwarded whole, got %+v", d.Sent)
	}
}

// RequestStop flushes a sounding note as an explicit note-off.
func TestSchedulerStopFlushesActiveNotes(t *testing.T) {
	b := bus.New(192)
	d := port.NewDummy("out0", 256)
	b.AddOutput(d, true)

	s := New(b, 192, NewTempoMap(120))
	p, _ := pattern.New(pattern.Config{Name: "held", PPQN: 192, BeatsPerBar: 4, BeatWidth: 4, Measures: 1})
	p.AddEvent(event.NewNoteOn(0, 0, 67, 100)) // no matching note-off: stays "active"
	p.SetMute(false)
	p.RequestQueueOn()
	s.AddTrack(p, 0)

	t0 := time.Unix(0, 0)
	s.Start(t0, 0)
	s.Step(t0)
	s.Step(t0.Add(100 * time.Millisecond))

	s.RequestStop()
	s.Step(t0.Add(200 * time.Millisecond))

	if s.Running() {
		t.Error("scheduler should report not running after the stop flush")
	}
	found := false
	for _, ev := range d.Sent {
		if ev.Realtime == 0 && ev.Kind == wire.NoteOff && ev.Data1 == 67 {
			found = true
		}
	}
	if !found {
		t.Error("expected the scheduler to flush an explicit note-off for the still-sounding note")
	}
	if n := countRealtime(d.Sent, wire.RealtimeStop); n != 1 {
		t.Errorf("expected exactly one MIDI Stop byte, got %d", n)
	}
}
