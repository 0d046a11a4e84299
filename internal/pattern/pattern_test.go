package pattern

import (
	"math/rand"
	"testing"

	"github.com/loopforge/engine/internal/event"
	"github.com/loopforge/engine/internal/midi/wire"
)

type recordedSend struct {
	kind         wire.StatusKind
	channel      uint8
	data1, data2 uint8
}

type fakeSink struct {
	sent  []recordedSend
	sysex [][]byte
}

func (f *fakeSink) SendEvent(kind wire.StatusKind, channel, data1, data2 uint8) error {
	f.sent = append(f.sent, recordedSend{kind, channel, data1, data2})
	return nil
}

func (f *fakeSink) SendSysEx(payload []byte) error {
	f.sysex = append(f.sysex, append([]byte(nil), payload...))
	return nil
}

func newTestPattern(t *testing.T) *Pattern {
	t.Helper()
	p, err := New(Config{Name: "one-bar", PPQN: 192, BeatsPerBar: 4, BeatWidth: 4, Measures: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestSetLengthRejectsNonMeasureMultiple(t *testing.T) {
	p := newTestPattern(t)
	if err := p.SetLength(100); err == nil {
		t.Fatal("expected an error for a non-measure-multiple length")
	}
}

func TestSetLengthAcceptsMeasureMultiple(t *testing.T) {
	p := newTestPattern(t)
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))
	p.AddEvent(event.NewNoteOff(96, 0, 60, 0))
	p.Triggers().Insert(Trigger{Start: 0, End: 768})

	if err := p.SetLength(768); err != nil {
		t.Fatalf("SetLength: %v", err)
	}
	if p.Length() != 768 {
		t.Fatalf("Length() = %d, want 768", p.Length())
	}
}

func TestSetLengthShrinkSynthesizesNoteOff(t *testing.T) {
	p := newTestPattern(t)
	p.shrinkMode = ShrinkSynthesizeOff
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))
	p.AddEvent(event.NewNoteOff(700, 0, 60, 0)) // past the upcoming shrink
	if err := p.SetLength(768); err != nil {
		t.Fatalf("initial SetLength: %v", err)
	}

	if err := p.SetLength(384); err != nil {
		t.Fatalf("shrink SetLength: %v", err)
	}
	foundOn, foundOff := false, false
	for i := 0; i < p.events.Len(); i++ {
		e := p.events.At(i)
		if e.Kind == event.KindNoteOn {
			foundOn = true
		}
		if e.Kind == event.KindNoteOff {
			foundOff = true
			if e.Timestamp >= 384 {
				t.Errorf("synthesized note-off should fall before the new end, got %d", e.Timestamp)
			}
		}
	}
	if !foundOn || !foundOff {
		t.Fatal("expected a surviving note-on and a synthesized note-off")
	}
}

func TestAddEventSnapsNotesToGrid(t *testing.T) {
	p := newTestPattern(t)
	p.SetSnap(true, 96)
	p.AddEvent(event.NewNoteOn(40, 0, 60, 100))
	if p.events.At(0).Timestamp != 0 {
		t.Errorf("snap should round 40 to nearest 96-multiple (0), got %d", p.events.At(0).Timestamp)
	}
}

func TestStreamEventStampsCurrentTickAndRespectsThru(t *testing.T) {
	p := newTestPattern(t)
	p.SetLength(768)
	p.SetThru(true)
	sink := &fakeSink{}

	e := event.NewNoteOn(0, 0, 60, 100)
	if err := p.StreamEvent(e, 900, sink); err != nil {
		t.Fatalf("StreamEvent: %v", err)
	}
	if e.Timestamp != 900%768 {
		t.Errorf("StreamEvent should stamp current tick modulo length, got %d", e.Timestamp)
	}
	if len(sink.sent) != 1 || sink.sent[0].kind != wire.NoteOn {
		t.Fatalf("expected one note-on forwarded to thru sink, got %+v", sink.sent)
	}
}

func TestPlayForwardsEventsInWindow(t *testing.T) {
	p := newTestPattern(t)
	p.SetLength(768)
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))
	p.AddEvent(event.NewNoteOff(96, 0, 60, 0))

	sink := &fakeSink{}
	if err := p.Play(0, 100, sink); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected 2 events forwarded, got %d", len(sink.sent))
	}
	if sink.sent[0].kind != wire.NoteOn || sink.sent[1].kind != wire.NoteOff {
		t.Errorf("unexpected event kinds forwarded: %+v", sink.sent)
	}
}

func TestPlaySplitsWrappedWindow(t *testing.T) {
	p := newTestPattern(t)
	p.SetLength(768)
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))
	p.AddEvent(event.NewNoteOff(96, 0, 60, 0))

	sink := &fakeSink{}
	// Window [700, 800) wraps past length 768: covers [700,768) and [0,32).
	if err := p.Play(700, 800, sink); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(sink.sent) != 1 || sink.sent[0].kind != wire.NoteOn {
		t.Fatalf("expected only the wrapped note-on at tick 0, got %+v", sink.sent)
	}
}

func TestMultiplyPatternRepeatsEvents(t *testing.T) {
	p := newTestPattern(t)
	p.SetLength(768)
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))
	p.AddEvent(event.NewNoteOff(96, 0, 60, 0))

	if err := p.MultiplyPattern(2); err != nil {
		t.Fatalf("MultiplyPattern: %v", err)
	}
	if p.Length() != 1536 {
		t.Fatalf("Length() = %d, want 1536", p.Length())
	}
	if p.events.Len() != 4 {
		t.Fatalf("events.Len() = %d, want 4", p.events.Len())
	}
}

func TestReverseFlipsTimestampsAndKinds(t *testing.T) {
	p := newTestPattern(t)
	p.SetLength(768)
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))
	p.AddEvent(event.NewNoteOff(96, 0, 60, 0))

	p.Reverse()
	var on, off *event.Event
	for i := 0; i < p.events.Len(); i++ {
		e := p.events.At(i)
		if e.Kind == event.KindNoteOn {
			on = e
		} else if e.Kind == event.KindNoteOff {
			off = e
		}
	}
	if on == nil || off == nil {
		t.Fatal("expected both a note-on and a note-off to survive reversal")
	}
	if on.Timestamp != 768-1-96 {
		t.Errorf("reversed note-on timestamp = %d, want %d", on.Timestamp, 768-1-96)
	}
}

func TestTransposeClampsToValidRange(t *testing.T) {
	p := newTestPattern(t)
	p.AddEvent(event.NewNoteOn(0, 0, 125, 100))
	p.Transpose(10)
	if p.events.At(0).Data1 != 127 {
		t.Errorf("transpose should clamp to 127, got %d", p.events.At(0).Data1)
	}
}

func TestRandomizeClampsVelocity(t *testing.T) {
	p := newTestPattern(t)
	p.AddEvent(event.NewNoteOn(0, 0, 60, 127))
	p.Randomize(50, rand.New(rand.NewSource(1)))
	if p.events.At(0).Data2 > 127 {
		t.Errorf("randomized velocity should clamp to 127, got %d", p.events.At(0).Data2)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	p := newTestPattern(t)
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))
	p.Transpose(12)
	if p.events.At(0).Data1 != 72 {
		t.Fatalf("precondition failed: note = %d", p.events.At(0).Data1)
	}

	if !p.PopUndo() {
		t.Fatal("expected an undo snapshot to be available")
	}
	if p.events.At(0).Data1 != 60 {
		t.Errorf("after undo, note = %d, want 60", p.events.At(0).Data1)
	}
	if !p.PopRedo() {
		t.Fatal("expected a redo snapshot to be available")
	}
	if p.events.At(0).Data1 != 72 {
		t.Errorf("after redo, note = %d, want 72", p.events.At(0).Data1)
	}
}

func TestQueueStateMachine(t *testing.T) {
	p := newTestPattern(t)
	p.state = Playing

	p.RequestQueueOff()
	if p.State() != QueuedOff {
		t.Fatalf("State() = %v, want QueuedOff", p.State())
	}
	p.AdvanceBar()
	if p.State() != Muted {
		t.Fatalf("State() = %v, want Muted", p.State())
	}

	p.RequestQueueOn()
	if p.State() != QueuedOn {
		t.Fatalf("State() = %v, want QueuedOn", p.State())
	}
	p.AdvanceBar()
	if p.State() != Playing {
		t.Fatalf("State() = %v, want Playing", p.State())
	}

	p.Stop()
	if p.State() != Stopped {
		t.Fatalf("State() = %v, want Stopped", p.State())
	}
}

func TestRequestPlayStartsStoppedPattern(t *testing.T) {
	p := newTestPattern(t)

	p.RequestPlay()
	if p.State() != Playing {
		t.Fatalf("State() after RequestPlay() on a stopped pattern = %v, want Playing", p.State())
	}

	p.state = Muted
	p.RequestPlay()
	if p.State() != Muted {
		t.Fatalf("State() after RequestPlay() on a muted pattern = %v, want unchanged Muted", p.State())
	}
}
