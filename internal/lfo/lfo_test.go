package lfo

import (
	"math"
	"testing"

	"github.com/loopforge/engine/internal/event"
	"github.com/loopforge/engine/internal/midi/wire"
	"github.com/loopforge/engine/internal/pattern"
)

func newCCPattern(t *testing.T) *pattern.Pattern {
	t.Helper()
	p, err := pattern.New(pattern.Config{Name: "lfo", Measures: 1})
	if err != nil {
		t.Fatalf("pattern.New: %v", err)
	}
	// length is one 4/4 bar at default PPQN 192 -> 768 pulses.
	for _, ts := range []int64{0, 192, 384, 576} {
		p.AddEvent(event.NewCC(ts, 0, 74, 64))
	}
	return p
}

func ccValues(p *pattern.Pattern) []uint8 {
	c := p.Events()
	out := make([]uint8, 0, c.Len())
	for i := 0; i < c.Len(); i++ {
		out = append(out, c.At(i).Data2)
	}
	return out
}

// TestApplySineMatchesScenario exercises spec §8 scenario 6: four CC-74
// events at ticks 0/192/384/576 of a 768-pulse pattern, value=64 range=63
// speed=1 phase=0, sine wave, expecting ~64, 127, 64, 1.
func TestApplySineMatchesScenario(t *testing.T) {
	p := newCCPattern(t)
	Apply(p, Params{Status: wire.CC, Controller: 74, Value: 64, Range: 63, Speed: 1, Phase: 0, Wave: WaveSine})

	got := ccValues(p)
	want := []uint8{64, 127, 64, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestApplyOnlyTouchesMatchingStatus(t *testing.T) {
	p := newCCPattern(t)
	p.AddEvent(event.NewNoteOn(0, 0, 60, 100))

	Apply(p, Params{Status: wire.CC, Controller: 74, Value: 0, Range: 127, Speed: 1, Wave: WaveSawtooth})

	c := p.Events()
	for i := 0; i < c.Len(); i++ {
		e := c.At(i)
		if e.Kind == event.KindNoteOn && e.Data2 != 100 {
			t.Fatalf("note-on velocity was mutated by a CC-targeted LFO: %d", e.Data2)
		}
	}
}

func TestApplyWaveNoneIsNoOpButPushesUndo(t *testing.T) {
	p := newCCPattern(t)
	before := ccValues(p)

	Apply(p, Params{Status: wire.CC, Controller: 74, Value: 100, Range: 20, Speed: 3, Wave: WaveNone})

	after := ccValues(p)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("WaveNone mutated event %d: %d -> %d", i, before[i], after[i])
		}
	}
	if !p.PopUndo() {
		t.Fatal("expected Apply to have pushed an undo snapshot even for WaveNone")
	}
}

func TestApplyIdempotentWithoutIntermediateEdits(t *testing.T) {
	p1 := newCCPattern(t)
	p2 := newCCPattern(t)

	params := Params{Status: wire.CC, Controller: 74, Value: 64, Range: 63, Speed: 2, Phase: 0.25, Wave: WaveTriangle}
	Apply(p1, params)
	Apply(p1, params)
	Apply(p2, params)

	got1, got2 := ccValues(p1), ccValues(p2)
	for i := range got1 {
		if got1[i] != got2[i] {
			t.Errorf("event %d: double-apply diverged from single-apply: %d vs %d", i, got1[i], got2[i])
		}
	}
}

func TestWaveShapes(t *testing.T) {
	cases := []struct {
		wave Wave
		in   float64
		want float64
	}{
		{WaveSine, math.Pi / 2, 1},
		{WaveSawtooth, 0, -1},
		{WaveSawtooth, math.Pi, 0},
		{WaveReverseSawtooth, 0, 1},
		{WaveTriangle, 0, 0},
	}
	for _, c := range cases {
		got := W(c.wave, c.in)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("W(%v, %v) = %v, want %v", c.wave, c.in, got, c.want)
		}
	}
}
