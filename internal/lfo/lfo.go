// Package lfo implements the deterministic waveform-based modulation of
// continuous-controller event data: a low-frequency oscillator that
// rewrites a pattern's matching events in place (spec §4.5).
package lfo

import (
	"math"

	"github.com/loopforge/engine/internal/event"
	"github.com/loopforge/engine/internal/midi/wire"
)

// Wave selects the oscillator shape, matching the waveform set the
// original editor exposes (WAVE_NONE/SINE/SAWTOOTH/REVERSE_SAWTOOTH/
// TRIANGLE in qlfoframe.hpp).
type Wave uint8

const (
	WaveNone Wave = iota
	WaveSine
	WaveSawtooth
	WaveReverseSawtooth
	WaveTriangle
)

// Params bundles the oscillator's shaping parameters (spec §4.5): Value is
// the DC offset, Range the modulation depth, Speed the number of full
// cycles across the pattern length, Phase a fractional cycle offset.
type Params struct {
	Status     wire.StatusKind
	Controller uint8 // only meaningful when Status == wire.CC
	Value      float64
	Range      float64
	Speed      float64
	Phase      float64
	Wave       Wave
}

// patternTarget is the minimal surface Apply needs from a pattern: direct
// container access plus the lock pair that keeps the read-modify-write
// atomic with respect to the scheduler's per-pattern walk (spec §5), and
// PushUndo to snapshot before mutating.
type patternTarget interface {
	Events() *event.Container
	Length() int64
	Lock()
	Unlock()
	PushUndo()
}

func kindMatches(e *event.Event, status wire.StatusKind, controller uint8) bool {
	switch status {
	case wire.CC:
		return e.Kind == event.KindCC && e.Data1 == controller
	case wire.NoteOn, wire.NoteOff, wire.PolyAT, wire.ChanAT, wire.Pitch, wire.Program:
		return eventKindFor(status) == e.Kind
	default:
		return false
	}
}

func eventKindFor(status wire.StatusKind) event.Kind {
	switch status {
	case wire.NoteOn:
		return event.KindNoteOn
	case wire.NoteOff:
		return event.KindNoteOff
	case wire.PolyAT:
		return event.KindPolyAT
	case wire.ChanAT:
		return event.KindChanAT
	case wire.Pitch:
		return event.KindPitch
	case wire.Program:
		return event.KindProgram
	default:
		return event.KindMeta
	}
}

// W evaluates the selected waveform at angle theta (radians), returning a
// value in [-1, 1] (spec §4.5's four wave formulas). WaveNone always
// yields 0; Apply returns without touching any event for that selection.
func W(wave Wave, theta float64) float64 {
	switch wave {
	case WaveSine:
		return math.Sin(theta)
	case WaveSawtooth:
		frac := math.Mod(theta/(2*math.Pi), 1.0)
		if frac < 0 {
			frac++
		}
		return frac*2 - 1
	case WaveReverseSawtooth:
		frac := math.Mod(theta/(2*math.Pi), 1.0)
		if frac < 0 {
			frac++
		}
		return 1 - frac*2
	case WaveTriangle:
		frac := math.Mod(theta/(2*math.Pi)+0.25, 1.0)
		if frac < 0 {
			frac++
		}
		return 2*math.Abs(2*frac-1) - 1
	default: // WaveNone
		return 0
	}
}

// clamp127 rounds and clamps a data-byte candidate to the legal MIDI data
// range [0, 127].
func clamp127(v float64) uint8 {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 127 {
		return 127
	}
	return uint8(r)
}

// Apply implements change_event_data_lfo (spec §4.5): it walks every event
// in p matching params.Status (and, for control-change, params.Controller),
// replacing its primary data byte with
// clamp(value + range*W(theta), 0, 127) where
// theta = 2*pi*(timestamp/length)*speed + 2*pi*phase.
//
// One undo snapshot is pushed before any mutation, even when Wave is
// WaveNone, so the (no-op) application can still be rolled back as the
// spec requires. Apply is deterministic and idempotent for a fixed Params
// against a fixed event set: re-running it with the same parameters
// recomputes the same theta from each event's unchanged timestamp and
// therefore writes the same data byte again.
func Apply(p patternTarget, params Params) {
	p.Lock()
	length := p.Length()
	p.Unlock()

	p.PushUndo()

	if length <= 0 || params.Wave == WaveNone {
		return
	}

	p.Lock()
	defer p.Unlock()

	c := p.Events()
	for i := 0; i < c.Len(); i++ {
		e := c.At(i)
		if !kindMatches(e, params.Status, params.Controller) {
			continue
		}
		theta := 2*math.Pi*(float64(e.Timestamp)/float64(length))*params.Speed + 2*math.Pi*params.Phase
		w := W(params.Wave, theta)
		value := clamp127(params.Value + params.Range*w)
		switch e.Kind {
		case event.KindProgram, event.KindChanAT:
			e.Data1 = value
		default:
			e.Data2 = value
		}
	}
}
