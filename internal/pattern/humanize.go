package pattern

import (
	"math/rand"

	"github.com/loopforge/engine/internal/event"
)

// HumanizeProfile packs the three humanize knobs (timing jitter, velocity
// jitter, and which event kinds are eligible) into one small integer, the
// way the source's device packing helpers folded several small integer
// parameters into one control word: timing range in bits 0-3, velocity
// range in bits 4-7, and the notes-only flag in bit 8.
type HumanizeProfile uint16

const (
	humanizeTimingMask    = 0x0F
	humanizeVelocityShift = 4
	humanizeVelocityMask  = 0x0F << humanizeVelocityShift
	humanizeNotesOnlyBit  = 0x100
)

// PackHumanizeProfile builds a HumanizeProfile from human-readable
// ranges. timingSteps and velocitySteps are both clamped to [0,15]
// (the nibble range); notesOnly restricts jitter to note events
// (note-on and note-off).
func PackHumanizeProfile(timingSteps, velocitySteps int, notesOnly bool) HumanizeProfile {
	if timingSteps < 0 {
		timingSteps = 0
	}
	if timingSteps > 15 {
		timingSteps = 15
	}
	if velocitySteps < 0 {
		velocitySteps = 0
	}
	if velocitySteps > 15 {
		velocitySteps = 15
	}
	p := uint16(timingSteps) & humanizeTimingMask
	p |= uint16(velocitySteps) << humanizeVelocityShift
	if notesOnly {
		p |= humanizeNotesOnlyBit
	}
	return HumanizeProfile(p)
}

// TimingSteps unpacks bits 0-3.
func (p HumanizeProfile) TimingSteps() int { return int(uint16(p) & humanizeTimingMask) }

// VelocitySteps unpacks bits 4-7.
func (p HumanizeProfile) VelocitySteps() int { return int(uint16(p)&humanizeVelocityMask) >> humanizeVelocityShift }

// NotesOnly reports whether bit 8 restricts jitter to notes.
func (p HumanizeProfile) NotesOnly() bool { return uint16(p)&humanizeNotesOnlyBit != 0 }

// Humanize applies a profile's timing and velocity jitter to every
// eligible event in the pattern, one pulse per timing step and one
// velocity unit per velocity step, pushing an undo snapshot first.
func Humanize(p *Pattern, profile HumanizeProfile, source *rand.Rand) {
	timing := profile.TimingSteps()
	velocity := profile.VelocitySteps()
	if timing == 0 && velocity == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushUndo()

	for i := 0; i < p.events.Len(); i++ {
		e := p.events.At(i)
		if profile.NotesOnly() && !e.IsNote() {
			continue
		}
		if timing > 0 {
			jitter := int64(source.Intn(2*timing+1) - timing)
			ts := e.Timestamp + jitter
			if ts < 0 {
				ts = 0
			}
			if ts >= p.length {
				ts = p.length - 1
			}
			e.Timestamp = ts
		}
		if velocity > 0 && e.Kind == event.KindNoteOn {
			jitter := source.Intn(2*velocity+1) - velocity
			v := int(e.Data2) + jitter
			if v < 1 {
				v = 1
			}
			if v > 127 {
				v = 127
			}
			e.Data2 = uint8(v)
		}
	}
	// Timing jitter can reorder events or break note-on/off adjacency;
	// re-sort and re-pair before anything reads the container again.
	resorted := event.NewContainer()
	for i := 0; i < p.events.Len(); i++ {
		resorted.Append(p.events.At(i).Clone())
	}
	p.events = resorted
	p.events.VerifyAndLink(p.length)
	p.modified = true
}
