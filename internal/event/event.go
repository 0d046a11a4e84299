// Package event implements the MIDI event model and its ordered container:
// pulse-accurate timestamps, status/data encoding, note-on/note-off
// pairing, and meta events (spec §3-§4.1).
package event

import "github.com/loopforge/engine/internal/midi/wire"

// Kind classifies what an Event carries. Channel kinds mirror
// wire.StatusKind; Meta and SysEx are container-only concepts that never
// appear on the wire as channel messages.
type Kind uint8

const (
	KindNoteOff Kind = iota
	KindNoteOn
	KindPolyAT
	KindCC
	KindProgram
	KindChanAT
	KindPitch
	KindMeta
	KindSysEx
)

// NoChannel marks an event that carries no MIDI channel (meta and SysEx
// events), per spec §3 ("channel ... when status is a channel message,
// else not applicable").
const NoChannel uint8 = 0xFF

// MetaType distinguishes the meta-events the core cares about; all other
// meta types are preserved as opaque payloads.
type MetaType uint8

const (
	MetaNone MetaType = iota
	MetaSetTempo
	MetaTimeSignature
)

// NoLink is the zero value of an Event ID and also the sentinel meaning
// "no partner linked".
const NoLink uint64 = 0

// Event is one MIDI event: a pulse timestamp plus its payload. Events are
// identified by a stable ID assigned by the Container that owns them;
// LinkID refers to a partner Event's ID rather than a pointer, so that
// container reallocation never invalidates a note-on/note-off or
// tempo-chain partnership (spec §9).
type Event struct {
	ID        uint64
	Timestamp int64 // pulses; negative is invalid except as a "none" sentinel
	Kind      Kind
	Channel   uint8 // 0..15, or NoChannel
	Data1     uint8
	Data2     uint8
	SysEx     []byte // non-nil only when Kind == KindSysEx
	Meta      MetaType
	MetaBytes []byte // raw meta payload, used for anything beyond tempo/time-sig

	LinkID uint64 // partner event ID, or NoLink

	Selected bool
	Marked   bool
	Painted  bool
}

// Rank gives the tie-break ordinal used when two events share a timestamp
// (spec §3): meta events (tempo, time signature) apply before anything
// else in the same tick, then note-off, note-on, aftertouch/pitch-wheel,
// control-change, and program-change last.
func Rank(k Kind) int {
	if k == KindMeta {
		return -1
	}
	switch k {
	case KindNoteOff:
		return int(wire.Rank(wire.NoteOff))
	case KindNoteOn:
		return int(wire.Rank(wire.NoteOn))
	case KindPolyAT:
		return int(wire.Rank(wire.PolyAT))
	case KindChanAT:
		return int(wire.Rank(wire.ChanAT))
	case KindPitch:
		return int(wire.Rank(wire.Pitch))
	case KindCC:
		return int(wire.Rank(wire.CC))
	case KindProgram:
		return int(wire.Rank(wire.Program))
	default:
		return 100
	}
}

// IsNote reports whether the event is a note-on or note-off.
func (e *Event) IsNote() bool {
	return e.Kind == KindNoteOn || e.Kind == KindNoteOff
}

// Note returns the note number carried by a note-on/note-off event
// (Data1); it is meaningless for other kinds.
func (e *Event) Note() uint8 { return e.Data1 }

// Velocity returns the velocity carried by a note-on/note-off event
// (Data2).
func (e *Event) Velocity() uint8 { return e.Data2 }

// Clone returns a value copy of the event with its link dropped: copying
// an event drops its partner pointer, which verify-and-link rebuilds
// (spec §3 "Lifetimes").
func (e *Event) Clone() *Event {
	c := *e
	c.LinkID = NoLink
	if e.SysEx != nil {
		c.SysEx = append([]byte(nil), e.SysEx...)
	}
	if e.MetaBytes != nil {
		c.MetaBytes = append([]byte(nil), e.MetaBytes...)
	}
	return &c
}

// NewNoteOn builds a note-on event at the given timestamp.
func NewNoteOn(ts int64, channel, note, velocity uint8) *Event {
	return &Event{Timestamp: clampTS(ts), Kind: KindNoteOn, Channel: channel, Data1: note, Data2: velocity}
}

// NewNoteOff builds a note-off event at the given timestamp.
func NewNoteOff(ts int64, channel, note, velocity uint8) *Event {
	return &Event{Timestamp: clampTS(ts), Kind: KindNoteOff, Channel: channel, Data1: note, Data2: velocity}
}

// NewCC builds a control-change event.
func NewCC(ts int64, channel, controller, value uint8) *Event {
	return &Event{Timestamp: clampTS(ts), Kind: KindCC, Channel: channel, Data1: controller, Data2: value}
}

// NewSetTempo builds a set-tempo meta event from a BPM value.
func NewSetTempo(ts int64, bpm float64, encode func(float64) [3]byte) *Event {
	b := encode(bpm)
	return &Event{
		Timestamp: clampTS(ts),
		Kind:      KindMeta,
		Channel:   NoChannel,
		Meta:      MetaSetTempo,
		MetaBytes: []byte{b[0], b[1], b[2]},
	}
}

// NewTimeSignature builds a time-signature meta event (0xFF 0x58 nn dd cc bb).
func NewTimeSignature(ts int64, beatsPerBar uint8, beatWidthPow2 uint8, clocksPerClick uint8, thirtySecondsPer24Clocks uint8) *Event {
	return &Event{
		Timestamp: clampTS(ts),
		Kind:      KindMeta,
		Channel:   NoChannel,
		Meta:      MetaTimeSignature,
		MetaBytes: []byte{beatsPerBar, beatWidthPow2, clocksPerClick, thirtySecondsPer24Clocks},
	}
}

// NewSysEx builds a SysEx event; payload must include the leading 0xF0 and
// trailing 0xF7 bytes.
func NewSysEx(ts int64, payload []byte) *Event {
	return &Event{Timestamp: clampTS(ts), Kind: KindSysEx, Channel: NoChannel, SysEx: append([]byte(nil), payload...)}
}

func clampTS(ts int64) int64 {
	if ts < 0 {
		return 0
	}
	return ts
}
