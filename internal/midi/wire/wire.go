// Package wire encodes and decodes MIDI 1.0 channel messages and realtime
// bytes. Output never uses running status: every channel message always
// starts with a fresh status byte, per spec §6.
package wire

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// StatusKind identifies the high nibble of a channel status byte.
type StatusKind uint8

const (
	NoteOff StatusKind = 0x8
	NoteOn  StatusKind = 0x9
	PolyAT  StatusKind = 0xA
	CC      StatusKind = 0xB
	Program StatusKind = 0xC
	ChanAT  StatusKind = 0xD
	Pitch   StatusKind = 0xE
)

// Realtime status bytes (spec §6).
const (
	RealtimeClock      byte = 0xF8
	RealtimeStart      byte = 0xFA
	RealtimeContinue   byte = 0xFB
	RealtimeStop       byte = 0xFC
	SongPositionStatus byte = 0xF2
)

// SysExStart and SysExEnd delimit a system-exclusive message.
const (
	SysExStart byte = 0xF0
	SysExEnd   byte = 0xF7
)

// dataLength returns how many data bytes follow a channel status byte of
// the given kind, matching the command-info table used to parse MIDI
// streams byte-by-byte (grounded in the MIDI-over-RTP command table).
func dataLength(kind StatusKind) int {
	switch kind {
	case Program, ChanAT:
		return 1
	case NoteOff, NoteOn, PolyAT, CC, Pitch:
		return 2
	default:
		return 0
	}
}

// EncodeChannelMessage serializes a channel message to wire bytes using
// gomidi's message constructors, always emitting a fresh status byte.
func EncodeChannelMessage(kind StatusKind, channel, data1, data2 uint8) ([]byte, error) {
	if channel > 15 {
		return nil, fmt.Errorf("channel %d out of range [0,15]", channel)
	}
	var msg midi.Message
	switch kind {
	case NoteOn:
		msg = midi.NoteOn(channel, data1, data2)
	case NoteOff:
		msg = midi.NoteOffVelocity(channel, data1, data2)
	case PolyAT:
		msg = midi.PolyAfterTouch(channel, data1, data2)
	case CC:
		msg = midi.ControlChange(channel, data1, data2)
	case Program:
		msg = midi.ProgramChange(channel, data1)
	case ChanAT:
		msg = midi.AfterTouch(channel, data1)
	case Pitch:
		rel := int16(uint16(data1)|uint16(data2)<<7) - 8192
		msg = midi.Pitchbend(channel, rel)
	default:
		return nil, fmt.Errorf("unknown status kind %#x", kind)
	}
	return msg.Bytes(), nil
}

// DecodeChannelMessage parses a single wire-format channel message (status
// byte plus its fixed-size data bytes) back into kind/channel/data bytes.
func DecodeChannelMessage(b []byte) (kind StatusKind, channel, data1, data2 uint8, err error) {
	if len(b) == 0 {
		return 0, 0, 0, 0, fmt.Errorf("empty message")
	}
	status := b[0]
	if status < 0x80 || status >= 0xF0 {
		return 0, 0, 0, 0, fmt.Errorf("not a channel status byte: %#x", status)
	}
	kind = StatusKind(status >> 4)
	channel = status & 0x0F
	need := dataLength(kind)
	if len(b) < 1+need {
		return 0, 0, 0, 0, fmt.Errorf("truncated message: need %d data bytes, got %d", need, len(b)-1)
	}
	if need >= 1 {
		data1 = b[1]
	}
	if need >= 2 {
		data2 = b[2]
	}
	return kind, channel, data1, data2, nil
}

// Rank gives the tie-break ordinal used when two events share a timestamp:
// note-off sorts first, then note-on, then aftertouch/pitch-wheel, then
// control-change, then program-change (spec §3).
func Rank(kind StatusKind) int {
	switch kind {
	case NoteOff:
		return 0
	case NoteOn:
		return 1
	case PolyAT, ChanAT, Pitch:
		return 2
	case CC:
		return 3
	case Program:
		return 4
	default:
		return 5
	}
}

// SongPositionBytes encodes a 14-bit song-position value as the two data
// bytes (LSB, MSB) that follow the 0xF2 status byte.
func SongPositionBytes(pos uint16) (lsb, msb byte) {
	pos &= 0x3FFF
	return byte(pos & 0x7F), byte((pos >> 7) & 0x7F)
}
