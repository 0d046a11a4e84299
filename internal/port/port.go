// Package port defines the MIDI backend capability interface (spec
// §4.6) and ships the two in-memory backends the core can run against
// without a native MIDI subsystem: Dummy and Loopback. Real backends
// (ALSA, JACK, CoreMIDI, WinMM/PortMidi) are external collaborators and
// are out of scope for this module (spec §1 Non-goals).
package port

import (
	"fmt"

	"github.com/loopforge/engine/internal/midi/wire"
)

// InEvent is one decoded inbound MIDI event as delivered by GetMIDIEvent.
type InEvent struct {
	Kind         wire.StatusKind
	Channel      uint8
	Data1, Data2 uint8
	IsRealtime   bool
	Realtime     byte // valid when IsRealtime
}

// Port is the capability interface every concrete backend implements
// (spec §4.6). There is no virtual-dispatch "midi_api" base exposed
// outside this package (spec §9): callers hold a Port, never a backend
// type.
type Port interface {
	// InitOut opens one hardware output endpoint.
	InitOut(name string) error
	// InitIn opens one hardware input endpoint.
	InitIn(name string) error
	// InitOutSub opens a virtual output endpoint other applications can
	// connect to; returns ErrUnsupported on backends without virtual
	// port support.
	InitOutSub(name string) error
	// InitInSub opens a virtual input endpoint; returns ErrUnsupported
	// on backends without virtual port support.
	InitInSub(name string) error
	// DeinitIn unsubscribes/closes the input side without destroying
	// the Port.
	DeinitIn() error

	// SendEvent serializes and sends one channel event.
	SendEvent(kind wire.StatusKind, channel, data1, data2 uint8) error
	// SendSysEx serializes and sends one SysEx payload, chunked by the
	// backend's preferred maximum.
	SendSysEx(payload []byte) error
	// Flush drains any backend-local output queue.
	Flush() error

	EmitStart() error
	EmitStop() error
	EmitContinueFrom(songPosition uint16) error
	EmitClock() error

	// PollForMIDI returns the number of pending input bytes without
	// blocking.
	PollForMIDI() int
	// GetMIDIEvent dequeues one pending inbound event. ok is false when
	// nothing is pending.
	GetMIDIEvent() (ev InEvent, ok bool)

	// Name returns the port's configured display name.
	Name() string
	// LastError returns the most recent backend diagnostic, or "" if
	// the port is healthy (spec §7: EBackend is reported per-port with
	// a backend-supplied diagnostic string).
	LastError() string
}

// ErrUnsupported is returned by InitOutSub/InitInSub on a backend that
// does not support virtual ports.
var ErrUnsupported = fmt.Errorf("port: operation not supported by this backend")
