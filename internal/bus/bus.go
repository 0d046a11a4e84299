// Package bus implements the master bus: the aggregate over every
// configured input and output port, per-port clock mode, and the
// recording demux that forwards inbound events to whichever pattern has
// recording armed (spec §4.3).
package bus

import (
	"fmt"
	"sync"

	"github.com/loopforge/engine/internal/midi/wire"
	"github.com/loopforge/engine/internal/port"
)

// Recorder is the minimal surface the bus needs to demux an inbound
// event to the pattern currently armed for recording.
type Recorder interface {
	StreamEvent(kind wire.StatusKind, channel, data1, data2 uint8, currentTick int64) error
}

// outputSlot pairs one output Port with its clock-emission mode.
type outputSlot struct {
	p         port.Port
	clockMode bool // emits MIDI clock/start/stop/continue when true
}

type inputSlot struct {
	p port.Port
}

// Bus owns the port arrays built once at init (spec §5: "Master bus port
// arrays: built once at init; subsequent port add/remove requires
// exclusive access and pauses the scheduler").
type Bus struct {
	mu      sync.RWMutex
	outputs []outputSlot
	inputs  []inputSlot

	ppqn int

	recording   bool
	recordSink  Recorder
	currentTick func() int64
}

// New returns an empty Bus at the given PPQN resolution.
func New(ppqn int) *Bus {
	return &Bus{ppqn: ppqn}
}

// AddOutput registers an output port with its clock-emission mode.
// Requires exclusive access; callers must ensure the scheduler is
// paused (spec §5).
func (b *Bus) AddOutput(p port.Port, clockMode bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs = append(b.outputs, outputSlot{p: p, clockMode: clockMode})
	return len(b.outputs) - 1
}

// AddInput registers an input port.
func (b *Bus) AddInput(p port.Port) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs = append(b.inputs, inputSlot{p: p})
	return len(b.inputs) - 1
}

// PortCount returns the number of output ports (or input ports, when
// isInput is true).
func (b *Bus) PortCount(isInput bool) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if isInput {
		return len(b.inputs)
	}
	return len(b.outputs)
}

// PortName returns the display name of port index among outputs (or
// inputs, when isInput is true).
func (b *Bus) PortName(index int, isInput bool) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if isInput {
		if index < 0 || index >= len(b.inputs) {
			return "", fmt.Errorf("bus: no such input port %d", index)
		}
		return b.inputs[index].p.Name(), nil
	}
	if index < 0 || index >= len(b.outputs) {
		return "", fmt.Errorf("bus: no such output port %d", index)
	}
	return b.outputs[index].p.Name(), nil
}

// SetRecording arms or disarms recording, directing inbound events to
// sink when armed. currentTick supplies the tick stamp for streamed
// events (spec §4.2 stream_event).
func (b *Bus) SetRecording(on bool, sink Recorder, currentTick func() int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recording = on
	b.recordSink = sink
	b.currentTick = currentTick
}

// PollForMIDI returns the total number of pending inbound bytes across
// every input port.
func (b *Bus) PollForMIDI() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, in := range b.inputs {
		total += in.p.PollForMIDI()
	}
	return total
}

// GetMIDIEvent dequeues the next pending inbound event from any input
// port, normalizes a zero-velocity note-on to a note-off, and, if
// recording is armed, forwards it to the recording pattern. Reports
// whether an event was delivered (spec §4.3).
func (b *Bus) GetMIDIEvent() (port.InEvent, bool, error) {
	b.mu.RLock()
	inputs := make([]port.Port, len(b.inputs))
	for i, in := range b.inputs {
		inputs[i] = in.p
	}
	recording := b.recording
	sink := b.recordSink
	tickFn := b.currentTick
	b.mu.RUnlock()

	for _, p := range inputs {
		ev, ok := p.GetMIDIEvent()
		if !ok {
			continue
		}
		if ev.Kind == wire.NoteOn && ev.Data2 == 0 {
			ev.Kind = wire.NoteOff
		}
		if recording && sink != nil && !ev.IsRealtime {
			tick := int64(0)
			if tickFn != nil {
				tick = tickFn()
			}
			_ = sink.StreamEvent(ev.Kind, ev.Channel, ev.Data1, ev.Data2, tick)
		}
		return ev, true, nil
	}
	return port.InEvent{}, false, nil
}

// Play delivers a non-SysEx event to output busIdx, stamping the status
// with channel (spec §4.3 play(bus, event, channel)).
func (b *Bus) Play(busIdx int, kind wire.StatusKind, channel, data1, data2 uint8) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if busIdx < 0 || busIdx >= len(b.outputs) {
		return fmt.Errorf("bus: no such output port %d", busIdx)
	}
	return b.outputs[busIdx].p.SendEvent(kind, channel, data1, data2)
}

// SendEvent implements pattern.OutputSink against output 0, letting a
// Bus stand in directly as a pattern's out_port when there is exactly
// one output bus in play.
func (b *Bus) SendEvent(kind wire.StatusKind, channel, data1, data2 uint8) error {
	return b.Play(0, kind, channel, data1, data2)
}

// SendSysEx implements pattern.OutputSink against output 0.
func (b *Bus) SendSysEx(payload []byte) error {
	return b.Sysex(0, payload)
}

// Sysex sends payload to output busIdx (spec §4.3). The bus passes the
// whole payload to the port's SendSysEx; chunking and the inter-chunk
// pauses that keep slow receivers from overflowing are done by the port.
func (b *Bus) Sysex(busIdx int, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if busIdx < 0 || busIdx >= len(b.outputs) {
		return fmt.Errorf("bus: no such output port %d", busIdx)
	}
	return b.outputs[busIdx].p.SendSysEx(payload)
}

// Start broadcasts MIDI Start to every clocking output.
func (b *Bus) Start() {
	b.forEachClockingOutput(func(p port.Port) error { return p.EmitStart() })
}

// Stop broadcasts MIDI Stop to every clocking output.
func (b *Bus) Stop() {
	b.forEachClockingOutput(func(p port.Port) error { return p.EmitStop() })
}

// ContinueFrom broadcasts a Song-Position-Pointer for tick followed by
// MIDI Continue to every clocking output (spec §4.3, §6).
func (b *Bus) ContinueFrom(tick int64) {
	sp := songPositionFromTick(tick, b.ppqn)
	b.forEachClockingOutput(func(p port.Port) error { return p.EmitContinueFrom(sp) })
}

func songPositionFromTick(tick int64, ppqn int) uint16 {
	perSixteenth := int64(ppqn) / 4
	if perSixteenth <= 0 {
		return 0
	}
	return uint16(tick/perSixteenth) & 0x3FFF
}

// EmitClock broadcasts a MIDI Clock byte to every clocking output. The
// scheduler calls this once per PPQN/24 tick boundary crossed (spec
// §4.3, §4.4).
func (b *Bus) EmitClock() {
	b.forEachClockingOutput(func(p port.Port) error { return p.EmitClock() })
}

func (b *Bus) forEachClockingOutput(fn func(port.Port) error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, out := range b.outputs {
		if !out.clockMode {
			continue
		}
		_ = fn(out.p) // spec §4.4: a backend send error is a soft, per-port failure
	}
}

// ErrorStrings aggregates the latest diagnostic from every port that has
// one, across both inputs and outputs (spec §7: "the master bus
// aggregates error strings across ports").
func (b *Bus) ErrorStrings() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string)
	for _, o := range b.outputs {
		if e := o.p.LastError(); e != "" {
			out[o.p.Name()] = e
		}
	}
	for _, in := range b.inputs {
		if e := in.p.LastError(); e != "" {
			out[in.p.Name()] = e
		}
	}
	return out
}
