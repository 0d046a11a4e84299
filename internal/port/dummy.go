package port

import (
	"sync"

	"github.com/loopforge/engine/internal/midi/wire"
)

// SentEvent is one record in a Dummy backend's output log.
type SentEvent struct {
	Kind         wire.StatusKind
	Channel      uint8
	Data1, Data2 uint8
	SysEx        []byte // non-nil for a logged SysEx send
	Realtime     byte   // non-zero for a logged realtime byte
	Wire         []byte // the encoded channel-message bytes, for non-SysEx/realtime entries
}

// Dummy is a no-op backend: every send is appended to an in-memory log
// instead of reaching any hardware, and inbound events are whatever the
// test fed it with Feed. It is the "dummy no-op backend used for tests"
// spec §4.6 calls out by name.
type Dummy struct {
	mu      sync.Mutex
	name    string
	lastErr string
	subOpen bool
	in      *inboundQueue
	Sent    []SentEvent
	flushed int
}

// NewDummy returns a Dummy backend with the given display name and
// inbound queue capacity.
func NewDummy(name string, inboundCapacity int) *Dummy {
	return &Dummy{name: name, in: newInboundQueue(inboundCapacity)}
}

func (d *Dummy) Name() string { return d.name }

func (d *Dummy) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func (d *Dummy) InitOut(name string) error { d.mu.Lock(); d.name = name; d.mu.Unlock(); return nil }
func (d *Dummy) InitIn(name string) error  { d.mu.Lock(); d.name = name; d.mu.Unlock(); return nil }

func (d *Dummy) InitOutSub(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subOpen = true
	return nil
}

func (d *Dummy) InitInSub(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subOpen = true
	return nil
}

func (d *Dummy) DeinitIn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subOpen = false
	return nil
}

func (d *Dummy) SendEvent(kind wire.StatusKind, channel, data1, data2 uint8) error {
	wireBytes, err := wire.EncodeChannelMessage(kind, channel, data1, data2)
	if err != nil {
		d.mu.Lock()
		d.lastErr = err.Error()
		d.mu.Unlock()
		return err
	}
	d.mu.Lock()
	d.Sent = append(d.Sent, SentEvent{Kind: kind, Channel: channel, Data1: data1, Data2: data2, Wire: wireBytes})
	d.mu.Unlock()
	return nil
}

func (d *Dummy) SendSysEx(payload []byte) error {
	if err := wire.ValidateSysEx(payload); err != nil {
		d.mu.Lock()
		d.lastErr = err.Error()
		d.mu.Unlock()
		return err
	}
	d.mu.Lock()
	d.Sent = append(d.Sent, SentEvent{SysEx: append([]byte(nil), payload...)})
	d.mu.Unlock()
	return nil
}

func (d *Dummy) Flush() error {
	d.mu.Lock()
	d.flushed++
	d.mu.Unlock()
	return nil
}

func (d *Dummy) EmitStart() error { return d.emitRealtime(wire.RealtimeStart) }
func (d *Dummy) EmitStop() error  { return d.emitRealtime(wire.RealtimeStop) }
func (d *Dummy) EmitClock() error { return d.emitRealtime(wire.RealtimeClock) }

func (d *Dummy) EmitContinueFrom(songPosition uint16) error {
	lsb, msb := wire.SongPositionBytes(songPosition)
	d.mu.Lock()
	d.Sent = append(d.Sent, SentEvent{Realtime: wire.SongPositionStatus, Data1: lsb, Data2: msb})
	d.Sent = append(d.Sent, SentEvent{Realtime: wire.RealtimeContinue})
	d.mu.Unlock()
	return nil
}

func (d *Dummy) emitRealtime(b byte) error {
	d.mu.Lock()
	d.Sent = append(d.Sent, SentEvent{Realtime: b})
	d.mu.Unlock()
	return nil
}

func (d *Dummy) PollForMIDI() int { return d.in.Len() }

func (d *Dummy) GetMIDIEvent() (InEvent, bool) { return d.in.Pop() }

// Feed pushes a canned inbound event, as if a hardware callback had
// delivered it. Reports false if the bounded inbound queue is full
// (spec §7 EOverflow).
func (d *Dummy) Feed(ev InEvent) bool { return d.in.Push(ev) }

// Overflow reports how many fed events were dropped due to a full
// inbound queue.
func (d *Dummy) Overflow() int { return d.in.Overflow() }
