package port

import (
	"sync"

	"github.com/loopforge/engine/internal/midi/wire"
)

// Loopback is a backend that echoes its own output straight back onto
// its input queue, for scheduler/bus integration tests that need to
// observe what the scheduler actually sent without a real port on the
// other end (spec §4.6 "added" detail).
type Loopback struct {
	mu      sync.Mutex
	name    string
	lastErr string
	in      *inboundQueue
	chunks  [][]byte // SysEx chunks actually sent, in order, for chunking assertions
	wire    [][]byte // encoded channel-message bytes actually sent, in order
}

// NewLoopback returns a Loopback backend with the given name and inbound
// queue capacity.
func NewLoopback(name string, inboundCapacity int) *Loopback {
	return &Loopback{name: name, in: newInboundQueue(inboundCapacity)}
}

func (l *Loopback) Name() string { return l.name }

func (l *Loopback) LastError() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *Loopback) InitOut(name string) error { l.mu.Lock(); l.name = name; l.mu.Unlock(); return nil }
func (l *Loopback) InitIn(name string) error  { l.mu.Lock(); l.name = name; l.mu.Unlock(); return nil }
func (l *Loopback) InitOutSub(string) error   { return nil }
func (l *Loopback) InitInSub(string) error    { return nil }
func (l *Loopback) DeinitIn() error           { return nil }

func (l *Loopback) SendEvent(kind wire.StatusKind, channel, data1, data2 uint8) error {
	wireBytes, err := wire.EncodeChannelMessage(kind, channel, data1, data2)
	if err != nil {
		l.mu.Lock()
		l.lastErr = err.Error()
		l.mu.Unlock()
		return err
	}
	l.mu.Lock()
	l.wire = append(l.wire, wireBytes)
	l.mu.Unlock()
	l.in.Push(InEvent{Kind: kind, Channel: channel, Data1: data1, Data2: data2})
	return nil
}

func (l *Loopback) SendSysEx(payload []byte) error {
	if err := wire.ValidateSysEx(payload); err != nil {
		l.mu.Lock()
		l.lastErr = err.Error()
		l.mu.Unlock()
		return err
	}
	for _, chunk := range wire.ChunkSysEx(payload, wire.DefaultChunkSize) {
		l.mu.Lock()
		l.chunks = append(l.chunks, append([]byte(nil), chunk...))
		l.mu.Unlock()
	}
	return nil
}

func (l *Loopback) Flush() error { return nil }

func (l *Loopback) EmitStart() error { return l.emitRealtime(wire.RealtimeStart) }
func (l *Loopback) EmitStop() error  { return l.emitRealtime(wire.RealtimeStop) }
func (l *Loopback) EmitClock() error { return l.emitRealtime(wire.RealtimeClock) }

func (l *Loopback) EmitContinueFrom(songPosition uint16) error {
	lsb, msb := wire.SongPositionBytes(songPosition)
	l.in.Push(InEvent{IsRealtime: true, Realtime: wire.SongPositionStatus, Data1: lsb, Data2: msb})
	l.in.Push(InEvent{IsRealtime: true, Realtime: wire.RealtimeContinue})
	return nil
}

func (l *Loopback) emitRealtime(b byte) error {
	l.in.Push(InEvent{IsRealtime: true, Realtime: b})
	return nil
}

func (l *Loopback) PollForMIDI() int { return l.in.Len() }
func (l *Loopback) GetMIDIEvent() (InEvent, bool) { return l.in.Pop() }

// SysExChunks returns the SysEx chunks actually sent through SendSysEx,
// in order, letting a test assert nothing was lost or reordered across
// chunk boundaries (spec §8 scenario 5).
func (l *Loopback) SysExChunks() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.chunks...)
}

// Overflow reports how many events were dropped due to a full inbound queue.
func (l *Loopback) Overflow() int { return l.in.Overflow() }

// WireLog returns the encoded channel-message bytes actually sent through
// SendEvent, in order.
func (l *Loopback) WireLog() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.wire...)
}
