// Package engine wires the layered core (arena, bus, scheduler) into the
// single object the outer surfaces, the introspection API, the TUI, and
// the enginectl CLI, drive. None of those outer surfaces touch
// internal/scheduler directly, and what used to be global mutable state is
// scoped to an *Engine passed by reference. They do use internal/pattern
// types (Config, HumanizeProfile, *Pattern from Engine.Pattern), and the
// API reaches the output bus through Engine.Bus.
package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/loopforge/engine/internal/arena"
	"github.com/loopforge/engine/internal/bus"
	"github.com/loopforge/engine/internal/lfo"
	"github.com/loopforge/engine/internal/pattern"
	"github.com/loopforge/engine/internal/port"
	"github.com/loopforge/engine/internal/scheduler"
)

// Config carries construction-time engine parameters, in the same
// constructor-with-defaults shape as the rest of this package's New funcs.
type Config struct {
	PPQN int
	BPM  float64
}

// Engine is the top-level object an operator drives: a pattern arena, a
// master bus with at least one output, and a scheduler walking every
// pattern currently added as a track. It owns everything the scheduler
// and bus need and outlives neither (spec §3 "Lifetimes").
type Engine struct {
	cfg       Config
	patterns  *arena.Arena[*pattern.Pattern]
	bus       *bus.Bus
	tempo     *scheduler.TempoMap
	scheduler *scheduler.Scheduler
	rng       *rand.Rand
}

// New constructs an Engine at the given config, defaulting PPQN to 192 and
// BPM to 120 when unset, with a single Dummy output port already wired on
// bus 0 in clocking mode so the engine is runnable with no further setup.
func New(cfg Config) *Engine {
	if cfg.PPQN <= 0 {
		cfg.PPQN = 192
	}
	if cfg.BPM <= 0 {
		cfg.BPM = 120
	}

	b := bus.New(cfg.PPQN)
	b.AddOutput(port.NewDummy("default-out", 256), true)

	tm := scheduler.NewTempoMap(cfg.BPM)
	sched := scheduler.New(b, cfg.PPQN, tm)

	return &Engine{
		cfg:       cfg,
		patterns:  arena.New[*pattern.Pattern](),
		bus:       b,
		tempo:     tm,
		scheduler: sched,
		rng:       rand.New(rand.NewSource(1)),
	}
}

// PPQN returns the engine-wide pulses-per-quarter-note resolution.
func (e *Engine) PPQN() int { return e.cfg.PPQN }

// Bus exposes the master bus for callers (the API layer's port-listing
// endpoints) that need read-only introspection beyond what Engine wraps.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// AddOutput registers an additional output port on the bus, returning its
// index for use as a pattern's Bus field.
func (e *Engine) AddOutput(p port.Port, clockMode bool) int {
	return e.bus.AddOutput(p, clockMode)
}

// AddInput registers an additional input port on the bus.
func (e *Engine) AddInput(p port.Port) int {
	return e.bus.AddInput(p)
}

// NewPattern creates a pattern under cfg (defaulting PPQN to the engine's
// own), adds it to the arena and to the scheduler as a track routed to
// cfg.Bus, and returns its stable handle.
func (e *Engine) NewPattern(cfg pattern.Config) (arena.Handle, error) {
	if cfg.PPQN <= 0 {
		cfg.PPQN = e.cfg.PPQN
	}
	p, err := pattern.New(cfg)
	if err != nil {
		return 0, err
	}
	h := e.patterns.Add(p)
	e.scheduler.AddTrack(p, cfg.Bus)
	return h, nil
}

// Pattern dereferences a handle, returning an error for a stale or unknown
// one (spec §9's handle-validity-checked-on-dereference design).
func (e *Engine) Pattern(h arena.Handle) (*pattern.Pattern, error) {
	return e.patterns.Get(h)
}

// Patterns returns every live pattern handle, in no particular order.
func (e *Engine) Patterns() []arena.Handle {
	return e.patterns.Handles()
}

// PatternCount reports how many patterns the engine currently holds.
func (e *Engine) PatternCount() int { return e.patterns.Len() }

// Start begins playback at startTick (0 for a fresh start, nonzero to
// resume/continue), using now as the wall-clock reference.
func (e *Engine) Start(startTick int64) {
	e.scheduler.Start(time.Now(), startTick)
}

// Stop requests the scheduler's stop sequence (all-notes-off flush plus
// MIDI Stop); it takes effect on the next Tick.
func (e *Engine) Stop() {
	e.scheduler.RequestStop()
}

// Running reports whether the scheduler is between a Start and its
// matching stop-flush.
func (e *Engine) Running() bool { return e.scheduler.Running() }

// CurrentTick returns the scheduler's current song position in pulses.
func (e *Engine) CurrentTick() int64 { return e.scheduler.CurrentTick() }

// Tick drives one scheduler step using the current wall-clock time. The
// CLI's run loop and the TUI's periodic tick message both call this;
// together with Start, which takes its wall-clock reference from
// time.Now, it is where wall-clock time enters the engine (spec §4.4).
func (e *Engine) Tick() {
	e.scheduler.Step(time.Now())
}

// SetTempo records a tempo change at the given song tick, taking effect
// from that point in the tempo map the scheduler reads (spec §4.4
// scenario 3: "tempo change mid-play").
func (e *Engine) SetTempo(tick int64, bpm float64) {
	e.tempo.AddChange(tick, bpm)
}

// BPMAt returns the tempo map's active BPM at the given tick.
func (e *Engine) BPMAt(tick int64) float64 { return e.tempo.BPMAt(tick) }

// Play, SetMute, QueueOn, and QueueOff forward to the named pattern's
// play-state transitions (spec §4.2's state table), resolving the handle
// first.
func (e *Engine) Play(h arena.Handle) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	p.RequestPlay()
	return nil
}

func (e *Engine) SetMute(h arena.Handle, muted bool) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	p.SetMute(muted)
	return nil
}

func (e *Engine) QueueOn(h arena.Handle) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	p.RequestQueueOn()
	return nil
}

func (e *Engine) QueueOff(h arena.Handle) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	p.RequestQueueOff()
	return nil
}

// Transpose, Reverse, MultiplyPattern, and Randomize forward to the named
// pattern's bulk transformations (spec §4.2).
func (e *Engine) Transpose(h arena.Handle, semitones int) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	p.Transpose(semitones)
	return nil
}

func (e *Engine) Reverse(h arena.Handle) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	p.Reverse()
	return nil
}

func (e *Engine) MultiplyPattern(h arena.Handle, factor int) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	return p.MultiplyPattern(factor)
}

func (e *Engine) Randomize(h arena.Handle, rng int) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	p.Randomize(rng, e.rng)
	return nil
}

// Humanize forwards to the named pattern's timing/velocity jitter bulk
// transformation.
func (e *Engine) Humanize(h arena.Handle, profile pattern.HumanizeProfile) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	pattern.Humanize(p, profile, e.rng)
	return nil
}

// ApplyLFO forwards to the LFO transformer (spec §4.5) against the named
// pattern.
func (e *Engine) ApplyLFO(h arena.Handle, params lfo.Params) error {
	p, err := e.patterns.Get(h)
	if err != nil {
		return err
	}
	lfo.Apply(p, params)
	return nil
}

// Undo and Redo forward to the named pattern's snapshot history.
func (e *Engine) Undo(h arena.Handle) (bool, error) {
	p, err := e.patterns.Get(h)
	if err != nil {
		return false, err
	}
	return p.PopUndo(), nil
}

func (e *Engine) Redo(h arena.Handle) (bool, error) {
	p, err := e.patterns.Get(h)
	if err != nil {
		return false, err
	}
	return p.PopRedo(), nil
}

// Errors aggregates per-port diagnostic strings across the whole bus
// (spec §7).
func (e *Engine) Errors() map[string]string { return e.bus.ErrorStrings() }

// Summary is a flat, API/TUI-friendly snapshot of one pattern's state.
type Summary struct {
	Handle  arena.Handle
	Name    string
	Channel uint8
	Bus     int
	Length  int64
	State   pattern.PlayState
}

// PatternSummary builds a Summary for h.
func (e *Engine) PatternSummary(h arena.Handle) (Summary, error) {
	p, err := e.patterns.Get(h)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Handle:  h,
		Name:    p.Name(),
		Channel: p.Channel(),
		Bus:     p.Bus(),
		Length:  p.Length(),
		State:   p.State(),
	}, nil
}

// StateName renders a PlayState the way a status endpoint or TUI row
// would display it.
func StateName(s pattern.PlayState) string {
	switch s {
	case pattern.Stopped:
		return "stopped"
	case pattern.Playing:
		return "playing"
	case pattern.Muted:
		return "muted"
	case pattern.QueuedOn:
		return "queued-on"
	case pattern.QueuedOff:
		return "queued-off"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}
