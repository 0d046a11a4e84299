package scheduler

import "sort"

// tempoPoint is one tempo-map entry: the pulse at which MicrosPerQuarter
// becomes the active tempo.
type tempoPoint struct {
	Tick             int64
	MicrosPerQuarter float64
}

// TempoMap is a sorted list of tempo changes in song pulses, used to
// convert elapsed wall-clock time to a target tick across mid-song tempo
// changes without drift (spec §4.4 scenario 3). Grounded in the
// tempo-segment traversal of a wall-clock tick generator elsewhere in
// the pack, adapted from float seconds to integer microseconds and from
// a fixed ppq to the engine's configurable PPQN.
type TempoMap struct {
	points []tempoPoint
}

// NewTempoMap returns a tempo map with a single entry at tick 0 for the
// given initial BPM.
func NewTempoMap(initialBPM float64) *TempoMap {
	return &TempoMap{points: []tempoPoint{{Tick: 0, MicrosPerQuarter: tempoUsFromBPM(initialBPM)}}}
}

func tempoUsFromBPM(bpm float64) float64 {
	if bpm <= 0 {
		return 500000 // 120 BPM fallback
	}
	return 60000000.0 / bpm
}

// AddChange inserts a tempo change at tick, replacing any existing entry
// at the same tick and keeping the map sorted.
func (tm *TempoMap) AddChange(tick int64, bpm float64) {
	us := tempoUsFromBPM(bpm)
	idx := sort.Search(len(tm.points), func(i int) bool { return tm.points[i].Tick >= tick })
	if idx < len(tm.points) && tm.points[idx].Tick == tick {
		tm.points[idx].MicrosPerQuarter = us
		return
	}
	tm.points = append(tm.points, tempoPoint{})
	copy(tm.points[idx+1:], tm.points[idx:])
	tm.points[idx] = tempoPoint{Tick: tick, MicrosPerQuarter: us}
}

// BPMAt returns the active BPM at the given tick.
func (tm *TempoMap) BPMAt(tick int64) float64 {
	us := tm.points[0].MicrosPerQuarter
	for _, p := range tm.points {
		if p.Tick > tick {
			break
		}
		us = p.MicrosPerQuarter
	}
	return 60000000.0 / us
}

// TickFromElapsedMicros converts elapsedUs of wall-clock time since the
// song started into a target tick, walking the tempo map segment by
// segment so a mid-song tempo change is honored without resynchronizing
// (spec §4.4): for each segment before the one elapsedUs falls in,
// accumulate its wall-clock duration; within the containing segment,
// convert the remaining wall time to pulses directly.
func (tm *TempoMap) TickFromElapsedMicros(elapsedUs float64, ppqn int) int64 {
	if len(tm.points) == 0 || ppqn <= 0 {
		return 0
	}
	elapsed := 0.0
	for i, p := range tm.points {
		pulsesPerUs := float64(ppqn) / p.MicrosPerQuarter

		var segmentTicks int64
		hasNext := i+1 < len(tm.points)
		if hasNext {
			segmentTicks = tm.points[i+1].Tick - p.Tick
		}
		segmentDuration := float64(segmentTicks) / pulsesPerUs

		if !hasNext || elapsed+segmentDuration > elapsedUs {
			remaining := elapsedUs - elapsed
			return p.Tick + int64(remaining*pulsesPerUs)
		}
		elapsed += segmentDuration
	}
	return tm.points[len(tm.points)-1].Tick
}
