package calc

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Feature: calc, Property: tempo round trip holds for all BPM in [2,600].
func TestPropertyTempoRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("encode/decode tempo bytes stays within 0.01 BPM", prop.ForAll(
		func(bpm float64) bool {
			cents := math.Round(bpm * 100)
			bpm = cents / 100
			if bpm < MinBPM {
				bpm = MinBPM
			}
			if bpm > MaxBPM {
				bpm = MaxBPM
			}
			got := DecodeTempoBytes(EncodeTempoBytes(bpm))
			return math.Abs(got-bpm) < 0.01
		},
		gen.Float64Range(MinBPM, MaxBPM),
	))

	properties.TestingRun(t)
}

// Feature: calc, Property: measures<->pulses round trip when bw divides 4*ppqn.
func TestPropertyPulseMeasureRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("measures_to_ticks then ticks_to_measures is identity", prop.ForAll(
		func(ppqn, bpb, measures int) bool {
			bw := 4 // 4*ppqn is always divisible by 4
			if ppqn < MinPPQN {
				ppqn = MinPPQN
			}
			if bpb < 1 {
				bpb = 1
			}
			if measures < 1 {
				measures = 1
			}
			pulses := MeasuresToPulses(ppqn, bpb, bw, measures)
			got := PulsesToMeasures(ppqn, bpb, bw, pulses)
			return got == measures
		},
		gen.IntRange(MinPPQN, 2000),
		gen.IntRange(1, 16),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
