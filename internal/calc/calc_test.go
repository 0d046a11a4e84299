package calc

import (
	"math"
	"testing"
)

func TestTempoRoundTrip(t *testing.T) {
	cases := []float64{2, 60, 120, 120.5, 240, 303.03, 600}
	for _, bpm := range cases {
		bytes := EncodeTempoBytes(bpm)
		got := DecodeTempoBytes(bytes)
		if math.Abs(got-bpm) > 0.01 {
			t.Errorf("round trip for %.2f BPM got %.4f, diff %.4f", bpm, got, math.Abs(got-bpm))
		}
	}
}

func TestEncodeTempoBytesKnownValue(t *testing.T) {
	// 120 BPM -> 500000 us -> 0x07A120
	got := EncodeTempoBytes(120)
	want := [3]byte{0x07, 0xA1, 0x20}
	if got != want {
		t.Errorf("EncodeTempoBytes(120) = % X, want % X", got, want)
	}
}

func TestMeasuresToPulses(t *testing.T) {
	// One 4/4 bar at PPQN=192 is 768 pulses.
	if got := MeasuresToPulses(192, 4, 4, 1); got != 768 {
		t.Errorf("MeasuresToPulses(192,4,4,1) = %d, want 768", got)
	}
	// One 6/8 bar at PPQN=192 is 4*192*6/8 = 576.
	if got := MeasuresToPulses(192, 6, 8, 1); got != 576 {
		t.Errorf("MeasuresToPulses(192,6,8,1) = %d, want 576", got)
	}
}

func TestPulsesToMeasuresRoundTrip(t *testing.T) {
	type cfg struct{ ppqn, bpb, bw, measures int }
	cases := []cfg{
		{192, 4, 4, 1}, {192, 4, 4, 4}, {96, 3, 4, 2}, {480, 7, 8, 3},
	}
	for _, c := range cases {
		pulses := MeasuresToPulses(c.ppqn, c.bpb, c.bw, c.measures)
		got := PulsesToMeasures(c.ppqn, c.bpb, c.bw, pulses)
		// bw divides 4*ppqn evenly for all cases above.
		if got != c.measures {
			t.Errorf("%+v: PulsesToMeasures round trip = %d, want %d", c, got, c.measures)
		}
	}
}

func TestPulsesPerClock(t *testing.T) {
	if got := PulsesPerClock(192); got != 8 {
		t.Errorf("PulsesPerClock(192) = %d, want 8", got)
	}
	if got := PulsesPerClock(96); got != 4 {
		t.Errorf("PulsesPerClock(96) = %d, want 4", got)
	}
}

func TestSongPositionFromPulses(t *testing.T) {
	// PPQN=192 -> 48 pulses per sixteenth. One bar (768 pulses) -> 16 sixteenths.
	if got := SongPositionFromPulses(768, 192); got != 16 {
		t.Errorf("SongPositionFromPulses(768,192) = %d, want 16", got)
	}
}

func TestMicrosToPulsesAndBack(t *testing.T) {
	ppqn := 192
	bpm := 120.0
	pulses := int64(96) // half a beat
	micros := PulsesToMicros(pulses, bpm, ppqn)
	if math.Abs(micros-250000) > 1 {
		t.Errorf("PulsesToMicros(96,120,192) = %.1f, want ~250000", micros)
	}
	back := MicrosToPulses(micros, bpm, ppqn)
	if back != pulses {
		t.Errorf("MicrosToPulses round trip = %d, want %d", back, pulses)
	}
}

func TestValidateTimeSignature(t *testing.T) {
	if err := ValidateTimeSignature(4, 4); err != nil {
		t.Errorf("4/4 should be valid: %v", err)
	}
	if err := ValidateTimeSignature(0, 4); err == nil {
		t.Error("bpb=0 should be invalid")
	}
	if err := ValidateTimeSignature(4, 3); err == nil {
		t.Error("bw=3 (not power of two) should be invalid")
	}
	if err := ValidateTimeSignature(4, 32); err == nil {
		t.Error("bw=32 (out of range) should be invalid")
	}
}

func TestRescalePulses(t *testing.T) {
	if got := RescalePulses(192, 192, 384); got != 384 {
		t.Errorf("RescalePulses(192,192,384) = %d, want 384", got)
	}
	if got := RescalePulses(96, 192, 96); got != 48 {
		t.Errorf("RescalePulses(96,192,96) = %d, want 48", got)
	}
}
