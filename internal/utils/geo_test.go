package utils

import (
	"math"
	"testing"
)

func TestHaversineMetersZeroDistance(t *testing.T) {
	d := HaversineMeters(52.52, 13.405, 52.52, 13.405)
	if d != 0 {
		t.Fatalf("same point distance: want=0 got=%f", d)
	}
}

func TestHaversineMetersKnownDistance(t *testing.T) {
	// One degree of latitude is roughly 111.2 km.
	d := HaversineMeters(0, 0, 1, 0)
	if d < 110000 || d > 112500 {
		t.Fatalf("one degree latitude: got=%f", d)
	}
}

func TestHaversineMetersShortDistance(t *testing.T) {
	// ~0.0001 deg latitude is about 11 m, the fraud clustering window.
	d := HaversineMeters(52.5200, 13.4050, 52.5201, 13.4050)
	if d < 10 || d > 12.5 {
		t.Fatalf("0.0001 degree latitude: got=%f", d)
	}
}

func TestHammingDistance(t *testing.T) {
	if d := HammingDistance("0000", "0000"); d != 0 {
		t.Fatalf("identical: want=0 got=%d", d)
	}
	if d := HammingDistance("0000", "1111"); d != 4 {
		t.Fatalf("all differ: want=4 got=%d", d)
	}
	if d := HammingDistance("0110", "0101"); d != 2 {
		t.Fatalf("two differ: want=2 got=%d", d)
	}
}

func TestHammingDistanceLengthMismatch(t *testing.T) {
	if d := HammingDistance("000", "0000"); d != math.MaxInt {
		t.Fatalf("length mismatch: want=MaxInt got=%d", d)
	}
}

func TestStdDev(t *testing.T) {
	if sd := StdDev(nil); sd != 0 {
		t.Fatalf("empty: want=0 got=%f", sd)
	}
	if sd := StdDev([]float64{0.5, 0.5, 0.5}); sd != 0 {
		t.Fatalf("constant: want=0 got=%f", sd)
	}
	// Population std dev of {2,4,4,4,5,5,7,9} is exactly 2.
	sd := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(sd-2.0) > 1e-9 {
		t.Fatalf("known set: want=2 got=%f", sd)
	}
}

func TestClamp01(t *testing.T) {
	if v := Clamp01(-0.5); v != 0 {
		t.Fatalf("below: want=0 got=%f", v)
	}
	if v := Clamp01(1.5); v != 1 {
		t.Fatalf("above: want=1 got=%f", v)
	}
	if v := Clamp01(0.42); v != 0.42 {
		t.Fatalf("inside: want=0.42 got=%f", v)
	}
}
