package geo

import (
	"math"
	"testing"
)

func TestDistanceZero(t *testing.T) {
	points := [][2]float64{
		{0, 0},
		{51.5074, -0.1278},
		{-33.8688, 151.2093},
		{89.9, 179.9},
	}
	for _, p := range points {
		if d := Distance(p[0], p[1], p[0], p[1]); d != 0 {
			t.Errorf("Distance(%v, %v, same) = %v, want 0", p[0], p[1], d)
		}
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := [2]float64{12.9716, 77.5946}
	b := [2]float64{13.0827, 80.2707}
	ab := Distance(a[0], a[1], b[0], b[1])
	ba := Distance(b[0], b[1], a[0], a[1])
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("Distance not symmetric: %v vs %v", ab, ba)
	}
}

func TestDistanceKnownValues(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{
			// One millidegree of latitude is ~111 m.
			name: "0.001 degree latitude",
			lat1: 0, lon1: 0, lat2: 0.001, lon2: 0,
			want:      111.2,
			tolerance: 1.0,
		},
		{
			name: "0.0001 degree longitude at equator",
			lat1: 0, lon1: 0, lat2: 0, lon2: 0.0001,
			want:      11.1,
			tolerance: 0.2,
		},
		{
			name: "one degree latitude",
			lat1: 10, lon1: 20, lat2: 11, lon2: 20,
			want:      111195,
			tolerance: 50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, tt.tolerance)
			}
		})
	}
}
