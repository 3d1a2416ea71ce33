package geo_test

import (
	"math"
	"testing"

	"github.com/skawahara/agrivoice/pkg/geo"
)

// Reference points around a farm in Niigata. Offsets were computed with the
// same great-circle formula at lat 37.9: 0.001° of latitude is ~111 m, 0.001°
// of longitude ~88 m.
var (
	farmhouse = geo.Coordinate{Lat: 37.9161, Lng: 139.0364}
	paddy100m = geo.Coordinate{Lat: 37.9170, Lng: 139.0364} // ~100 m north
	paddy1km  = geo.Coordinate{Lat: 37.9251, Lng: 139.0364} // ~1 km north
)

func TestDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		a, b   geo.Coordinate
		wantKm float64
		tolKm  float64
	}{
		{
			name:   "same point",
			a:      farmhouse,
			b:      farmhouse,
			wantKm: 0,
			tolKm:  1e-9,
		},
		{
			name:   "100 metres north",
			a:      farmhouse,
			b:      paddy100m,
			wantKm: 0.1,
			tolKm:  0.002,
		},
		{
			name:   "1 kilometre north",
			a:      farmhouse,
			b:      paddy1km,
			wantKm: 1.0,
			tolKm:  0.005,
		},
		{
			name:   "tokyo to osaka",
			a:      geo.Coordinate{Lat: 35.6762, Lng: 139.6503},
			b:      geo.Coordinate{Lat: 34.6937, Lng: 135.5023},
			wantKm: 397,
			tolKm:  5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := geo.Distance(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolKm {
				t.Errorf("Distance() = %.4f km, want %.4f ± %.4f", got, tt.wantKm, tt.tolKm)
			}

			// Distance is symmetric.
			if rev := geo.Distance(tt.b, tt.a); rev != got {
				t.Errorf("Distance(b, a) = %.6f, want %.6f", rev, got)
			}
		})
	}
}

func TestCoordinate_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		c       geo.Coordinate
		wantErr bool
	}{
		{name: "valid", c: farmhouse},
		{name: "poles are valid", c: geo.Coordinate{Lat: 90, Lng: -180}},
		{name: "latitude too high", c: geo.Coordinate{Lat: 90.1}, wantErr: true},
		{name: "latitude too low", c: geo.Coordinate{Lat: -91}, wantErr: true},
		{name: "longitude too high", c: geo.Coordinate{Lng: 180.5}, wantErr: true},
		{name: "negative accuracy", c: geo.Coordinate{AccuracyMeters: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatcher_Nearest(t *testing.T) {
	t.Parallel()

	m := geo.NewMatcher(geo.DefaultThresholdKm)

	t.Run("within threshold", func(t *testing.T) {
		t.Parallel()

		// ~50 m north of the farmhouse.
		near := geo.Coordinate{Lat: 37.91655, Lng: 139.0364}
		idx, ok := m.Nearest(farmhouse, []geo.Coordinate{paddy1km, near})
		if !ok || idx != 1 {
			t.Errorf("Nearest() = (%d, %v), want (1, true)", idx, ok)
		}
	})

	t.Run("beyond threshold is rejected", func(t *testing.T) {
		t.Parallel()

		// ~150 m north: closest candidate, but outside the 100 m threshold.
		far := geo.Coordinate{Lat: 37.91745, Lng: 139.0364}
		if idx, ok := m.Nearest(farmhouse, []geo.Coordinate{far}); ok {
			t.Errorf("Nearest() = (%d, true), want no match", idx)
		}
	})

	t.Run("exactly at threshold is rejected", func(t *testing.T) {
		t.Parallel()

		// A candidate whose distance equals the threshold must not match;
		// the comparison is strict.
		self := geo.Matcher{ThresholdKm: 0}
		if idx, ok := self.Nearest(farmhouse, []geo.Coordinate{farmhouse}); ok {
			t.Errorf("Nearest() with zero threshold = (%d, true), want no match", idx)
		}
	})

	t.Run("tie keeps the first candidate", func(t *testing.T) {
		t.Parallel()

		idx, ok := m.Nearest(farmhouse, []geo.Coordinate{farmhouse, farmhouse})
		if !ok || idx != 0 {
			t.Errorf("Nearest() = (%d, %v), want (0, true)", idx, ok)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		t.Parallel()

		if idx, ok := m.Nearest(farmhouse, nil); ok {
			t.Errorf("Nearest() = (%d, true), want no match", idx)
		}
	})
}
