package geo

// DefaultThresholdKm is the maximum distance at which a registered location
// counts as "here": 0.1 km (100 m).
const DefaultThresholdKm = 0.1

// Matcher selects the nearest of a set of candidate locations, subject to a
// distance threshold. The zero value is not useful; construct with
// [NewMatcher].
//
// Matcher is stateless apart from its threshold and is safe to call from any
// goroutine.
type Matcher struct {
	// ThresholdKm is the exclusive upper bound on the accepted distance.
	// A candidate at exactly ThresholdKm is rejected.
	ThresholdKm float64
}

// NewMatcher returns a Matcher with the given threshold in kilometres.
// A threshold <= 0 falls back to [DefaultThresholdKm].
func NewMatcher(thresholdKm float64) Matcher {
	if thresholdKm <= 0 {
		thresholdKm = DefaultThresholdKm
	}
	return Matcher{ThresholdKm: thresholdKm}
}

// Nearest returns the index of the candidate closest to current, and whether
// that candidate lies strictly within the threshold. When two candidates are
// equidistant the earlier one in the slice wins — the comparison only accepts
// strictly smaller distances, so enumeration order is the tie-break.
//
// The candidates slice is never modified. An empty slice yields (0, false).
func (m Matcher) Nearest(current Coordinate, candidates []Coordinate) (int, bool) {
	best := -1
	bestDist := 0.0

	for i, c := range candidates {
		d := Distance(current, c)
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}

	if best == -1 || bestDist >= m.ThresholdKm {
		return 0, false
	}
	return best, true
}
