// Package voltage builds the 256-entry VID-to-volts table used by the
// VRM-programming sequences in internal/pmic (spec §4.2).
package voltage

import "math"

// Table is a precomputed VID(0..255) -> output-volts map, monotonically
// decreasing in VID.
type Table [256]float64

// New fills a Table using V(VID) = 0.6 + 2.661 / (20 - 2048/(VID+153.6)).
func New() Table {
	var t Table
	for vid := 0; vid < 256; vid++ {
		t[vid] = 0.6 + 2.661/(20-2048/(float64(vid)+153.6))
	}
	return t
}

// ClosestVID returns the VID whose stored voltage is the closest
// representable match to v. Requests outside the table's range are
// clamped to the nearest end first, then located by halving binary
// search starting at index 0x80 with an initial half-step of 0x40,
// halved each round. Direction: table[idx] < v decreases idx (the table
// is decreasing in VID, so a higher requested voltage wants a smaller
// VID); table[idx] > v increases idx; equality returns immediately.
// The search ends within one index of the match, so the final index and
// its two neighbours are compared and the nearest is returned (the lower
// VID on a tie).
func (t Table) ClosestVID(v float64) int {
	if v >= t[0] {
		return 0
	}
	if v <= t[255] {
		return 255
	}

	idx := 0x80
	step := 0x40
	for step > 0 {
		switch {
		case t[idx] == v:
			return idx
		case v > t[idx]:
			idx -= step
		default:
			idx += step
		}
		step /= 2
	}

	best := idx
	for c := idx - 1; c <= idx+1; c++ {
		if c < 0 || c > 255 {
			continue
		}
		d, bd := math.Abs(t[c]-v), math.Abs(t[best]-v)
		if d < bd || (d == bd && c < best) {
			best = c
		}
	}
	return best
}
