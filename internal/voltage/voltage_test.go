package voltage

import "testing"

func TestTableRangeAndMonotonic(t *testing.T) {
	tbl := New()
	for vid := 0; vid < 256; vid++ {
		if tbl[vid] < 0.6 || tbl[vid] > 0.92 {
			t.Fatalf("vid %d: voltage %f out of [0.6, 0.92]", vid, tbl[vid])
		}
		if vid > 0 && tbl[vid] >= tbl[vid-1] {
			t.Fatalf("table not strictly decreasing at vid %d: %f >= %f", vid, tbl[vid], tbl[vid-1])
		}
	}
}

func TestClosestVIDEndpoints(t *testing.T) {
	tbl := New()
	if got := tbl.ClosestVID(tbl[0xFF]); got != 0xFF {
		t.Errorf("ClosestVID(table[0xFF]) = %d, want 0xFF", got)
	}
	if got := tbl.ClosestVID(tbl[0]); got != 0 {
		t.Errorf("ClosestVID(table[0]) = %d, want 0", got)
	}
}

func TestClosestVIDIsNearestMatch(t *testing.T) {
	tbl := New()
	lo := tbl[255]
	hi := tbl[0]
	for v := lo; v <= hi; v += (hi - lo) / 500 {
		vid := tbl.ClosestVID(v)
		best := 0
		bestDelta := abs(tbl[0] - v)
		for i := 1; i < 256; i++ {
			d := abs(tbl[i] - v)
			if d < bestDelta {
				bestDelta = d
				best = i
			}
		}
		if abs(tbl[vid]-v) > bestDelta+1e-9 {
			t.Fatalf("ClosestVID(%f) = %d (delta %f), but vid %d has smaller delta %f", v, vid, abs(tbl[vid]-v), best, bestDelta)
		}
	}
}

func TestClosestVIDClampsOutOfRange(t *testing.T) {
	tbl := New()
	if got := tbl.ClosestVID(tbl[0] + 1); got != 0 {
		t.Errorf("above-range request should clamp to VID 0, got %d", got)
	}
	if got := tbl.ClosestVID(tbl[255] - 1); got != 255 {
		t.Errorf("below-range request should clamp to VID 255, got %d", got)
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
