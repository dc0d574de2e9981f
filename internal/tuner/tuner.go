// Package tuner defines the contract the driver core calls into; the
// search policy itself is out of scope (spec §1, §2) and owned by an
// external auto-tuner. This package only carries the interface plus a
// no-op default used when the miner is given no tuner.
package tuner

// Tuner is called once per search-loop poll with the latest target-check
// delta, and may override the core flag fields read by the search loop.
type Tuner interface {
	// Tune folds in one poll's hash-rate delta.
	Tune(delta uint64)
	// Settings returns the tuner's current override, or ok == false if
	// it has none yet (the search loop then uses Settings as configured).
	Settings() (patience, intensityN, intensityD int, ok bool)
	// ErrorRate returns the tuner's current error rate in [0,1], surfaced
	// by internal/hashrate as its fourth public average slot.
	ErrorRate() float64
}

// NoOp never overrides anything; miner.New uses it when given a nil Tuner.
type NoOp struct{}

func (NoOp) Tune(uint64)                                       {}
func (NoOp) Settings() (patience, intensityN, intensityD int, ok bool) { return 0, 0, 0, false }
func (NoOp) ErrorRate() float64                                 { return 0 }
