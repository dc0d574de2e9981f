// Package farm defines the contracts the driver core uses to reach the
// upstream work source and solution sink. The farm dispatcher itself is
// out of scope (spec §1, §2) — this package only carries the shapes the
// core calls across, plus an in-memory fake for tests.
package farm

import "time"

// WorkPackage is provided externally by the farm dispatcher.
type WorkPackage struct {
	Algorithm  string
	Epoch      uint64
	Header     [32]byte
	Boundary   [32]byte
	StartNonce uint64
}

// Solution is emitted back to the farm for each candidate nonce.
type Solution struct {
	Nonce     uint64
	MixHash   [32]byte // always zero; the FPGA does not return one
	Work      WorkPackage
	Timestamp time.Time
	MinerIdx  int
}

// EpochContext is provided externally alongside a WorkPackage whose
// epoch has changed.
type EpochContext struct {
	Epoch         uint64
	Seed          [32]byte
	LightCacheSize uint64
	DAGSize       uint64
}

// WorkSource is pulled from by the miner's work loop.
type WorkSource interface {
	// NextWork blocks until a work package is available or stop is
	// closed, in which case ok is false.
	NextWork(stop <-chan struct{}) (w WorkPackage, epoch EpochContext, ok bool)
}

// SolutionSink receives solutions found by the search loop.
type SolutionSink interface {
	SubmitSolution(s Solution)
}
