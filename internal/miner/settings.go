package miner

import "sync"

// Settings is the full configuration surface (spec §6.2). Every field is
// immutable after init except {Patience, IntensityN, IntensityD}, which
// the tuner may override; those three are guarded by a small lock so the
// search loop always observes a consistent triple (spec §9 design note).
type Settings struct {
	Hosts []string

	AxiTimeoutMs int
	WorkDelayUs  int

	DAGMixers int

	ForceDAG           bool
	SkipDAG            bool
	SkipStallDetection bool
	DieOnError         bool
	ShowHBMStats       bool

	TargetClk float64

	TuneFile string
	AutoTune string

	FKVCCINT int
	JCVCCINT int

	SSHTarget string
	SSHUser   string
	SSHKeyPath string

	tunerMu    sync.Mutex
	patience   int
	intensityN int
	intensityD int
}

// NewSettings builds Settings with the tuner-mutable triple seeded from
// the caller's static configuration.
func NewSettings(patience, intensityN, intensityD int) *Settings {
	return &Settings{patience: patience, intensityN: intensityN, intensityD: intensityD}
}

// TunerOverride sets the current {patience, intensityN, intensityD}
// triple; called by the tuner thread.
func (s *Settings) TunerOverride(patience, intensityN, intensityD int) {
	s.tunerMu.Lock()
	defer s.tunerMu.Unlock()
	s.patience, s.intensityN, s.intensityD = patience, intensityN, intensityD
}

// tunerTriple returns the current {patience, intensityN, intensityD}
// triple, read by the search loop once per work package.
func (s *Settings) tunerTriple() (patience, intensityN, intensityD int) {
	s.tunerMu.Lock()
	defer s.tunerMu.Unlock()
	return s.patience, s.intensityN, s.intensityD
}

// TunerDefaults exposes the current {patience, intensityN, intensityD}
// triple to config overlay code outside this package, which must not
// blindly clobber values already set from flags.
func (s *Settings) TunerDefaults() (patience, intensityN, intensityD int) {
	return s.tunerTriple()
}
