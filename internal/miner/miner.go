// Package miner ties the lower-level packages together into the
// per-device driver: MinerState, kickMiner, device enumeration, and the
// work loop that sequences epoch initialization and the search loop
// (spec §2, §4.9, §4.10).
package miner

import (
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"fpgaminer/internal/axi"
	"fpgaminer/internal/clock"
	"fpgaminer/internal/epoch"
	"fpgaminer/internal/farm"
	"fpgaminer/internal/hashrate"
	"fpgaminer/internal/pmic"
	"fpgaminer/internal/regmap"
	"fpgaminer/internal/search"
	"fpgaminer/internal/telemetry"
	"fpgaminer/internal/tuner"
	"fpgaminer/internal/voltage"
)

// Re-exported for caller convenience, per SPEC_FULL.md's component map.
type (
	WorkPackage  = farm.WorkPackage
	Solution     = farm.Solution
	EpochContext = farm.EpochContext
)

// Miner is the per-device driver state machine (spec §3 MinerState).
type Miner struct {
	Idx  int
	Desc DeviceDescriptor

	settings *Settings

	T  axi.Transport
	Mu sync.Mutex // axiMutex (spec §3 invariant 1)

	VoltageTbl voltage.Table
	SettingID  string

	LastClk float64
	Dagging bool

	NewWork  atomic.Bool
	WorkMu   sync.Mutex
	WorkCond *sync.Cond

	Hash             *hashrate.Aggregator
	LastStallCounter uint32
	LastTargetChecks uint64

	Clock *clock.Controller
	PMIC  *pmic.Controller
	Tuner tuner.Tuner

	Source farm.WorkSource
	Sink   farm.SolutionSink

	Log    *log.Logger
	Tracer *axi.Tracer
}

// New constructs a Miner for an already-connected transport. tnr may be
// nil, in which case tuner.NoOp is used.
func New(idx int, desc DeviceDescriptor, settings *Settings, t axi.Transport, source farm.WorkSource, sink farm.SolutionSink, tnr tuner.Tuner) *Miner {
	if tnr == nil {
		tnr = tuner.NoOp{}
	}
	m := &Miner{
		Idx:        idx,
		Desc:       desc,
		settings:   settings,
		T:          t,
		VoltageTbl: voltage.New(),
		Hash:       hashrate.New(),
		Clock:      clock.New(t),
		Tuner:      tnr,
		Source:     source,
		Sink:       sink,
		Log:        log.New(os.Stderr, fmt.Sprintf("[dev%d] ", idx), log.LstdFlags),
	}
	m.PMIC = pmic.New(t, m.VoltageTbl)
	m.WorkCond = sync.NewCond(&m.WorkMu)
	return m
}

// exitHook terminates the process; a package var so tests can stub it out
// and observe the death decision without killing the test binary.
var exitHook = os.Exit

// dieOnError logs err and, if die is set, calls exitHook. Returns true if
// the caller should stop processing (exitHook didn't actually terminate,
// as in tests).
func (m *Miner) dieOnError(err error, die bool) bool {
	m.Log.Printf("fatal: %v", err)
	if die {
		exitHook(1)
		return true
	}
	return false
}

// KickMiner interrupts both the idle wait and any in-progress search
// (spec §4.9).
func (m *Miner) KickMiner() {
	m.NewWork.Store(true)
	if !m.Dagging {
		if err := m.T.KickInterrupts(); err != nil {
			m.Log.Printf("kick interrupts: %v", err)
		}
	}
	m.WorkMu.Lock()
	m.WorkCond.Signal()
	m.WorkMu.Unlock()
}

// ComputeSettingID reads the device DNA and bitstream version and builds
// the tune-file key (spec §3 settingID, §6.3).
func (m *Miner) ComputeSettingID() (string, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	dnaLow, err := m.T.Read(regmap.DNALow)
	if err != nil {
		return "", fmt.Errorf("miner: read dna low: %w", err)
	}
	dnaMid, err := m.T.Read(regmap.DNAMid)
	if err != nil {
		return "", fmt.Errorf("miner: read dna mid: %w", err)
	}
	dnaHigh, err := m.T.Read(regmap.DNAHigh)
	if err != nil {
		return "", fmt.Errorf("miner: read dna high: %w", err)
	}
	bitstream, err := m.T.Read(regmap.BitstreamVersion)
	if err != nil {
		return "", fmt.Errorf("miner: read bitstream version: %w", err)
	}

	m.SettingID = fmt.Sprintf("%08x%08x%08x_%x_%04d%04d",
		dnaHigh, dnaMid, dnaLow, bitstream, m.settings.FKVCCINT, m.settings.JCVCCINT)
	return m.SettingID, nil
}

// ApplyVoltage programs both PMIC sequences from Settings.
func (m *Miner) ApplyVoltage() error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if err := m.PMIC.SetFK(m.settings.FKVCCINT); err != nil {
		return err
	}
	return m.PMIC.SetJC(m.settings.JCVCCINT)
}

// SampleTelemetry takes one telemetry snapshot, performing a safety
// shutdown in place if the HBM status is unsafe (spec §4.8).
func (m *Miner) SampleTelemetry() telemetry.Snapshot {
	return telemetry.Sample(&telemetry.Params{
		T:         m.T,
		Mu:        &m.Mu,
		Clock:     m.Clock,
		Dagging:   &m.Dagging,
		Log:       m.Log,
		KickMiner: m.KickMiner,
	})
}

// Run is the work loop (spec §2 lifecycle): pull work, detect an epoch
// change, run the epoch initializer then the search loop, and tear the
// transport down on exit.
func (m *Miner) Run(stop <-chan struct{}) {
	defer func() {
		if err := m.T.Destroy(); err != nil {
			m.Log.Printf("destroy transport: %v", err)
		}
		if m.Tracer != nil {
			_ = m.Tracer.Close()
		}
	}()

	var currentEpoch uint64
	haveEpoch := false

	for {
		select {
		case <-stop:
			return
		default:
		}

		w, ec, ok := m.Source.NextWork(stop)
		if !ok {
			return
		}
		if w.Algorithm != "" && w.Algorithm != "ethash" {
			m.Log.Printf("unsupported algorithm %q", w.Algorithm)
			return
		}

		if !haveEpoch || ec.Epoch != currentEpoch {
			if err := m.runEpoch(ec); err != nil {
				if m.dieOnError(fmt.Errorf("epoch init: %w", err), m.settings.DieOnError) {
					return
				}
				continue
			}
			currentEpoch, haveEpoch = ec.Epoch, true
		}

		if err := m.runSearch(w, stop); err != nil {
			if m.dieOnError(fmt.Errorf("search loop: %w", err), m.settings.DieOnError) {
				return
			}
		}
	}
}

func (m *Miner) runEpoch(ec farm.EpochContext) error {
	targetClk := m.Desc.TargetClk
	if targetClk == 0 {
		targetClk = m.settings.TargetClk
	}
	params := &epoch.Params{
		T:       m.T,
		Mu:      &m.Mu,
		Dagging: &m.Dagging,
		LastClk: &m.LastClk,
		Clock:   m.Clock,
		Settings: epoch.Settings{
			TargetClk:  targetClk,
			DAGMixers:  m.settings.DAGMixers,
			ForceDAG:   m.settings.ForceDAG,
			SkipDAG:    m.settings.SkipDAG,
			DieOnError: m.settings.DieOnError,
		},
		Log: m.Log,
		OnReady: func() {
			m.Log.Printf("dag ready for epoch %d", ec.Epoch)
		},
	}
	return epoch.Run(params, ec)
}

func (m *Miner) runSearch(w farm.WorkPackage, stop <-chan struct{}) error {
	patience, intensityN, intensityD := m.settings.tunerTriple()
	params := &search.Params{
		T:                m.T,
		Mu:               &m.Mu,
		NewWork:          &m.NewWork,
		Hash:             m.Hash,
		Tuner:            m.Tuner,
		Sink:             m.Sink,
		LastStallCounter: &m.LastStallCounter,
		LastTargetChecks: &m.LastTargetChecks,
		Settings: search.Settings{
			Patience:           patience,
			IntensityN:         intensityN,
			IntensityD:         intensityD,
			WorkDelayUs:        m.settings.WorkDelayUs,
			SkipStallDetection: m.settings.SkipStallDetection,
			DieOnError:         m.settings.DieOnError,
		},
		Log:      m.Log,
		MinerIdx: m.Idx,
	}
	return search.Run(params, w, stop)
}
