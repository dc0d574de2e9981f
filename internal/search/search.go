// Package search implements the per-work-package search loop: program
// header/boundary/start-nonce/flags, start the hashcore in interrupt
// mode, harvest candidate nonces, feed the hash-rate aggregator and
// tuner, and detect a stalled core (spec §4.6).
package search

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"fpgaminer/internal/axi"
	"fpgaminer/internal/farm"
	"fpgaminer/internal/hashcore"
	"fpgaminer/internal/hashrate"
	"fpgaminer/internal/regmap"
	"fpgaminer/internal/tuner"
)

// falseTargetFloor is the quiet minimum boundary applied regardless of
// what the work package asks for (spec §9 open question 2, resolved in
// DESIGN.md: preserved as specified and documented here rather than
// hidden). Leading 3 bytes zero, then 0x1f, then 28 bytes of 0xff.
var falseTargetFloor = [32]byte{
	0, 0, 0, 0x1f,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// Settings is the search-loop-relevant slice of the driver's
// configuration surface; patience/intensityN/intensityD may be
// overridden by the tuner, read once per work package.
type Settings struct {
	Patience           int
	IntensityN         int
	IntensityD         int
	WorkDelayUs        int
	SkipStallDetection bool
	DieOnError         bool
}

// Params bundles the owning miner's shared state that the search loop
// reads and mutates, passed by pointer per the same convention as
// internal/epoch.
type Params struct {
	T       axi.Transport
	Mu      *sync.Mutex
	NewWork *atomic.Bool
	Hash    *hashrate.Aggregator
	Tuner   tuner.Tuner
	Sink    farm.SolutionSink

	LastStallCounter *uint32
	LastTargetChecks *uint64

	Settings Settings
	Log      *log.Logger
	MinerIdx int
}

func (p *Params) logf(format string, args ...interface{}) {
	if p.Log != nil {
		p.Log.Printf(format, args...)
	}
}

func maxBoundary(a, b [32]byte) [32]byte {
	for i := 0; i < 32; i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return a
			}
			return b
		}
	}
	return a
}

// reconstructCombined folds a fresh 32-bit low/high counter read into a
// monotonically increasing 64-bit sequence, bumping the effective high
// half whenever the low word has visibly wrapped since prev. The bump is
// applied on top of prev's high half, so repeated wraps keep climbing even
// when the high register itself does not advance.
func reconstructCombined(prev uint64, low, high uint32) uint64 {
	combined := uint64(high)<<32 | uint64(low)
	if combined < prev {
		combined = prev&^0xFFFFFFFF | uint64(low)
		if combined < prev {
			combined += uint64(1) << 32
		}
	}
	return combined
}

func shouldStop(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// Run programs w and harvests candidate nonces until newWork is set,
// stop is closed, or a stall is detected. It acquires p.Mu itself and
// releases it for the duration of each WaitForInterrupt call.
func Run(p *Params, w farm.WorkPackage, stop <-chan struct{}) error {
	p.Mu.Lock()
	p.NewWork.Store(false)

	if err := p.T.BulkWrite(w.Header[:], regmap.Header, true); err != nil {
		p.Mu.Unlock()
		return err
	}

	effectiveBoundary := maxBoundary(w.Boundary, falseTargetFloor)
	if err := p.T.BulkWrite(effectiveBoundary[:], regmap.Boundary, true); err != nil {
		p.Mu.Unlock()
		return err
	}

	if err := p.T.Write(uint32(w.StartNonce), regmap.StartNonceLow, true); err != nil {
		p.Mu.Unlock()
		return err
	}
	if err := p.T.Write(uint32(w.StartNonce>>32), regmap.StartNonceHigh, true); err != nil {
		p.Mu.Unlock()
		return err
	}

	patience, intensityN, intensityD := p.Settings.Patience, p.Settings.IntensityN, p.Settings.IntensityD
	if tp, tn, td, ok := p.Tuner.Settings(); ok {
		patience, intensityN, intensityD = tp, tn, td
	}

	var flags uint32
	if intensityN != 0 {
		flags |= 0x1
		flags |= (uint32(intensityN) & 0xFF) << 24
	}
	// bits[21:16] are programmed unconditionally, unlike intensityN/patience.
	flags |= (uint32(intensityD*8-1) & 0x3F) << 16
	if patience != 0 {
		flags |= 0x40
		flags |= (uint32(patience) & 0xFF) << 8
	}

	if err := p.T.Write(flags, regmap.CoreFlags, true); err != nil {
		p.Mu.Unlock()
		return err
	}
	if err := p.T.Write(regmap.CoreControlStart, regmap.CoreControl, true); err != nil {
		p.Mu.Unlock()
		return err
	}

	workDelay := time.Duration(p.Settings.WorkDelayUs) * time.Microsecond

	for {
		if p.NewWork.Load() || shouldStop(stop) {
			break
		}

		p.Mu.Unlock()
		outcome, nonce, err := p.T.WaitForInterrupt(regmap.InterruptMaskNonce, workDelay)
		p.Mu.Lock()

		if err != nil {
			p.logf("search: wait for interrupt: %v", err)
			if p.Settings.DieOnError {
				p.Mu.Unlock()
				return err
			}
			continue
		}
		if outcome == axi.WaitTimedOut {
			continue
		}

		var stallCounter uint32
		if !p.Settings.SkipStallDetection {
			stallCounter, err = p.T.Read(regmap.StallCounter)
			if err != nil {
				p.logf("search: read stall counter: %v", err)
			}
		}

		low, errLow := p.T.Read(regmap.TargetCheckLow)
		high, errHigh := p.T.Read(regmap.TargetCheckHigh)
		if errLow != nil || errHigh != nil {
			p.logf("search: read target-check counters: low=%v high=%v", errLow, errHigh)
		}
		combined := reconstructCombined(*p.LastTargetChecks, low, high)
		delta := combined - *p.LastTargetChecks
		*p.LastTargetChecks = combined

		if outcome == axi.WaitOK {
			p.Sink.SubmitSolution(farm.Solution{
				Nonce:     nonce,
				Work:      w,
				Timestamp: time.Now(),
				MinerIdx:  p.MinerIdx,
			})
		}

		p.Hash.AddDelta(delta, time.Now())
		p.Tuner.Tune(delta)
		p.Hash.SetErrorRate(p.Tuner.ErrorRate())

		if !p.Settings.SkipStallDetection {
			if stallCounter == *p.LastStallCounter {
				break
			}
			*p.LastStallCounter = stallCounter
		}
	}

	err := hashcore.StopSoft(p.T, p.Log)
	p.Mu.Unlock()
	return err
}
