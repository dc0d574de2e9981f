// Package epoch implements the per-epoch DAG initializer: skip-or-build
// decision against the persisted on-device epoch tag, light-cache build,
// mixer-range programming, DAG generation, the 256-chunk duplication
// swizzle and the chunked final copy, and epoch-tag persistence
// (spec §4.5).
package epoch

import (
	"log"
	"sync"
	"time"

	"fpgaminer/internal/axi"
	"fpgaminer/internal/clock"
	"fpgaminer/internal/farm"
	"fpgaminer/internal/hashcore"
	"fpgaminer/internal/regmap"
)

const (
	cachePollInterval = 100 * time.Millisecond
	dagPollInterval   = 100 * time.Millisecond
	dagLogInterval    = 5 * time.Second

	swizzleChunks   = 256
	swizzleLen      = 0x1000000 // 16 MiB
	finalCopyTotal  = uint64(4) << 30  // 4 GiB
	cdmaChunkSize   = uint64(256) << 20 // 256 MiB, resolving open question 3
	duplicationBase = uint64(0x100000000)
)

// Settings carries the epoch-initializer-relevant slice of the driver's
// configuration surface.
type Settings struct {
	TargetClk  float64
	DAGMixers  int
	ForceDAG   bool
	SkipDAG    bool
	DieOnError bool
}

// Params bundles everything Run needs out of the owning miner's state,
// passed by pointer so Run observes and mutates the caller's fields
// directly rather than owning a copy (spec §3 MinerState: dagging,
// lastClk; §9 design note on interior mutability).
type Params struct {
	T       axi.Transport
	Mu      *sync.Mutex // axiMutex; Run acquires it itself
	Dagging *bool
	LastClk *float64
	Clock   *clock.Controller

	Settings Settings
	Log      *log.Logger

	// OnReady is invoked once DAG staging completes (skip or full build),
	// while axiMutex is NOT held, so a tuner thread may be scheduled
	// (spec §5: "may be scheduled by the initializer upon DAG completion").
	OnReady func()
}

func (p *Params) logf(format string, args ...interface{}) {
	if p.Log != nil {
		p.Log.Printf(format, args...)
	}
}

func (p *Params) restoreClock() {
	clk, err := p.Clock.Set(p.Settings.TargetClk)
	if err != nil {
		p.logf("epoch: restore clock: %v", err)
		return
	}
	*p.LastClk = clk
}

// Run stages the DAG for ec, or skips staging if the on-device epoch tag
// already matches and a rebuild was not forced. Acquires p.Mu itself and
// releases it around the two long polling loops (spec §5: polling loops
// must release and reacquire axiMutex between iterations) and before
// returning.
func Run(p *Params, ec farm.EpochContext) error {
	p.Mu.Lock()
	*p.Dagging = true

	if _, err := p.Clock.Set(-2); err != nil {
		p.logf("epoch: force stock clock: %v", err)
	}

	if err := hashcore.StopSoft(p.T, p.Log); err != nil {
		p.Mu.Unlock()
		p.logf("epoch: stop hashcore: %v", err)
		return err
	}

	if err := p.T.Write(0xFFFFFFFF, regmap.DAGGenPower, true); err != nil {
		p.Mu.Unlock()
		return err
	}
	if err := p.T.Write(0x2, regmap.DAGGenControl, true); err != nil {
		p.Mu.Unlock()
		return err
	}

	nItems := ec.DAGSize / 128
	if nItems == 0 {
		nItems = 1
	}
	rnItems := uint32((uint64(1) << 56) / nItems)
	if err := p.T.Write(uint32(nItems), regmap.NItems, true); err != nil {
		p.Mu.Unlock()
		return err
	}
	if err := p.T.Write(rnItems, regmap.RNItems, true); err != nil {
		p.Mu.Unlock()
		return err
	}

	tag, tagErr := p.T.Read(regmap.EpochTag)
	skip := p.Settings.SkipDAG
	if tagErr == nil && tag&0x80000000 != 0 && uint64(tag&0xFFFF) == ec.Epoch&0xFFFF && !p.Settings.ForceDAG {
		skip = true
	}

	if skip {
		if err := hashcore.PowerDownDAGGen(p.T); err != nil {
			p.Mu.Unlock()
			return err
		}
		*p.Dagging = false
		p.Mu.Unlock()
		p.restoreClock()
		if p.OnReady != nil {
			p.OnReady()
		}
		return nil
	}

	if err := p.T.Write(0xFFFFFFFD, regmap.DAGGenPower, true); err != nil {
		p.Mu.Unlock()
		return err
	}
	if err := p.T.Write(0xFFFFFFFF, regmap.DAGGenPower, true); err != nil {
		p.Mu.Unlock()
		return err
	}

	if err := p.buildLightCache(ec); err != nil {
		p.Mu.Unlock()
		return err
	}

	p.programMixers(ec)

	if err := p.runDAGGen(ec, nItems); err != nil {
		p.Mu.Unlock()
		return err
	}

	if err := p.duplicationSwizzle(); err != nil {
		p.Mu.Unlock()
		return err
	}

	tagVal := uint32(0x80000000) | uint32(ec.Epoch&0xFFFF)
	if err := p.T.Write(tagVal, regmap.EpochTag, true); err != nil {
		p.Mu.Unlock()
		return err
	}

	if err := hashcore.PowerDownDAGGen(p.T); err != nil {
		p.Mu.Unlock()
		return err
	}
	*p.Dagging = false
	p.Mu.Unlock()

	p.restoreClock()
	if p.OnReady != nil {
		p.OnReady()
	}
	return nil
}

// buildLightCache resets the cache generator, uploads the byte-reversed
// seed, starts it, and polls to completion. Called with p.Mu held;
// releases/reacquires it between poll iterations.
func (p *Params) buildLightCache(ec farm.EpochContext) error {
	if err := p.T.Write(0x2, regmap.CacheBuildCtrl, true); err != nil {
		return err
	}
	numParentNodes := ec.LightCacheSize / 64
	if err := p.T.Write(uint32(numParentNodes), regmap.NumParentNodes, true); err != nil {
		return err
	}

	seed := reverseSeed(ec.Seed)
	if err := uploadWithRetry(p.T, seed[:], regmap.CacheSeed); err != nil {
		return err
	}

	if err := p.T.Write(0x1, regmap.CacheBuildCtrl, true); err != nil {
		return err
	}

	for {
		status, err := p.T.Read(regmap.CacheBuildCtrl)
		if err == nil && status&0x2 != 0 {
			return nil
		}
		if err != nil {
			p.logf("epoch: poll cache build: %v", err)
		}
		p.Mu.Unlock()
		time.Sleep(cachePollInterval)
		p.Mu.Lock()
	}
}

// reverseSeed flips the byte order of the 32-byte seed end-to-end.
func reverseSeed(seed [32]byte) [32]byte {
	var out [32]byte
	for i := range seed {
		out[i] = seed[31-i]
	}
	return out
}

// uploadWithRetry bulk-writes data byte-swapped to addr, retrying once on
// failure (spec §7.1: light-cache upload errors retry once per chunk).
func uploadWithRetry(t axi.Transport, data []byte, addr uint32) error {
	if err := t.BulkWrite(data, addr, true); err == nil {
		return nil
	}
	return t.BulkWrite(data, addr, true)
}

// programMixers assigns each mixer a contiguous DAG-item range, with the
// first mixer absorbing the division's leftover.
func (p *Params) programMixers(ec farm.EpochContext) {
	numMixers := p.Settings.DAGMixers
	if numMixers <= 0 {
		numMixers = 1
	}
	total := ec.DAGSize / 64
	mixerSize := total / uint64(numMixers)
	leftover := total - mixerSize*uint64(numMixers)

	start := uint64(0)
	for i := 0; i < numMixers; i++ {
		size := mixerSize
		if i == 0 {
			size += leftover
		}
		end := start + size
		_ = p.T.Write(uint32(start), regmap.MixerStart(i), true)
		_ = p.T.Write(uint32(end), regmap.MixerEnd(i), true)
		start = end
	}
}

// runDAGGen starts the DAG generator and polls to completion, logging
// progress every dagLogInterval.
func (p *Params) runDAGGen(ec farm.EpochContext, numParentNodes uint64) error {
	if err := p.T.Write(0x1, regmap.DAGGenControl, true); err != nil {
		return err
	}

	lastLog := time.Now()
	for {
		status, err := p.T.Read(regmap.DAGGenControl)
		if err == nil && status&0x2 != 0 {
			return nil
		}
		if err != nil {
			p.logf("epoch: poll dag-gen: %v", err)
		} else if time.Since(lastLog) >= dagLogInterval {
			progress, _ := p.T.Read(regmap.NumParentNodes)
			var pct float64
			if numParentNodes > 0 {
				pct = float64(progress) / float64(numParentNodes) * 100
			}
			p.logf("epoch: dag generation %.1f%%", pct)
			lastLog = time.Now()
		}
		p.Mu.Unlock()
		time.Sleep(dagPollInterval)
		p.Mu.Lock()
	}
}

// duplicationSwizzle stages a second, duplicated copy of the DAG in the
// layout the hashcore expects: 256 fixed-pattern chunk copies followed by
// one logical 4 GiB copy, chunked to cdmaChunkSize per open question 3.
func (p *Params) duplicationSwizzle() error {
	for i := 0; i < swizzleChunks; i++ {
		src := duplicationBase | (uint64(i) << 24)
		dst := uint64((i&0x0F)<<4|(i&0xF0)>>4) << 24
		if err := p.T.CDMACopy(src, dst, swizzleLen); err != nil {
			return err
		}
	}

	for off := uint64(0); off < finalCopyTotal; off += cdmaChunkSize {
		n := cdmaChunkSize
		if off+n > finalCopyTotal {
			n = finalCopyTotal - off
		}
		if err := p.T.CDMACopy(off, duplicationBase+off, n); err != nil {
			return err
		}
	}
	return nil
}
