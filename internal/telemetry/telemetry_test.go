package telemetry

import (
	"sync"
	"testing"

	"fpgaminer/internal/axitest"
	"fpgaminer/internal/clock"
	"fpgaminer/internal/regmap"
)

func TestHBMCatastrophicTriggersSafetyShutdown(t *testing.T) {
	fake := axitest.New()
	fake.Set(regmap.VCOReg, 5<<16)
	fake.Set(regmap.Clock0Reg, 2<<16)
	fake.Set(regmap.PLLLock, 1)
	fake.Set(regmap.HBMStatus, 0x00000404)
	fake.Set(regmap.CoreFlags, 0) // no intensity ramp needed

	dagging := false
	kicked := false
	p := &Params{
		T:         fake,
		Mu:        &sync.Mutex{},
		Clock:     clock.New(fake),
		Dagging:   &dagging,
		KickMiner: func() { kicked = true },
	}

	snap := Sample(p)

	if snap.HBM.Safe() {
		t.Errorf("0x%x should decode as unsafe", 0x00000404)
	}
	if !snap.HBM.LeftCatastrophic || !snap.HBM.RightCatastrophic {
		t.Errorf("expected both stacks catastrophic, got %+v", snap.HBM)
	}
	if fake.Get(regmap.DAGGenPower) != 0 {
		t.Errorf("dag-gen power should be written to 0 on safety shutdown, got %#x", fake.Get(regmap.DAGGenPower))
	}
	if fake.Get(regmap.CoreControl) != 0 {
		t.Errorf("core control should be reset to 0 on safety shutdown, got %#x", fake.Get(regmap.CoreControl))
	}
	if !dagging {
		t.Errorf("dagging should be set true after a safety shutdown")
	}
	if !kicked {
		t.Errorf("KickMiner should be called after a safety shutdown")
	}
}

func TestHealthyHBMDoesNotShutDown(t *testing.T) {
	fake := axitest.New()
	fake.Set(regmap.VCOReg, 5<<16)
	fake.Set(regmap.Clock0Reg, 2<<16)
	fake.Set(regmap.PLLLock, 1)
	fake.Set(regmap.HBMStatus, 0x3) // both calibrated, nothing catastrophic

	dagging := false
	kicked := false
	p := &Params{
		T:         fake,
		Mu:        &sync.Mutex{},
		Clock:     clock.New(fake),
		Dagging:   &dagging,
		KickMiner: func() { kicked = true },
	}

	Sample(p)

	if dagging {
		t.Errorf("dagging should remain false when HBM is healthy")
	}
	if kicked {
		t.Errorf("KickMiner should not be called when HBM is healthy")
	}
}

func TestHBMReadFailureDefaultsToSafe(t *testing.T) {
	fake := axitest.New()
	fake.Set(regmap.VCOReg, 5<<16)
	fake.Set(regmap.Clock0Reg, 2<<16)
	fake.Set(regmap.PLLLock, 1)
	fake.ReadErr = errTest{}

	dagging := false
	p := &Params{
		T:       fake,
		Mu:      &sync.Mutex{},
		Clock:   clock.New(fake),
		Dagging: &dagging,
	}

	snap := Sample(p)
	if !snap.HBM.Safe() {
		t.Errorf("a failed hbm read should default to the safe 0x3 pattern, got %+v", snap.HBM)
	}
}

type errTest struct{}

func (errTest) Error() string { return "injected read failure" }
