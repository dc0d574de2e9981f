package miner

import (
	"sync"
	"testing"
	"time"

	"fpgaminer/internal/axi"
	"fpgaminer/internal/axitest"
	"fpgaminer/internal/farm"
	"fpgaminer/internal/regmap"
	"fpgaminer/internal/tuner"
)

func TestKickMinerSetsNewWorkAndSignalsCond(t *testing.T) {
	fake := axitest.New()
	m := New(0, DeviceDescriptor{}, NewSettings(0, 0, 0), fake, farm.NewFake(), farm.NewFake(), nil)

	woke := make(chan struct{}, 1)
	go func() {
		m.WorkMu.Lock()
		m.WorkCond.Wait()
		m.WorkMu.Unlock()
		woke <- struct{}{}
	}()

	// give the waiter a chance to actually be inside Cond.Wait
	time.Sleep(10 * time.Millisecond)
	m.KickMiner()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("KickMiner did not wake the condition variable")
	}

	if !m.NewWork.Load() {
		t.Error("KickMiner should set NewWork")
	}
}

func TestKickMinerSkipsInterruptWhileDagging(t *testing.T) {
	fake := axitest.New()
	m := New(0, DeviceDescriptor{}, NewSettings(0, 0, 0), fake, farm.NewFake(), farm.NewFake(), nil)
	m.Dagging = true

	m.KickMiner()
	if fake.KickInterruptCalls != 0 {
		t.Errorf("KickMiner should not call KickInterrupts while dagging, got %d calls", fake.KickInterruptCalls)
	}
	if !m.NewWork.Load() {
		t.Errorf("KickMiner should still set NewWork while dagging")
	}

	m.Dagging = false
	m.KickMiner()
	if fake.KickInterruptCalls != 1 {
		t.Errorf("KickMiner should call KickInterrupts once dagging is false, got %d calls", fake.KickInterruptCalls)
	}
}

type syncSink struct {
	mu        sync.Mutex
	solutions []farm.Solution
	notify    chan struct{}
}

func newSyncSink() *syncSink { return &syncSink{notify: make(chan struct{}, 8)} }

func (s *syncSink) SubmitSolution(sol farm.Solution) {
	s.mu.Lock()
	s.solutions = append(s.solutions, sol)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func TestRunSkipsDAGThenHarvestsNonce(t *testing.T) {
	fake := axitest.New()
	fake.Set(regmap.VCOReg, 5<<16)
	fake.Set(regmap.Clock0Reg, 2<<16)
	fake.Set(regmap.PLLLock, 1)
	fake.Set(regmap.EpochTag, 0x80000005)
	fake.InterruptQueue = []axitest.InterruptResult{
		{Outcome: axi.WaitOK, Nonce: 0xAA},
	}

	source := farm.NewFake()
	sink := newSyncSink()
	settings := NewSettings(0, 0, 0)
	settings.WorkDelayUs = 1000
	settings.SkipStallDetection = true

	m := New(0, DeviceDescriptor{}, settings, fake, source, sink, tuner.NoOp{})

	source.PushWork(
		farm.WorkPackage{Algorithm: "ethash", Epoch: 5, StartNonce: 1},
		farm.EpochContext{Epoch: 5, DAGSize: 1 << 32, LightCacheSize: 1 << 20},
	)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.Run(stop)
		close(done)
	}()

	select {
	case <-sink.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a harvested solution")
	}
	close(stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after stop was closed")
	}

	if len(fake.CDMACalls) != 0 {
		t.Errorf("skip-DAG path should issue no cdma copies, got %d", len(fake.CDMACalls))
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.solutions) != 1 || sink.solutions[0].Nonce != 0xAA {
		t.Errorf("solutions = %+v, want one solution with nonce 0xAA", sink.solutions)
	}
	if !fake.Destroyed {
		t.Errorf("Run should destroy the transport on exit")
	}
}

func TestDieOnErrorInvokesExitHookOnlyWhenSet(t *testing.T) {
	fake := axitest.New()
	m := New(0, DeviceDescriptor{}, NewSettings(0, 0, 0), fake, farm.NewFake(), farm.NewFake(), nil)

	var exitCode int
	called := false
	old := exitHook
	exitHook = func(code int) { called = true; exitCode = code }
	defer func() { exitHook = old }()

	if stop := m.dieOnError(errTestErr, false); stop {
		t.Errorf("dieOnError(false) should not ask the caller to stop")
	}
	if called {
		t.Errorf("dieOnError(false) should not invoke exitHook")
	}

	if stop := m.dieOnError(errTestErr, true); !stop {
		t.Errorf("dieOnError(true) should ask the caller to stop")
	}
	if !called || exitCode != 1 {
		t.Errorf("dieOnError(true) should invoke exitHook(1), got called=%v code=%d", called, exitCode)
	}
}

var errTestErr = errTest{}

type errTest struct{}

func (errTest) Error() string { return "test error" }
