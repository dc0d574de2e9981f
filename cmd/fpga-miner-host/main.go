// fpga-miner-host: per-board Ethash FPGA mining daemon
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"fpgaminer/internal/axi"
	"fpgaminer/internal/config"
	"fpgaminer/internal/farm"
	"fpgaminer/internal/miner"
	"fpgaminer/internal/statusapi"
	"fpgaminer/internal/tuner"
)

var (
	hosts = flag.String("hosts", "", "comma-separated host[:port[-endPort]] specs (spec §4.10)")
	apiAddr = flag.String("api-addr", ":8090", "status/health/metrics HTTP listen address")
	enableAPI = flag.Bool("api", true, "enable the status HTTP API")

	axiTimeoutMs = flag.Int("axi-timeout-ms", 0, "per-transport-call timeout in milliseconds")
	workDelayUs  = flag.Int("work-delay-us", 1000, "interrupt wait granularity in microseconds")
	dagMixers    = flag.Int("dag-mixers", 0, "bitstream's fixed DAG-gen mixer count")

	forceDAG           = flag.Bool("force-dag", false, "force DAG regeneration even if the epoch tag matches")
	skipDAG            = flag.Bool("skip-dag", false, "always skip DAG generation")
	skipStallDetection = flag.Bool("skip-stall-detection", false, "disable stall-counter based search-loop exit")
	dieOnError         = flag.Bool("die-on-error", false, "terminate the process on a transport error")
	showHBMStats       = flag.Bool("show-hbm-stats", false, "log HBM telemetry on every sample")

	targetClk = flag.Float64("target-clk", 0, "clock target in MHz, applied after DAG generation")

	patience   = flag.Int("patience", 0, "core flags patience field")
	intensityN = flag.Int("intensity-n", 0, "core flags intensity numerator")
	intensityD = flag.Int("intensity-d", 8, "core flags intensity denominator")

	tuneFile = flag.String("tune-file", "", "external tuner's tune-file path")
	autoTune = flag.String("auto-tune", "", "external tuner mode")

	fkVCCINT = flag.Int("fk-vccint", 0, "FK VRM setpoint in mV, clamped 501..920")
	jcVCCINT = flag.Int("jc-vccint", 0, "JC PMIC setpoint in mV, clamped 501..920")

	telemetryInterval = flag.Duration("telemetry-interval", 5*time.Second, "telemetry sample period per device")
)

func main() {
	flag.Parse()

	settings := miner.NewSettings(*patience, *intensityN, *intensityD)
	settings.AxiTimeoutMs = *axiTimeoutMs
	settings.WorkDelayUs = *workDelayUs
	settings.DAGMixers = *dagMixers
	settings.ForceDAG = *forceDAG
	settings.SkipDAG = *skipDAG
	settings.SkipStallDetection = *skipStallDetection
	settings.DieOnError = *dieOnError
	settings.ShowHBMStats = *showHBMStats
	settings.TargetClk = *targetClk
	settings.TuneFile = *tuneFile
	settings.AutoTune = *autoTune
	settings.FKVCCINT = *fkVCCINT
	settings.JCVCCINT = *jcVCCINT
	if *hosts != "" {
		settings.Hosts = splitHosts(*hosts)
	}

	config.ApplyDefaults(settings, config.Load())

	if len(settings.Hosts) == 0 {
		log.Fatal("no hosts configured: pass -hosts or set FPGAMINER_HOSTS")
	}

	descs, err := miner.Enumerate(settings.Hosts)
	if err != nil {
		log.Fatalf("enumerate devices: %v", err)
	}

	stop := make(chan struct{})
	registry := newStatusRegistry(len(descs))

	var wg sync.WaitGroup
	for i, desc := range descs {
		i, desc := i, desc
		addr := fmt.Sprintf("%s:%d", desc.Host, desc.Port)
		timeout := time.Duration(settings.AxiTimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 5 * time.Second
		}

		t, err := axi.Dial(addr, timeout)
		if err != nil {
			log.Printf("dial %s: %v", addr, err)
			continue
		}

		m := miner.New(i, desc, settings, t, farm.NewFake(), farm.NewFake(), tuner.NoOp{})

		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Run(stop)
		}()
		go func() {
			defer wg.Done()
			runTelemetryLoop(m, desc, registry, stop)
		}()
	}

	var apiServer *statusapi.Server
	if *enableAPI {
		apiServer = statusapi.New(*apiAddr, registry.snapshot)
		go func() {
			log.Printf("status API listening on %s", *apiAddr)
			if err := apiServer.ListenAndServe(); err != nil {
				log.Printf("status API error: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("shutting down...")
	close(stop)

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			log.Printf("status API shutdown: %v", err)
		}
	}

	wg.Wait()
	log.Printf("stopped")
}

func splitHosts(raw string) []string {
	var out []string
	for _, h := range strings.Split(raw, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// runTelemetryLoop periodically samples a device's telemetry and
// refreshes its status-API snapshot, mirroring the teacher's
// runConnectionMonitor ticker pattern in cmd/driver/hasher-host/main.go.
func runTelemetryLoop(m *miner.Miner, desc miner.DeviceDescriptor, reg *statusRegistry, stop <-chan struct{}) {
	ticker := time.NewTicker(*telemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := m.SampleTelemetry()
			avgs := m.Hash.Averages()
			reg.update(statusapi.DeviceStatus{
				Index:     m.Idx,
				Host:      desc.Host,
				UniqueID:  desc.UniqueID,
				Dagging:   m.Dagging,
				ClockMHz:  snap.ClockMHz,
				TempC:     snap.TempC,
				VoltageV:  snap.VoltageV,
				HBMSafe:   snap.HBM.Safe(),
				Hash10Min: avgs.Avg10Min,
				Hash60Min: avgs.Avg60Min,
				SettingID: m.SettingID,
			})
		}
	}
}

// statusRegistry is the shared, lock-guarded slot the telemetry loops
// publish into and the status API reads from.
type statusRegistry struct {
	mu      sync.RWMutex
	devices map[int]statusapi.DeviceStatus
}

func newStatusRegistry(n int) *statusRegistry {
	return &statusRegistry{devices: make(map[int]statusapi.DeviceStatus, n)}
}

func (r *statusRegistry) update(d statusapi.DeviceStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[d.Index] = d
}

func (r *statusRegistry) snapshot() []statusapi.DeviceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]statusapi.DeviceStatus, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out
}
