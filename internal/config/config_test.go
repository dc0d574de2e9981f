package config

import (
	"os"
	"path/filepath"
	"testing"

	"fpgaminer/internal/miner"
)

func TestParseEnvFileAssignsKnownKeys(t *testing.T) {
	v := &Values{}
	parseEnvFile(`
# comment line, ignored
FPGAMINER_HOSTS=10.0.0.1,10.0.0.2
FPGAMINER_AXI_TIMEOUT_MS=500
FPGAMINER_FORCE_DAG=true
FPGAMINER_TARGET_CLK=450.5
FPGAMINER_TUNE_FILE=/var/tune.json
unknown_key=ignored
`, v)

	if len(v.Hosts) != 2 || v.Hosts[0] != "10.0.0.1" || v.Hosts[1] != "10.0.0.2" {
		t.Errorf("Hosts = %v, want [10.0.0.1 10.0.0.2]", v.Hosts)
	}
	if v.AxiTimeoutMs != 500 {
		t.Errorf("AxiTimeoutMs = %d, want 500", v.AxiTimeoutMs)
	}
	if !v.ForceDAG {
		t.Errorf("ForceDAG = false, want true")
	}
	if v.TargetClk != 450.5 {
		t.Errorf("TargetClk = %v, want 450.5", v.TargetClk)
	}
	if v.TuneFile != "/var/tune.json" {
		t.Errorf("TuneFile = %q, want /var/tune.json", v.TuneFile)
	}
}

func TestApplyEnvOverridesWinsOverFile(t *testing.T) {
	v := &Values{}
	parseEnvFile("FPGAMINER_AXI_TIMEOUT_MS=100\n", v)

	t.Setenv("FPGAMINER_AXI_TIMEOUT_MS", "900")
	applyEnvOverrides(v)

	if v.AxiTimeoutMs != 900 {
		t.Errorf("AxiTimeoutMs = %d, want 900 (env should win over file)", v.AxiTimeoutMs)
	}
}

func TestFindProjectRootPrefersCwdEnvFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	got := findProjectRoot()
	if abs, _ := filepath.EvalSymlinks(got); abs != mustEval(dir) {
		t.Errorf("findProjectRoot() = %q, want %q", got, dir)
	}
}

func mustEval(p string) string {
	abs, err := filepath.EvalSymlinks(p)
	if err != nil {
		return p
	}
	return abs
}

func TestApplyDefaultsDoesNotClobberExplicitFlagValues(t *testing.T) {
	s := miner.NewSettings(50, 4, 8)
	s.AxiTimeoutMs = 250

	v := &Values{AxiTimeoutMs: 999, Patience: 10, IntensityN: 1, IntensityD: 2, TargetClk: 400}
	ApplyDefaults(s, v)

	if s.AxiTimeoutMs != 250 {
		t.Errorf("AxiTimeoutMs = %d, want 250 (flag value preserved)", s.AxiTimeoutMs)
	}
	if s.TargetClk != 400 {
		t.Errorf("TargetClk = %v, want 400 (file/env value applied where flag left zero)", s.TargetClk)
	}
	gotP, gotN, gotD := s.TunerDefaults()
	if gotP != 50 || gotN != 4 || gotD != 8 {
		t.Errorf("tuner triple = (%d,%d,%d), want (50,4,8) preserved from NewSettings", gotP, gotN, gotD)
	}
}

func TestApplyDefaultsFillsZeroTunerTripleFromFile(t *testing.T) {
	s := miner.NewSettings(0, 0, 0)
	v := &Values{Patience: 10, IntensityN: 1, IntensityD: 2}
	ApplyDefaults(s, v)

	gotP, gotN, gotD := s.TunerDefaults()
	if gotP != 10 || gotN != 1 || gotD != 2 {
		t.Errorf("tuner triple = (%d,%d,%d), want (10,1,2) from file/env", gotP, gotN, gotD)
	}
}
