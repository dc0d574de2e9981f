package pmic

import (
	"testing"

	"fpgaminer/internal/axitest"
	"fpgaminer/internal/regmap"
	"fpgaminer/internal/voltage"
)

func TestSetVoltageClampSkipsWrites(t *testing.T) {
	f := axitest.New()
	c := New(f, voltage.New())

	if err := c.SetFK(499); err != nil {
		t.Fatalf("SetFK: %v", err)
	}
	if err := c.SetJC(1000); err != nil {
		t.Fatalf("SetJC: %v", err)
	}

	if _, ok := f.Regs[regmap.FKVRMBank]; ok {
		t.Errorf("SetFK(499) should not have written to the FK VRM bank")
	}
	if _, ok := f.Regs[regmap.JCTxFIFO]; ok {
		t.Errorf("SetJC(1000) should not have written to the JC I2C bank")
	}
}

func TestSetVoltageBoundaryInclusiveUpper(t *testing.T) {
	f := axitest.New()
	c := New(f, voltage.New())

	if err := c.SetFK(920); err != nil {
		t.Fatalf("SetFK(920): %v", err)
	}
	if _, ok := f.Regs[regmap.FKVRMBank]; !ok {
		t.Errorf("SetFK(920) should be accepted (inclusive upper bound)")
	}
}

func TestSetVoltageBoundaryExclusiveLower(t *testing.T) {
	f := axitest.New()
	c := New(f, voltage.New())

	if err := c.SetFK(500); err != nil {
		t.Fatalf("SetFK(500): %v", err)
	}
	if _, ok := f.Regs[regmap.FKVRMBank]; ok {
		t.Errorf("SetFK(500) should be rejected (exclusive lower bound)")
	}
}

func TestSetVoltageZeroIsNoOp(t *testing.T) {
	f := axitest.New()
	c := New(f, voltage.New())

	if err := c.SetFK(0); err != nil {
		t.Fatalf("SetFK(0): %v", err)
	}
	if err := c.SetJC(0); err != nil {
		t.Fatalf("SetJC(0): %v", err)
	}
	if len(f.Regs) != 0 {
		t.Errorf("zero setpoints should write nothing, got %v", f.Regs)
	}
}
