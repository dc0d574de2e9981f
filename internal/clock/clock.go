// Package clock implements the FPGA core clock controller: reading the
// PLL's current frequency, programming a new output divider, waiting
// for relock, and preserving mining registers a relock clobbers
// (spec §4.3).
package clock

import (
	"fmt"
	"log"
	"math"
	"time"

	"fpgaminer/internal/axi"
	"fpgaminer/internal/regmap"
)

const (
	vcoBaseMHz    = 200
	pllLockPollIterations = 1000
	pllLockPollInterval   = time.Millisecond
)

// Controller programs the PLL reachable through t.
type Controller struct {
	t axi.Transport
}

func New(t axi.Transport) *Controller { return &Controller{t: t} }

// savedRegs snapshots the three mining registers a relock clobbers.
type savedRegs struct {
	nItems  uint32
	rnItems uint32
	dagPwr  uint32
}

func (c *Controller) snapshot() (savedRegs, error) {
	var s savedRegs
	var err error
	if s.nItems, err = c.t.Read(regmap.NItems); err != nil {
		return s, err
	}
	if s.rnItems, err = c.t.Read(regmap.RNItems); err != nil {
		return s, err
	}
	if s.dagPwr, err = c.t.Read(regmap.DAGGenPower); err != nil {
		return s, err
	}
	return s, nil
}

func (c *Controller) restore(s savedRegs) error {
	if err := c.t.Write(s.nItems, regmap.NItems, true); err != nil {
		return err
	}
	if err := c.t.Write(s.rnItems, regmap.RNItems, true); err != nil {
		return err
	}
	return c.t.Write(s.dagPwr, regmap.DAGGenPower, true)
}

// decodedPLL is the VCO/divider state decoded from the PLL registers.
type decodedPLL struct {
	vco      float64
	div      float64
	multInt  uint32
	multFrac uint32
}

func (c *Controller) readPLL() (decodedPLL, error) {
	vcoWord, err := c.t.Read(regmap.VCOReg)
	if err != nil {
		return decodedPLL{}, err
	}
	clk0Word, err := c.t.Read(regmap.Clock0Reg)
	if err != nil {
		return decodedPLL{}, err
	}

	mult := vcoWord >> 16
	frac := vcoWord & 0xFFFF
	vco := float64(vcoBaseMHz) * (float64(mult) + float64(frac)/1000.0)

	intPart := clk0Word >> 16
	fracPart := clk0Word & 0xFFFF
	div := float64(intPart) + float64(fracPart)/1000.0

	return decodedPLL{vco: vco, div: div, multInt: mult, multFrac: frac}, nil
}

// ceilToEighth rounds up to the nearest 1/8 step.
func ceilToEighth(x float64) float64 {
	return math.Ceil(x*8) / 8
}

// Get is equivalent to Set(-1): a read-only query of the current clock.
func (c *Controller) Get() (float64, error) {
	return c.Set(-1)
}

// Set programs target MHz and returns the resulting clock. target == -1
// performs a read-only query. target < -1 issues the stock-reset
// sequence. target > 0 computes and writes a new divider.
func (c *Controller) Set(target float64) (float64, error) {
	pll, err := c.readPLL()
	if err != nil {
		return 0, fmt.Errorf("clock: read pll: %w", err)
	}

	if target == -1 {
		return pll.vco / pll.div, nil
	}

	saved, err := c.snapshot()
	if err != nil {
		return 0, fmt.Errorf("clock: snapshot mining registers: %w", err)
	}
	if err := c.t.Write(0xFFFFFFFF, regmap.DAGGenPower, true); err != nil {
		return 0, fmt.Errorf("clock: force dag-gen on: %w", err)
	}

	var result float64
	switch {
	case target > 0:
		desiredDiv := ceilToEighth(pll.vco / (target + 1))
		if desiredDiv < 2.0 {
			return 0, fmt.Errorf("clock: desired divider %.3f below minimum 2.0", desiredDiv)
		}
		intPart := uint32(desiredDiv)
		fracPart := uint32(math.Round((desiredDiv - float64(intPart)) * 1000))
		divWord := (intPart << 16) | (fracPart & 0xFFFF)

		vcoWord := (pll.multInt << 16) | (pll.multFrac & 0xFFFF)
		if err := c.t.Write(vcoWord, regmap.VCOReg, true); err != nil {
			return 0, fmt.Errorf("clock: rewrite vco: %w", err)
		}
		if err := c.t.Write(divWord, regmap.Clock0Reg, true); err != nil {
			return 0, fmt.Errorf("clock: write divider: %w", err)
		}
		if err := c.t.Write(0x7, regmap.PLLControl, true); err != nil {
			return 0, fmt.Errorf("clock: pulse control (0x7): %w", err)
		}
		if err := c.t.Write(0x3, regmap.PLLControl, true); err != nil {
			return 0, fmt.Errorf("clock: pulse control (0x3): %w", err)
		}
		result = math.Floor(pll.vco / desiredDiv)

	case target < -1:
		if err := c.t.Write(0x5, regmap.PLLControl, true); err != nil {
			return 0, fmt.Errorf("clock: stock reset (0x5): %w", err)
		}
		if err := c.t.Write(0x1, regmap.PLLControl, true); err != nil {
			return 0, fmt.Errorf("clock: stock reset (0x1): %w", err)
		}
		time.Sleep(10 * time.Millisecond)
		if err := c.t.Write(0xA, regmap.ClockReset, true); err != nil {
			return 0, fmt.Errorf("clock: stock reset (0xA): %w", err)
		}
		result, err = c.Get()
		if err != nil {
			return 0, err
		}

	default: // target == 0, nothing to program
		result = pll.vco / pll.div
	}

	locked := false
	for i := 0; i < pllLockPollIterations; i++ {
		status, err := c.t.Read(regmap.PLLLock)
		if err != nil {
			return 0, fmt.Errorf("clock: poll lock: %w", err)
		}
		if status&0x1 != 0 {
			locked = true
			break
		}
		time.Sleep(pllLockPollInterval)
	}
	if !locked {
		log.Printf("clock: PLL never reported lock after relock attempt")
	}

	if err := c.restore(saved); err != nil {
		return 0, fmt.Errorf("clock: restore mining registers: %w", err)
	}

	return result, nil
}
