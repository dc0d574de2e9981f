// Package pmic implements the two independent on-board voltage
// regulator sequences: the FK wiper-style VRM and the JC PMBus-like
// I2C-addressed PMIC (spec §4.4).
package pmic

import (
	"log"
	"math"
	"time"

	"fpgaminer/internal/axi"
	"fpgaminer/internal/regmap"
	"fpgaminer/internal/voltage"
)

const (
	minMillivolts = 500 // exclusive
	maxMillivolts = 920 // inclusive

	interStepDelay = time.Second
)

// Controller programs the on-board regulators reachable through t.
type Controller struct {
	t   axi.Transport
	tbl voltage.Table
}

func New(t axi.Transport, tbl voltage.Table) *Controller {
	return &Controller{t: t, tbl: tbl}
}

// inRange reports whether mv is within the (500, 920] clamp (spec §3
// invariant 2; the lower bound is exclusive, resolving SPEC_FULL.md's
// open question 1 in favor of the invariant's exact wording).
func inRange(mv int) bool {
	return mv > minMillivolts && mv <= maxMillivolts
}

// SetFK programs the type-FK wiper-style regulator. fk == 0 is a no-op
// (leave current setpoint alone); otherwise fk must satisfy inRange.
func (c *Controller) SetFK(fk int) error {
	if fk == 0 {
		return nil
	}
	if !inRange(fk) {
		log.Printf("pmic: fkVCCINT %dmV out of bounds (500, 920], write skipped", fk)
		return nil
	}

	vid := c.tbl.ClosestVID(float64(fk) / 1000.0)

	if err := c.t.Write(0x1, regmap.FKVRMBank, true); err != nil { // soft reset
		return err
	}
	setup := []byte{byte(vid), 0x00, 0x00}
	if err := c.t.BulkWrite(setup, regmap.FKVRMBank+0x4, false); err != nil {
		return err
	}
	return c.t.Write(0x1, regmap.FKVRMBank+0x8, true) // start
}

// SetJC programs the type-JC PMIC via three PMBus-like I2C
// transactions: two "hot-fix" transactions (PID parameters and
// OV_FAULT for the VCCBRAM/VCCINT rails) followed by a VOUT_COMMAND
// transaction carrying the encoded setpoint.
func (c *Controller) SetJC(jc int) error {
	if jc == 0 {
		return nil
	}
	if !inRange(jc) {
		log.Printf("pmic: jcVCCINT %dmV out of bounds (500, 920], write skipped", jc)
		return nil
	}

	if err := c.sendI2CTransaction(0x01, []byte{0x30, 0x9C}); err != nil { // hot-fix: PID params
		return err
	}
	time.Sleep(interStepDelay)

	if err := c.sendI2CTransaction(0x02, []byte{0x40, 0x7F}); err != nil { // hot-fix: OV_FAULT
		return err
	}
	time.Sleep(interStepDelay)

	vEnc := uint16(math.Round(float64(jc) / 1000.0 * 256))
	if err := c.sendI2CTransaction(0x21, []byte{byte(vEnc >> 8), byte(vEnc)}); err != nil { // VOUT_COMMAND
		return err
	}
	time.Sleep(interStepDelay)

	return nil
}

// sendI2CTransaction pushes the PMIC address, command byte and payload
// to the TX-FIFO with start/stop framing bits, then triggers the
// transaction.
func (c *Controller) sendI2CTransaction(cmd byte, payload []byte) error {
	bytes := append([]byte{regmap.JCPMICAddr << 1, cmd}, payload...)
	for i, b := range bytes {
		word := uint32(b)
		if i == 0 {
			word |= regmap.JCI2CStartBit
		}
		if i == len(bytes)-1 {
			word |= regmap.JCI2CStopBit
		}
		if err := c.t.Write(word, regmap.JCTxFIFO, true); err != nil {
			return err
		}
	}
	return c.t.Write(1, regmap.JCTrigger, true)
}
