// Package hashcore holds the two low-level hashcore control sequences
// shared by the epoch initializer, the search loop's exit path, and the
// telemetry safety shutdown (spec §4.5 step 2, §4.6 step 5, §4.8): a
// soft ramp-down stop and a DAG-gen power-down.
package hashcore

import (
	"log"

	"fpgaminer/internal/axi"
	"fpgaminer/internal/regmap"
)

const rampSteps = 8

// StopSoft reads the current intensity byte from the core-flags register,
// ramps it down to zero over rampSteps equal steps, then resets the core.
// If the read fails, it falls back to a single hard reset write.
func StopSoft(t axi.Transport, l *log.Logger) error {
	word, err := t.Read(regmap.CoreFlags)
	if err != nil {
		if l != nil {
			l.Printf("hashcore: read intensity failed (%v), falling back to hard reset", err)
		}
		return t.Write(0, regmap.CoreControl, true)
	}

	intensity := word >> 24
	for step := rampSteps - 1; step >= 0; step-- {
		v := (intensity * uint32(step)) / rampSteps
		ramped := (word &^ 0xFF000000) | (v << 24)
		if err := t.Write(ramped, regmap.CoreFlags, true); err != nil {
			return err
		}
	}
	return t.Write(0, regmap.CoreControl, true)
}

// PowerDownDAGGen writes the DAG generator's power-off value.
func PowerDownDAGGen(t axi.Transport) error {
	return t.Write(0, regmap.DAGGenPower, true)
}
