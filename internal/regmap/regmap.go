// Package regmap is the symbolic register table for the FPGA mining
// core's AXI-lite register map. It is consumed by internal/clock,
// internal/pmic, internal/epoch, internal/search, internal/telemetry,
// internal/hashcore and internal/miner so that no register address is
// ever re-declared.
package regmap

const (
	// Identification.
	DeviceType       = 0x0000
	BitstreamVersion = 0x0008
	DNALow           = 0x1000
	DNAMid           = 0x1008
	DNAHigh          = 0x7000

	// Die temperature / voltage telemetry.
	TempRaw    = 0x3400
	VoltageRaw = 0x3404

	// DAG generator.
	DAGGenControl    = 0x4000 // bit 1 = done
	NumParentNodes   = 0x4008 // also DAG progress while generating
	MixerStartBase   = 0x400C // + 8*i
	MixerEndBase     = 0x4010 // + 8*i
	EpochTag         = 0x40B8 // bit 31 = valid, low 16 = epoch
	CacheBuildCtrl   = 0x40BC
	CacheSeed        = 0x40C0 // 32 bytes, byte-swapped bulk write
	DAGGenPower      = 0xB000
	mixerStrideBytes = 8
)

// MixerStart returns the start-range register address for mixer i.
func MixerStart(i int) uint32 { return MixerStartBase + uint32(i)*mixerStrideBytes }

// MixerEnd returns the end-range register address for mixer i.
func MixerEnd(i int) uint32 { return MixerEndBase + uint32(i)*mixerStrideBytes }

const (
	// Hashcore / search.
	Header          = 0x5000 // 32 bytes, 0x5000..0x501C
	Boundary        = 0x5020 // 32 bytes, 0x5020..0x503C
	NItems          = 0x5040
	TargetCheckHigh = 0x5044
	TargetCheckLow  = 0x5048
	StartNonceLow   = 0x5064
	StartNonceHigh  = 0x5068
	CoreControl     = 0x506C // 0x00010001 start+irq, 0x00010000 clear-nonce, 0 reset
	CoreFlags       = 0x5080 // intensity/patience bitfield
	StallCounter    = 0x5084
	RNItems         = 0x5088 // reciprocal of NItems

	// HBM.
	HBMStatus = 0x7008

	// Clock / PLL.
	ClockReset  = 0x8000
	PLLLock     = 0x8004 // bit 0 = locked
	VCOReg      = 0x8200
	Clock0Reg   = 0x8208
	PLLControl  = 0x825C

	// FK VRM bank (wiper-style regulator) and JC PMIC bank (PMBus-like I2C).
	FKVRMBank  = 0x9000
	JCPMICBank = 0xA000
	JCTxFIFO   = 0xA108
	JCTrigger  = 0xA100
)

// JC I2C bit markers and target address, named separately since they are
// bit flags within the JCPMICBank transaction rather than addresses.
const (
	JCI2CStopBit  = 0x200
	JCI2CStartBit = 0x100
	JCPMICAddr    = 0x4D
)

// CoreControlStart is the value written to CoreControl (0x506C) to start
// the hashcore with interrupt delivery enabled.
const CoreControlStart = 0x00010001

// CoreControlClearNonce clears the nonce-found condition without a full
// reset.
const CoreControlClearNonce = 0x00010000

// InterruptMaskNonce is the interrupt mask bit carrying nonce candidates.
const InterruptMaskNonce = 0x1
