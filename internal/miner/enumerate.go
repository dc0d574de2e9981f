package miner

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	defaultPort       = 2000
	defaultMemoryHint = uint64(8) << 30 // 8 GiB
)

// DeviceDescriptor is an immutable value produced by enumeration.
type DeviceDescriptor struct {
	Host       string
	Port       int
	Name       string
	UniqueID   string
	Kind       string
	MemoryHint uint64
	TargetClk  float64
}

// Enumerate expands Settings.Hosts into one DeviceDescriptor per logical
// device (spec §4.10). If exactly one host is given in
// "host:startPort-endPort" form, it expands into one descriptor per port
// in that range; otherwise each entry is a single device.
func Enumerate(hostSpecs []string) ([]DeviceDescriptor, error) {
	if len(hostSpecs) == 1 {
		if host, start, end, ok := parseRange(hostSpecs[0]); ok {
			descs := make([]DeviceDescriptor, 0, end-start+1)
			for i, port := 0, start; port <= end; i, port = i+1, port+1 {
				descs = append(descs, newDescriptor(host, port, i))
			}
			return descs, nil
		}
	}

	descs := make([]DeviceDescriptor, 0, len(hostSpecs))
	for i, spec := range hostSpecs {
		host, port, err := parseSingle(spec)
		if err != nil {
			return nil, err
		}
		descs = append(descs, newDescriptor(host, port, i))
	}
	return descs, nil
}

func newDescriptor(host string, port, index int) DeviceDescriptor {
	return DeviceDescriptor{
		Host:       host,
		Port:       port,
		Name:       fmt.Sprintf("%s:%d", host, port),
		UniqueID:   fmt.Sprintf("sqrl-%d", index),
		Kind:       "fpga",
		MemoryHint: defaultMemoryHint,
	}
}

// parseRange recognizes "host:startPort-endPort". ok is false for any
// other shape, including a plain "host:port".
func parseRange(spec string) (host string, start, end int, ok bool) {
	hostPart, portPart, found := strings.Cut(spec, ":")
	if !found {
		return "", 0, 0, false
	}
	lo, hi, hasRange := strings.Cut(portPart, "-")
	if !hasRange {
		return "", 0, 0, false
	}
	startPort, err := strconv.Atoi(lo)
	if err != nil {
		return "", 0, 0, false
	}
	endPort, err := strconv.Atoi(hi)
	if err != nil || endPort < startPort {
		return "", 0, 0, false
	}
	return hostPart, startPort, endPort, true
}

// parseSingle recognizes "host" or "host:port", defaulting to port 2000.
func parseSingle(spec string) (host string, port int, err error) {
	hostPart, portPart, found := strings.Cut(spec, ":")
	if !found {
		return spec, defaultPort, nil
	}
	port, err = strconv.Atoi(portPart)
	if err != nil {
		return "", 0, fmt.Errorf("miner: invalid host spec %q: %w", spec, err)
	}
	return hostPart, port, nil
}
