package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// Scenario describes one simulation run: node count, seed, how long to run
// and which faults to inject.
type Scenario struct {
	Name   string `yaml:"name"`
	Seed   uint64 `yaml:"seed"`
	Nodes  int    `yaml:"nodes"`
	Ticks  uint64 `yaml:"ticks"`
	Faults []struct {
		Kind string `yaml:"kind"` // drop, delay, partition
		Tick uint64 `yaml:"tick"`
		Node int    `yaml:"node"`
	} `yaml:"faults,omitempty"`

	// Analyzer knobs, optional.
	CriticalWindowTicks uint64  `yaml:"critical_window_ticks,omitempty"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold,omitempty"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeStorage, err, "read scenario %s", path)
	}
	var s Scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, aerr.Wrap(aerr.CodeSerialization, err, "parse scenario %s", path)
	}
	if s.Nodes <= 0 {
		s.Nodes = 3
	}
	if s.Ticks == 0 {
		s.Ticks = 100
	}
	return &s, nil
}
