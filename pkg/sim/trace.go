// Package sim is the deterministic-simulation debugger: it consumes
// recorded event traces, identifies causal chains behind property
// violations, shrinks failing traces to minimal reproductions, probes their
// robustness, and renders developer reports. The pipeline is pure with
// respect to its input trace; re-simulation happens behind the Runner
// interface.
package sim

import (
	"encoding/json"
	"sort"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// TraceEvent is one recorded simulation event.
type TraceEvent struct {
	Tick         uint64                 `json:"tick"`
	EventType    string                 `json:"event_type"`
	Participants []string               `json:"participants,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// Trace is an ordered event recording.
type Trace []TraceEvent

// PropertyViolation marks where a checked property failed during a run.
type PropertyViolation struct {
	Property       string                 `json:"property"`
	ViolationTick  uint64                 `json:"violation_tick"`
	ViolationState map[string]interface{} `json:"violation_state,omitempty"`
}

// ParseTrace decodes a canonical JSON array of events.
func ParseTrace(raw []byte) (Trace, error) {
	var trace Trace
	if err := json.Unmarshal(raw, &trace); err != nil {
		return nil, aerr.Wrap(aerr.CodeSerialization, err, "parse trace")
	}
	sort.SliceStable(trace, func(i, j int) bool { return trace[i].Tick < trace[j].Tick })
	return trace, nil
}

// Encode renders the trace as a canonical JSON array.
func (t Trace) Encode() ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, aerr.Wrap(aerr.CodeSerialization, err, "encode trace")
	}
	return raw, nil
}

// Window returns the events with ticks in [from, to].
func (t Trace) Window(from, to uint64) Trace {
	var out Trace
	for _, e := range t {
		if e.Tick >= from && e.Tick <= to {
			out = append(out, e)
		}
	}
	return out
}

// Runner re-simulates a trace and reports the violation it produces, if
// any. The shrinker and focused tester drive it; implementations must be
// deterministic for shrinking to converge.
type Runner interface {
	Run(trace Trace) (*PropertyViolation, error)
}

// sameViolation reports whether a re-run reproduced the original failure.
func sameViolation(a *PropertyViolation, b *PropertyViolation) bool {
	return a != nil && b != nil && a.Property == b.Property
}

func participantOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
