package sim

import (
	"sort"
	"strings"
)

// CauseCategory is the advisory classification of a failure's primary
// cause. The authoritative cause remains the trace itself.
type CauseCategory string

const (
	CauseProtocolLogicError   CauseCategory = "protocol_logic_error"
	CauseTimingIssue          CauseCategory = "timing_issue"
	CauseNetworkConfiguration CauseCategory = "network_configuration"
	CauseByzantineEdgeCase    CauseCategory = "byzantine_edge_case"
	CauseStateManagement      CauseCategory = "state_management"
	CauseResourceConstraint   CauseCategory = "resource_constraint"
	CauseComplexInteraction   CauseCategory = "complex_interaction"
)

// CausalChain is a sequence of events connected by participant overlap and
// temporal proximity, ending near the violation.
type CausalChain struct {
	Events       []TraceEvent `json:"events"`
	Participants []string     `json:"participants"`
	Score        float64      `json:"score"`
}

// AnalyzerConfig bounds the failure analyzer.
type AnalyzerConfig struct {
	// CriticalWindowTicks is how far before the violation the analyzer
	// looks for causes.
	CriticalWindowTicks uint64
	// MaxChainGap is the largest tick distance two events may have and
	// still be linked in one chain.
	MaxChainGap uint64
	// MaxCausalChains caps the chains reported.
	MaxCausalChains int
}

// DefaultAnalyzerConfig mirrors the deployed defaults.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{CriticalWindowTicks: 50, MaxChainGap: 10, MaxCausalChains: 5}
}

// FailureAnalysis is the analyzer's output.
type FailureAnalysis struct {
	Violation       PropertyViolation `json:"violation"`
	CriticalWindow  Trace             `json:"critical_window"`
	CausalChains    []CausalChain     `json:"causal_chains"`
	Cause           CauseCategory     `json:"cause"`
	CauseConfidence float64           `json:"cause_confidence"`
	ComplexityScore float64           `json:"complexity_score"`
}

// Analyzer builds failure analyses from traces.
type Analyzer struct {
	config AnalyzerConfig
}

// NewAnalyzer returns an analyzer with the given config.
func NewAnalyzer(config AnalyzerConfig) *Analyzer {
	return &Analyzer{config: config}
}

// Analyze extracts the critical window, builds candidate causal chains,
// classifies the primary cause and scores complexity. Pure: no I/O.
func (a *Analyzer) Analyze(trace Trace, violation PropertyViolation) FailureAnalysis {
	from := uint64(0)
	if violation.ViolationTick > a.config.CriticalWindowTicks {
		from = violation.ViolationTick - a.config.CriticalWindowTicks
	}
	window := trace.Window(from, violation.ViolationTick)

	chains := a.buildChains(window)
	cause, confidence := a.classify(window, chains)

	return FailureAnalysis{
		Violation:       violation,
		CriticalWindow:  window,
		CausalChains:    chains,
		Cause:           cause,
		CauseConfidence: confidence,
		ComplexityScore: a.complexity(window, chains),
	}
}

// buildChains links window events whose participants overlap and whose
// ticks are close, walking backwards from the latest events.
func (a *Analyzer) buildChains(window Trace) []CausalChain {
	used := make([]bool, len(window))
	var chains []CausalChain

	for i := len(window) - 1; i >= 0; i-- {
		if used[i] {
			continue
		}
		chain := []int{i}
		used[i] = true
		tail := i
		for k := i - 1; k >= 0; k-- {
			if used[k] {
				continue
			}
			if window[tail].Tick-window[k].Tick > a.config.MaxChainGap {
				break
			}
			if participantOverlap(window[tail].Participants, window[k].Participants) {
				chain = append(chain, k)
				used[k] = true
				tail = k
			}
		}
		if len(chain) < 2 {
			continue
		}

		// Restore chronological order.
		sort.Ints(chain)
		events := make(Trace, 0, len(chain))
		participantSet := make(map[string]bool)
		for _, idx := range chain {
			events = append(events, window[idx])
			for _, p := range window[idx].Participants {
				participantSet[p] = true
			}
		}
		participants := make([]string, 0, len(participantSet))
		for p := range participantSet {
			participants = append(participants, p)
		}
		sort.Strings(participants)

		span := events[len(events)-1].Tick - events[0].Tick + 1
		chains = append(chains, CausalChain{
			Events:       events,
			Participants: participants,
			Score:        float64(len(events)) / float64(span),
		})
	}

	sort.SliceStable(chains, func(i, j int) bool { return chains[i].Score > chains[j].Score })
	if len(chains) > a.config.MaxCausalChains {
		chains = chains[:a.config.MaxCausalChains]
	}
	return chains
}

// classify scores each cause category against event-type markers in the
// window and returns the winner with a confidence in [0,1].
func (a *Analyzer) classify(window Trace, chains []CausalChain) (CauseCategory, float64) {
	scores := map[CauseCategory]float64{}
	for _, e := range window {
		et := strings.ToLower(e.EventType)
		switch {
		case strings.Contains(et, "timeout") || strings.Contains(et, "delay") || strings.Contains(et, "clock"):
			scores[CauseTimingIssue] += 1
		case strings.Contains(et, "partition") || strings.Contains(et, "drop") || strings.Contains(et, "disconnect"):
			scores[CauseNetworkConfiguration] += 1
		case strings.Contains(et, "byzantine") || strings.Contains(et, "equivocat") || strings.Contains(et, "malicious"):
			scores[CauseByzantineEdgeCase] += 1.5
		case strings.Contains(et, "state") || strings.Contains(et, "corrupt") || strings.Contains(et, "divergence"):
			scores[CauseStateManagement] += 1
		case strings.Contains(et, "exhaust") || strings.Contains(et, "limit") || strings.Contains(et, "capacity"):
			scores[CauseResourceConstraint] += 1
		}
	}
	if len(chains) >= 3 {
		scores[CauseComplexInteraction] += float64(len(chains)) * 0.5
	}

	best := CauseProtocolLogicError
	bestScore := 0.0
	for _, category := range []CauseCategory{
		CauseTimingIssue, CauseNetworkConfiguration, CauseByzantineEdgeCase,
		CauseStateManagement, CauseResourceConstraint, CauseComplexInteraction,
	} {
		if scores[category] > bestScore {
			best = category
			bestScore = scores[category]
		}
	}
	if bestScore == 0 || len(window) == 0 {
		return CauseProtocolLogicError, 0.4
	}
	confidence := bestScore / float64(len(window))
	if confidence > 1 {
		confidence = 1
	}
	return best, confidence
}

// complexity grows with window size, chain count and participant spread.
func (a *Analyzer) complexity(window Trace, chains []CausalChain) float64 {
	participants := make(map[string]bool)
	for _, e := range window {
		for _, p := range e.Participants {
			participants[p] = true
		}
	}
	score := float64(len(window))*0.1 + float64(len(chains))*1.5 + float64(len(participants))*0.5
	if score > 10 {
		score = 10
	}
	return score
}
