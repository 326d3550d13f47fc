package sim

// Mutation names one perturbation applied to a minimal reproduction.
type Mutation string

const (
	MutationDropEvent         Mutation = "drop_event"
	MutationShiftTiming       Mutation = "shift_timing"
	MutationRemoveParticipant Mutation = "remove_participant"
)

// MutationResult records whether one mutant still reproduced the failure.
type MutationResult struct {
	Mutation   Mutation `json:"mutation"`
	Detail     string   `json:"detail"`
	Reproduced bool     `json:"reproduced"`
}

// RobustnessReport estimates how sensitive the failure is to the exact
// reproduction: a failure reproduced by most mutants is robust (systemic);
// one that only fires on the exact trace is fragile (edge case).
type RobustnessReport struct {
	Mutants    int              `json:"mutants"`
	Reproduced int              `json:"reproduced"`
	Robustness float64          `json:"robustness"`
	Results    []MutationResult `json:"results"`
}

// FocusedTester perturbs a minimal reproduction and re-runs it.
type FocusedTester struct {
	runner Runner
}

// NewFocusedTester wraps a runner.
func NewFocusedTester(runner Runner) *FocusedTester {
	return &FocusedTester{runner: runner}
}

// Probe applies the standard mutation set to the reproduction and reports
// the fraction of mutants still failing.
func (f *FocusedTester) Probe(repro MinimalReproduction) RobustnessReport {
	report := RobustnessReport{}

	record := func(mutation Mutation, detail string, trace Trace) {
		report.Mutants++
		observed, err := f.runner.Run(trace)
		reproduced := err == nil && sameViolation(&repro.Violation, observed)
		if reproduced {
			report.Reproduced++
		}
		report.Results = append(report.Results, MutationResult{
			Mutation:   mutation,
			Detail:     detail,
			Reproduced: reproduced,
		})
	}

	// Drop each event in turn.
	for i := range repro.Trace {
		mutant := make(Trace, 0, len(repro.Trace)-1)
		mutant = append(mutant, repro.Trace[:i]...)
		mutant = append(mutant, repro.Trace[i+1:]...)
		record(MutationDropEvent, repro.Trace[i].EventType, mutant)
	}

	// Shift every tick later by a constant delta.
	shifted := make(Trace, len(repro.Trace))
	for i, e := range repro.Trace {
		e.Tick += 5
		shifted[i] = e
	}
	record(MutationShiftTiming, "+5 ticks", shifted)

	// Remove each participant wholesale.
	for _, participant := range collectParticipants(repro.Trace) {
		var mutant Trace
		for _, e := range repro.Trace {
			if !contains(e.Participants, participant) {
				mutant = append(mutant, e)
			}
		}
		record(MutationRemoveParticipant, participant, mutant)
	}

	if report.Mutants > 0 {
		report.Robustness = float64(report.Reproduced) / float64(report.Mutants)
	}
	return report
}

func collectParticipants(trace Trace) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range trace {
		for _, p := range e.Participants {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
