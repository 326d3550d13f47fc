package sim

import (
	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// MinimalReproduction is the shrinker's output: the smallest trace found
// that still reproduces the violation.
type MinimalReproduction struct {
	Trace               Trace             `json:"trace"`
	Violation           PropertyViolation `json:"violation"`
	OriginalSize        int               `json:"original_size"`
	MinimalSize         int               `json:"minimal_size"`
	ComplexityReduction float64           `json:"complexity_reduction"`
	Iterations          int               `json:"iterations"`
}

// Shrinker minimizes failing traces by delta debugging: drop chunks of the
// trace, re-simulate, and keep any strictly smaller trace that still fires
// the same violation. Termination is guaranteed because every accepted
// step strictly reduces the trace size.
type Shrinker struct {
	runner        Runner
	maxIterations int
}

// NewShrinker wraps a runner. maxIterations bounds total re-simulations.
func NewShrinker(runner Runner, maxIterations int) *Shrinker {
	if maxIterations <= 0 {
		maxIterations = 1000
	}
	return &Shrinker{runner: runner, maxIterations: maxIterations}
}

// Shrink reduces trace to a minimal reproduction of violation. The input
// trace must already reproduce it; otherwise Internal is returned.
func (s *Shrinker) Shrink(trace Trace, violation PropertyViolation) (MinimalReproduction, error) {
	result := MinimalReproduction{OriginalSize: len(trace), Violation: violation}

	observed, err := s.runner.Run(trace)
	if err != nil {
		return result, aerr.Wrap(aerr.CodeInternal, err, "baseline run")
	}
	if !sameViolation(&violation, observed) {
		return result, aerr.Internal("trace does not reproduce violation %q", violation.Property)
	}

	current := trace
	iterations := 0
	granularity := 2

	for granularity <= len(current) && iterations < s.maxIterations {
		chunk := len(current) / granularity
		if chunk == 0 {
			break
		}
		reduced := false

		for start := 0; start+chunk <= len(current); start += chunk {
			candidate := make(Trace, 0, len(current)-chunk)
			candidate = append(candidate, current[:start]...)
			candidate = append(candidate, current[start+chunk:]...)
			if len(candidate) >= len(current) {
				continue
			}

			iterations++
			observed, err := s.runner.Run(candidate)
			if err != nil || !sameViolation(&violation, observed) {
				if iterations >= s.maxIterations {
					break
				}
				continue
			}

			// Accepted: strictly smaller and still failing.
			current = candidate
			granularity = 2
			reduced = true
			break
		}

		if !reduced {
			granularity *= 2
		}
	}

	result.Trace = current
	result.MinimalSize = len(current)
	result.Iterations = iterations
	if result.OriginalSize > 0 {
		result.ComplexityReduction = 1 - float64(result.MinimalSize)/float64(result.OriginalSize)
	}
	return result, nil
}
