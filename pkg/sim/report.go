package sim

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/hxrts/aura-sub001/pkg/aerr"
)

// Severity grades how bad the failure is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Urgency grades how soon it needs attention.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencySoon      Urgency = "soon"
	UrgencyRoutine   Urgency = "routine"
)

// OutputFormat selects the rendering.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatHTML     OutputFormat = "html"
	FormatJSON     OutputFormat = "json"
	FormatText     OutputFormat = "text"
)

// ExecutiveSummary is the report's leading section.
type ExecutiveSummary struct {
	Summary            string   `json:"summary"`
	Severity           Severity `json:"severity"`
	Urgency            Urgency  `json:"urgency"`
	ResolutionEstimate string   `json:"resolution_estimate"`
}

// RootCause states the classified cause with its confidence and evidence.
type RootCause struct {
	Category   CauseCategory `json:"category"`
	Confidence float64       `json:"confidence"`
	Evidence   []string      `json:"evidence,omitempty"`
}

// ChainSummary compresses one causal chain for the report.
type ChainSummary struct {
	Length       int      `json:"length"`
	FirstTick    uint64   `json:"first_tick"`
	LastTick     uint64   `json:"last_tick"`
	Participants []string `json:"participants"`
	Score        float64  `json:"score"`
}

// TechnicalAnalysis is the report's evidence section.
type TechnicalAnalysis struct {
	RootCause       RootCause      `json:"root_cause"`
	CausalChains    []ChainSummary `json:"causal_chains"`
	ComplexityScore float64        `json:"complexity_score"`
	WindowEvents    int            `json:"window_events"`
	Robustness      *float64       `json:"robustness,omitempty"`
}

// Recommendation is one ranked, actionable next step.
type Recommendation struct {
	Priority int    `json:"priority"`
	Title    string `json:"title"`
	Action   string `json:"action"`
}

// Insight is a scored observation. Only insights at or above the
// generator's confidence threshold are kept; ranking uses the weighted
// score over confidence, actionability, impact and novelty.
type Insight struct {
	Text          string  `json:"text"`
	Confidence    float64 `json:"confidence"`
	Actionability float64 `json:"actionability"`
	Impact        float64 `json:"impact"`
	Novelty       float64 `json:"novelty"`
	Score         float64 `json:"score"`
}

// TimelineEntry is one event on the report timeline.
type TimelineEntry struct {
	Tick      uint64 `json:"tick"`
	EventType string `json:"event_type"`
	Highlight bool   `json:"highlight"`
}

// Visualizations carries the optional timeline and chain diagram.
type Visualizations struct {
	Timeline []TimelineEntry `json:"timeline,omitempty"`
	Diagram  []string        `json:"diagram,omitempty"`
}

// Report is the assembled developer report.
type Report struct {
	Executive       ExecutiveSummary  `json:"executive"`
	Technical       TechnicalAnalysis `json:"technical"`
	Recommendations []Recommendation  `json:"recommendations"`
	Insights        []Insight         `json:"insights"`
	Visualizations  Visualizations    `json:"visualizations"`
}

// ReporterConfig tunes generation.
type ReporterConfig struct {
	// ConfidenceThreshold drops insights whose confidence is below it.
	ConfidenceThreshold float64
	// IncludeVisualizations toggles the timeline/diagram section.
	IncludeVisualizations bool
}

// DefaultReporterConfig mirrors the deployed defaults.
func DefaultReporterConfig() ReporterConfig {
	return ReporterConfig{ConfidenceThreshold: 0.3, IncludeVisualizations: true}
}

// Reporter assembles reports from analyses.
type Reporter struct {
	config ReporterConfig
}

// NewReporter returns a reporter with the given config.
func NewReporter(config ReporterConfig) *Reporter {
	return &Reporter{config: config}
}

// Generate assembles the full report. repro and robustness may be nil when
// shrinking or probing was skipped.
func (r *Reporter) Generate(analysis FailureAnalysis, repro *MinimalReproduction, robustness *RobustnessReport) Report {
	report := Report{
		Executive: r.executive(analysis, repro),
		Technical: r.technical(analysis, robustness),
	}
	report.Recommendations = r.recommend(analysis, robustness)
	report.Insights = r.insights(analysis, repro, robustness)
	if r.config.IncludeVisualizations {
		report.Visualizations = r.visualize(analysis)
	}
	return report
}

func (r *Reporter) executive(analysis FailureAnalysis, repro *MinimalReproduction) ExecutiveSummary {
	severity := SeverityMedium
	urgency := UrgencyRoutine
	switch analysis.Cause {
	case CauseByzantineEdgeCase, CauseStateManagement:
		severity = SeverityCritical
		urgency = UrgencyImmediate
	case CauseProtocolLogicError:
		severity = SeverityHigh
		urgency = UrgencySoon
	case CauseComplexInteraction:
		severity = SeverityHigh
	}

	estimate := "days"
	if analysis.ComplexityScore < 3 {
		estimate = "hours"
	} else if analysis.ComplexityScore > 7 {
		estimate = "weeks"
	}

	summary := fmt.Sprintf("Property %q violated at tick %d; classified as %s (confidence %.2f).",
		analysis.Violation.Property, analysis.Violation.ViolationTick, analysis.Cause, analysis.CauseConfidence)
	if repro != nil {
		summary += fmt.Sprintf(" Minimal reproduction: %d of %d events (%.0f%% reduction).",
			repro.MinimalSize, repro.OriginalSize, repro.ComplexityReduction*100)
	}
	return ExecutiveSummary{
		Summary:            summary,
		Severity:           severity,
		Urgency:            urgency,
		ResolutionEstimate: estimate,
	}
}

func (r *Reporter) technical(analysis FailureAnalysis, robustness *RobustnessReport) TechnicalAnalysis {
	var evidence []string
	for _, chain := range analysis.CausalChains {
		evidence = append(evidence, fmt.Sprintf("chain of %d events over ticks %d..%d involving %s",
			len(chain.Events), chain.Events[0].Tick, chain.Events[len(chain.Events)-1].Tick,
			strings.Join(chain.Participants, ", ")))
	}

	chains := make([]ChainSummary, 0, len(analysis.CausalChains))
	for _, chain := range analysis.CausalChains {
		chains = append(chains, ChainSummary{
			Length:       len(chain.Events),
			FirstTick:    chain.Events[0].Tick,
			LastTick:     chain.Events[len(chain.Events)-1].Tick,
			Participants: chain.Participants,
			Score:        chain.Score,
		})
	}

	technical := TechnicalAnalysis{
		RootCause: RootCause{
			Category:   analysis.Cause,
			Confidence: analysis.CauseConfidence,
			Evidence:   evidence,
		},
		CausalChains:    chains,
		ComplexityScore: analysis.ComplexityScore,
		WindowEvents:    len(analysis.CriticalWindow),
	}
	if robustness != nil {
		v := robustness.Robustness
		technical.Robustness = &v
	}
	return technical
}

func (r *Reporter) recommend(analysis FailureAnalysis, robustness *RobustnessReport) []Recommendation {
	var recs []Recommendation
	switch analysis.Cause {
	case CauseTimingIssue:
		recs = append(recs, Recommendation{Title: "Review timeout configuration",
			Action: "Audit deadlines and virtual-clock advancement in the critical window."})
	case CauseNetworkConfiguration:
		recs = append(recs, Recommendation{Title: "Reproduce under partition",
			Action: "Re-run with the observed partition schedule and verify pull-sync recovery."})
	case CauseByzantineEdgeCase:
		recs = append(recs, Recommendation{Title: "Harden validation",
			Action: "Add rejection tests for the equivocating messages in the causal chain."})
	case CauseStateManagement:
		recs = append(recs, Recommendation{Title: "Audit state transitions",
			Action: "Check the reducer and session state machine around the violation tick."})
	case CauseResourceConstraint:
		recs = append(recs, Recommendation{Title: "Raise or shed load",
			Action: "Compare the configured caps against the observed demand in the window."})
	default:
		recs = append(recs, Recommendation{Title: "Walk the minimal reproduction",
			Action: "Step through the shrunken trace event by event against the protocol definition."})
	}
	if robustness != nil && robustness.Robustness > 0.5 {
		recs = append(recs, Recommendation{Title: "Treat as systemic",
			Action: "Most perturbations still fail; fix the mechanism, not the trigger."})
	}
	for i := range recs {
		recs[i].Priority = i + 1
	}
	return recs
}

func (r *Reporter) insights(analysis FailureAnalysis, repro *MinimalReproduction, robustness *RobustnessReport) []Insight {
	var candidates []Insight
	add := func(text string, confidence, actionability, impact, novelty float64) {
		candidates = append(candidates, Insight{
			Text: text, Confidence: confidence, Actionability: actionability,
			Impact: impact, Novelty: novelty,
		})
	}

	add(fmt.Sprintf("Primary cause classified as %s.", analysis.Cause),
		analysis.CauseConfidence, 0.7, 0.8, 0.3)
	if len(analysis.CausalChains) > 0 {
		top := analysis.CausalChains[0]
		add(fmt.Sprintf("Strongest causal chain spans %d events and %d participants.",
			len(top.Events), len(top.Participants)), 0.8, 0.6, 0.6, 0.4)
	}
	if repro != nil && repro.ComplexityReduction >= 0.9 {
		add("Failure reduces to a handful of events; the trigger is narrow.", 0.9, 0.9, 0.7, 0.6)
	}
	if robustness != nil {
		if robustness.Robustness > 0.5 {
			add("Failure survives most perturbations; it is systemic, not incidental.", 0.85, 0.8, 0.9, 0.5)
		} else if robustness.Robustness < 0.2 {
			add("Failure is fragile to perturbation; suspect an exact-interleaving edge case.", 0.75, 0.6, 0.5, 0.7)
		}
	}

	// Weighted rank, then threshold.
	kept := candidates[:0]
	for _, c := range candidates {
		c.Score = 0.4*c.Confidence + 0.25*c.Actionability + 0.25*c.Impact + 0.1*c.Novelty
		if c.Confidence >= r.config.ConfidenceThreshold {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}

func (r *Reporter) visualize(analysis FailureAnalysis) Visualizations {
	var viz Visualizations
	highlight := make(map[uint64]bool)
	for _, chain := range analysis.CausalChains {
		for _, e := range chain.Events {
			highlight[e.Tick] = true
		}
	}
	for _, e := range analysis.CriticalWindow {
		viz.Timeline = append(viz.Timeline, TimelineEntry{
			Tick:      e.Tick,
			EventType: e.EventType,
			Highlight: highlight[e.Tick],
		})
	}
	for i, chain := range analysis.CausalChains {
		var hops []string
		for _, e := range chain.Events {
			hops = append(hops, fmt.Sprintf("%s@%d", e.EventType, e.Tick))
		}
		viz.Diagram = append(viz.Diagram, fmt.Sprintf("chain %d: %s", i+1, strings.Join(hops, " -> ")))
	}
	return viz
}

// Render serializes the report in the requested format.
func (r *Reporter) Render(report Report, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		raw, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return "", aerr.Wrap(aerr.CodeSerialization, err, "render report")
		}
		return string(raw), nil
	case FormatMarkdown:
		return renderMarkdown(report), nil
	case FormatHTML:
		return "<!DOCTYPE html>\n<html><body><pre>" +
			html.EscapeString(renderMarkdown(report)) + "</pre></body></html>", nil
	case FormatText:
		return renderText(report), nil
	}
	return "", aerr.Serialization("unknown output format %q", format)
}

func renderMarkdown(report Report) string {
	var b strings.Builder
	b.WriteString("# Failure Report\n\n")
	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "%s\n\n- Severity: %s\n- Urgency: %s\n- Estimated resolution: %s\n\n",
		report.Executive.Summary, report.Executive.Severity, report.Executive.Urgency,
		report.Executive.ResolutionEstimate)

	b.WriteString("## Technical Analysis\n\n")
	fmt.Fprintf(&b, "Root cause: **%s** (confidence %.2f)\n\n",
		report.Technical.RootCause.Category, report.Technical.RootCause.Confidence)
	for _, e := range report.Technical.RootCause.Evidence {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	fmt.Fprintf(&b, "\nComplexity score: %.1f over %d window events\n\n",
		report.Technical.ComplexityScore, report.Technical.WindowEvents)

	b.WriteString("## Recommendations\n\n")
	for _, rec := range report.Recommendations {
		fmt.Fprintf(&b, "%d. **%s** — %s\n", rec.Priority, rec.Title, rec.Action)
	}

	if len(report.Insights) > 0 {
		b.WriteString("\n## Insights\n\n")
		for _, insight := range report.Insights {
			fmt.Fprintf(&b, "- %s (score %.2f)\n", insight.Text, insight.Score)
		}
	}

	if len(report.Visualizations.Diagram) > 0 {
		b.WriteString("\n## Causal Chains\n\n```\n")
		for _, line := range report.Visualizations.Diagram {
			b.WriteString(line + "\n")
		}
		b.WriteString("```\n")
	}
	return b.String()
}

func renderText(report Report) string {
	md := renderMarkdown(report)
	md = strings.ReplaceAll(md, "# ", "")
	md = strings.ReplaceAll(md, "## ", "")
	md = strings.ReplaceAll(md, "**", "")
	md = strings.ReplaceAll(md, "```", "")
	return md
}
