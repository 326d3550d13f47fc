package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hxrts/aura-sub001/pkg/sim"
)

// traceSchema validates trace files before analysis: a JSON array of events
// with at least a tick and an event type each.
const traceSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["tick", "event_type"],
    "properties": {
      "tick": {"type": "integer", "minimum": 0},
      "event_type": {"type": "string", "minLength": 1},
      "participants": {"type": "array", "items": {"type": "string"}},
      "payload": {"type": "object"}
    }
  }
}`

func runAnalyze(args []string) error {
	cmd := flag.NewFlagSet("analyze", flag.ContinueOnError)
	tracePath := cmd.String("trace", "", "path to the trace file (JSON array of events)")
	property := cmd.String("property", "", "violated property name")
	tick := cmd.Uint64("tick", 0, "violation tick")
	format := cmd.String("format", "markdown", "output format: markdown | html | json | text")
	window := cmd.Uint64("window", 50, "critical window size in ticks")
	out := cmd.String("out", "", "output file (stdout when empty)")
	if err := cmd.Parse(args); err != nil {
		return err
	}
	if *tracePath == "" || *property == "" {
		return fmt.Errorf("analyze: -trace and -property are required")
	}

	raw, err := os.ReadFile(*tracePath)
	if err != nil {
		return fmt.Errorf("read trace: %w", err)
	}
	if err := validateTrace(raw); err != nil {
		return fmt.Errorf("trace rejected: %w", err)
	}

	trace, err := sim.ParseTrace(raw)
	if err != nil {
		return err
	}

	analyzerConfig := sim.DefaultAnalyzerConfig()
	analyzerConfig.CriticalWindowTicks = *window
	violation := sim.PropertyViolation{Property: *property, ViolationTick: *tick}
	analysis := sim.NewAnalyzer(analyzerConfig).Analyze(trace, violation)

	reporter := sim.NewReporter(sim.DefaultReporterConfig())
	report := reporter.Generate(analysis, nil, nil)
	rendered, err := reporter.Render(report, sim.OutputFormat(*format))
	if err != nil {
		return err
	}

	if *out == "" {
		fmt.Println(rendered)
		return nil
	}
	return os.WriteFile(*out, []byte(rendered), 0o644)
}

func validateTrace(raw []byte) error {
	schema, err := jsonschema.CompileString("trace.json", traceSchema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return schema.Validate(doc)
}
