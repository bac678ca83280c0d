package cascadetest

import (
	"context"
	"time"
)

// Outcome is one scenario's graded result, mirroring the teacher's
// BenchmarkResult (name, pass/fail, latency, explanatory message) but
// without the token/parser fields that only made sense for ReAct grading.
type Outcome struct {
	ID      string
	Name    string
	Passed  bool
	Detail  string
	Latency time.Duration
}

// Summary aggregates a Suite run (spec §8: every scenario's expectation
// must hold).
type Summary struct {
	Total    int
	Passed   int
	Failed   int
	Outcomes []Outcome
}

// Run executes every scenario in order and grades it, mirroring the
// teacher's Evaluator.RunBenchmark loop but over acceptance scenarios
// instead of ReAct tool-call fixtures.
func Run(ctx context.Context, scenarios []Scenario) Summary {
	summary := Summary{Outcomes: make([]Outcome, 0, len(scenarios))}

	for _, sc := range scenarios {
		start := time.Now()
		result, err, drafter, verifier := sc.Run(ctx)
		latency := time.Since(start)

		draftCalls, verifyCalls := 0, 0
		if drafter != nil {
			draftCalls = drafter.attempts()
		}
		if verifier != nil {
			verifyCalls = verifier.attempts()
		}

		passed, detail := sc.Check(result, err, draftCalls, verifyCalls)
		outcome := Outcome{ID: sc.ID, Name: sc.Name, Passed: passed, Detail: detail, Latency: latency}
		summary.Outcomes = append(summary.Outcomes, outcome)
		summary.Total++
		if passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	return summary
}
