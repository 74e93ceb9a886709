// Package scenario evaluates a declarative sequence of expected timeline
// rows against a flow timeline, the way Depgit-log-analyser's
// pkg/query/engine.go evaluates a declarative expression tree against a
// stream of log entries, generalized here from one predicate scanning a
// whole log to a cursor that walks the timeline once, step by step.
package scenario

import (
	"time"

	"github.com/gregLibert/xtrace/internal/flow"
	"github.com/gregLibert/xtrace/internal/validate"
)

// Scope controls whether a step's window is the whole timeline or a
// segment bounded by the cursor and the next Required step.
type Scope int

const (
	ScopeSequential Scope = iota
	ScopeGlobal
)

// Requirement is a step's cardinality class, which decides the default
// too-few/too-many outcomes (spec §4.12).
type Requirement int

const (
	Required Requirement = iota
	Optional
	Forbidden
)

// Status is a step's (or the scenario's overall) outcome, ordered worst
// last so Raise can take a plain max.
type Status int

const (
	OK Status = iota
	Warn
	Fail
)

func (s Status) String() string {
	switch s {
	case Warn:
		return "Warn"
	case Fail:
		return "Fail"
	default:
		return "OK"
	}
}

// Raise returns the worse of s and other, implementing spec §4.12's
// "raise ... never downgrades".
func (s Status) Raise(other Status) Status {
	if other > s {
		return other
	}
	return s
}

// Step is one entry of the ordered scenario: a required, optional, or
// forbidden count of timeline rows matching Kind or AnyOf, within
// [Min, Max] occurrences.
type Step struct {
	Label       string
	Kind        string
	AnyOf       []string
	Min, Max    int
	Requirement Requirement
	Scope       Scope

	// TooFew/TooMany override the default outcome (spec §4.12: "default
	// Fail for Required, Ok for Optional, Ok for Forbidden" and "default
	// Fail for Required, Warn for Optional, Fail for Forbidden unless
	// overridden"). Zero value (OK) combined with overridden=false means
	// "use the default for this Requirement".
	TooFewOverridden  bool
	TooFew            Status
	TooManyOverridden bool
	TooMany           Status
}

func (s Step) matches(rowType string) bool {
	if rowType == s.Kind {
		return true
	}
	for _, k := range s.AnyOf {
		if rowType == k {
			return true
		}
	}
	return false
}

func (s Step) defaultTooFew() Status {
	switch s.Requirement {
	case Required:
		return Fail
	default:
		return OK
	}
}

func (s Step) defaultTooMany() Status {
	switch s.Requirement {
	case Optional:
		return Warn
	case Forbidden:
		return Fail
	default:
		return Fail
	}
}

func (s Step) tooFewStatus() Status {
	if s.TooFewOverridden {
		return s.TooFew
	}
	return s.defaultTooFew()
}

func (s Step) tooManyStatus() Status {
	if s.TooManyOverridden {
		return s.TooMany
	}
	return s.defaultTooMany()
}

// Constraints are the max-gap rules applied between consecutive consumed
// steps (spec §4.12 step 3).
type Constraints struct {
	MaxGapEnabled     bool
	MaxGapSeconds     float64
	MaxGapOnUnknown   Status
	MaxGapOnViolation Status
}

// StepResult is one step's outcome.
type StepResult struct {
	Label        string
	Status       Status
	MatchedTypes []string
	ItemIndices  []int
	Reason       string

	consumedThrough int // index into rows, -1 if nothing consumed
	firstTimestamp  *time.Time
	lastTimestamp   *time.Time
}

// Result is the whole scenario's outcome: the worst of its steps.
type Result struct {
	Steps   []StepResult
	Overall Status
}

// Run evaluates steps against timeline in order, maintaining a single
// cursor per spec §4.12's algorithm, then applies the max-gap rule and
// the Critical-issue severity upgrade across the produced results.
func Run(timeline []flow.Row, steps []Step, constraints Constraints, issues []validate.Issue) *Result {
	result := &Result{}
	cursor := 0

	for idx, step := range steps {
		lo, hi := segment(timeline, cursor, steps[idx+1:])
		sr := evaluateStep(step, timeline, lo, hi)
		result.Steps = append(result.Steps, sr)

		if sr.Status != Fail && sr.consumedThrough >= 0 && step.Scope != ScopeGlobal {
			cursor = sr.consumedThrough + 1
		}
	}

	applyMaxGap(result.Steps, steps, constraints)
	applySeverityUpgrade(result.Steps, issues)

	for i := range result.Steps {
		result.Overall = result.Overall.Raise(result.Steps[i].Status)
	}
	return result
}

// segment computes a step's evaluation window: the whole timeline for
// Global scope, else [cursor, windowEnd) where windowEnd is the first
// row index matched by the next later Required step (lookahead only, does
// not itself consume).
func segment(timeline []flow.Row, cursor int, remaining []Step) (int, int) {
	end := len(timeline)
	for _, next := range remaining {
		if next.Requirement != Required {
			continue
		}
		for i := cursor; i < len(timeline); i++ {
			if next.matches(timeline[i].Type) {
				if i < end {
					end = i
				}
				break
			}
		}
		break // only the nearest subsequent Required step bounds the window
	}
	return cursor, end
}

func evaluateStep(step Step, timeline []flow.Row, lo, hi int) StepResult {
	sr := StepResult{Label: step.Label, consumedThrough: -1}
	if step.Scope == ScopeGlobal {
		lo, hi = 0, len(timeline)
	}

	var matchedIndices []int
	for i := lo; i < hi && i < len(timeline); i++ {
		if step.matches(timeline[i].Type) {
			matchedIndices = append(matchedIndices, i)
		}
	}

	count := len(matchedIndices)
	switch {
	case count < step.Min:
		sr.Status = step.tooFewStatus()
		sr.Reason = "too few matches"
	case count > step.Max:
		sr.Status = step.tooManyStatus()
		sr.Reason = "too many matches"
	default:
		sr.Status = OK
	}

	for _, i := range matchedIndices {
		sr.MatchedTypes = append(sr.MatchedTypes, timeline[i].Type)
		sr.ItemIndices = append(sr.ItemIndices, timeline[i].ItemIndex)
		if timeline[i].Timestamp != nil {
			if sr.firstTimestamp == nil {
				sr.firstTimestamp = timeline[i].Timestamp
			}
			sr.lastTimestamp = timeline[i].Timestamp
		}
	}

	if step.Requirement != Forbidden && step.Scope != ScopeGlobal && len(matchedIndices) > 0 {
		sr.consumedThrough = matchedIndices[len(matchedIndices)-1]
	}

	return sr
}

// applyMaxGap implements spec §4.12 step 3: between consecutive consumed
// (non-Global) steps, a time gap over MaxGapSeconds raises the later
// step; a missing timestamp on either side raises it to MaxGapOnUnknown
// instead.
func applyMaxGap(results []StepResult, steps []Step, c Constraints) {
	if !c.MaxGapEnabled {
		return
	}

	var prev *StepResult
	for i := range results {
		if steps[i].Scope == ScopeGlobal || results[i].consumedThrough < 0 {
			continue
		}
		if prev != nil {
			if prev.lastTimestamp == nil || results[i].firstTimestamp == nil {
				results[i].Status = results[i].Status.Raise(c.MaxGapOnUnknown)
			} else if results[i].firstTimestamp.Sub(*prev.lastTimestamp).Seconds() > c.MaxGapSeconds {
				results[i].Status = results[i].Status.Raise(c.MaxGapOnViolation)
			}
		}
		prev = &results[i]
	}
}

// applySeverityUpgrade implements spec §4.12 step 4: any Critical
// validation issue whose ItemIndex falls within a step's consumed
// matches raises that step to at least Warn.
func applySeverityUpgrade(results []StepResult, issues []validate.Issue) {
	for i := range results {
		if len(results[i].ItemIndices) == 0 {
			continue
		}
		lo, hi := results[i].ItemIndices[0], results[i].ItemIndices[len(results[i].ItemIndices)-1]
		if lo > hi {
			lo, hi = hi, lo
		}
		for _, issue := range issues {
			if issue.Severity == validate.Critical && issue.ItemIndex >= lo && issue.ItemIndex <= hi {
				results[i].Status = results[i].Status.Raise(Warn)
				break
			}
		}
	}
}
