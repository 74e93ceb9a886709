package main

import (
	"testing"

	"github.com/gregLibert/xtrace/internal/scenario"
)

func TestToScenarioViewCopiesStepsAndOverall(t *testing.T) {
	result := &scenario.Result{
		Overall: scenario.Warn,
		Steps: []scenario.StepResult{
			{Label: "tac", Status: scenario.OK, MatchedTypes: []string{"TAC"}, ItemIndices: []int{0}},
			{Label: "dns", Status: scenario.Warn, Reason: "too many matches", ItemIndices: []int{1, 2}},
		},
	}

	view := toScenarioView(result)
	if view.Overall != "Warn" {
		t.Fatalf("Overall = %q, want Warn", view.Overall)
	}
	if len(view.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(view.Steps))
	}
	if view.Steps[0].Label != "tac" || view.Steps[0].Status != "OK" {
		t.Errorf("step0 = %+v", view.Steps[0])
	}
	if view.Steps[1].Reason != "too many matches" || len(view.Steps[1].ItemIndices) != 2 {
		t.Errorf("step1 = %+v", view.Steps[1])
	}
}
