package scenario

import (
	"testing"
	"time"

	"github.com/gregLibert/xtrace/internal/flow"
	"github.com/gregLibert/xtrace/internal/validate"
)

func row(itemIndex int, rowType string, ts time.Time) flow.Row {
	return flow.Row{Type: rowType, ItemIndex: itemIndex, Timestamp: &ts}
}

func TestRunRequiredStepMatchesWithinRange(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timeline := []flow.Row{row(0, "TAC", base), row(1, "DNS", base.Add(time.Second))}

	steps := []Step{
		{Label: "tac", Kind: "TAC", Min: 1, Max: 1, Requirement: Required},
		{Label: "dns", Kind: "DNS", Min: 1, Max: 1, Requirement: Required},
	}

	result := Run(timeline, steps, Constraints{}, nil)
	if result.Overall != OK {
		t.Fatalf("Overall = %v, want OK: %+v", result.Overall, result.Steps)
	}
}

func TestRunRequiredStepBelowMinFails(t *testing.T) {
	timeline := []flow.Row{row(0, "DNS", time.Now())}
	steps := []Step{{Label: "tac", Kind: "TAC", Min: 1, Max: 1, Requirement: Required}}

	result := Run(timeline, steps, Constraints{}, nil)
	if result.Overall != Fail || result.Steps[0].Status != Fail {
		t.Fatalf("got %+v", result)
	}
}

func TestRunOptionalStepAboveMaxWarns(t *testing.T) {
	base := time.Now()
	timeline := []flow.Row{row(0, "Refresh", base), row(1, "Refresh", base)}
	steps := []Step{{Label: "refresh", Kind: "Refresh", Min: 0, Max: 1, Requirement: Optional}}

	result := Run(timeline, steps, Constraints{}, nil)
	if result.Overall != Warn {
		t.Fatalf("Overall = %v, want Warn", result.Overall)
	}
}

func TestRunForbiddenStepPresentFails(t *testing.T) {
	timeline := []flow.Row{row(0, "Refresh", time.Now())}
	steps := []Step{{Label: "no-refresh", Kind: "Refresh", Min: 0, Max: 0, Requirement: Forbidden}}

	result := Run(timeline, steps, Constraints{}, nil)
	if result.Overall != Fail {
		t.Fatalf("Overall = %v, want Fail", result.Overall)
	}
}

func TestRunForbiddenStepNeverConsumesCursor(t *testing.T) {
	base := time.Now()
	timeline := []flow.Row{row(0, "Refresh", base), row(1, "TAC", base)}
	steps := []Step{
		{Label: "no-close", Kind: "CloseChannel", Min: 0, Max: 0, Requirement: Forbidden},
		{Label: "tac", Kind: "TAC", Min: 1, Max: 1, Requirement: Required},
	}

	result := Run(timeline, steps, Constraints{}, nil)
	if result.Steps[1].Status != OK {
		t.Fatalf("second step should still see TAC at index 1: %+v", result.Steps)
	}
}

func TestRunSequentialStepAdvancesCursorPastLastMatch(t *testing.T) {
	base := time.Now()
	timeline := []flow.Row{
		row(0, "TAC", base),
		row(1, "TAC", base),
		row(2, "DNS", base),
	}
	steps := []Step{
		{Label: "tac", Kind: "TAC", Min: 1, Max: 2, Requirement: Required},
		{Label: "dns", Kind: "DNS", Min: 1, Max: 1, Requirement: Required},
	}

	result := Run(timeline, steps, Constraints{}, nil)
	if result.Overall != OK {
		t.Fatalf("got %+v", result.Steps)
	}
	if len(result.Steps[0].ItemIndices) != 2 {
		t.Errorf("tac step should have consumed both matches: %+v", result.Steps[0])
	}
}

func TestRunGlobalScopeDoesNotAdvanceCursor(t *testing.T) {
	base := time.Now()
	timeline := []flow.Row{
		row(0, "ICCID", base),
		row(1, "TAC", base),
	}
	steps := []Step{
		{Label: "iccid-anywhere", Kind: "ICCID", Min: 1, Max: 1, Requirement: Required, Scope: ScopeGlobal},
		{Label: "tac", Kind: "TAC", Min: 1, Max: 1, Requirement: Required},
	}

	result := Run(timeline, steps, Constraints{}, nil)
	if result.Overall != OK {
		t.Fatalf("got %+v", result.Steps)
	}
}

func TestRunMaxGapViolationRaisesLaterStep(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	timeline := []flow.Row{
		row(0, "TAC", base),
		row(1, "DNS", base.Add(time.Hour)),
	}
	steps := []Step{
		{Label: "tac", Kind: "TAC", Min: 1, Max: 1, Requirement: Required},
		{Label: "dns", Kind: "DNS", Min: 1, Max: 1, Requirement: Required},
	}
	constraints := Constraints{MaxGapEnabled: true, MaxGapSeconds: 60, MaxGapOnViolation: Fail}

	result := Run(timeline, steps, constraints, nil)
	if result.Steps[1].Status != Fail {
		t.Fatalf("got %+v, want dns step raised to Fail", result.Steps[1])
	}
}

func TestRunMaxGapUnknownWhenTimestampMissing(t *testing.T) {
	timeline := []flow.Row{
		{Type: "TAC", ItemIndex: 0},
		row(1, "DNS", time.Now()),
	}
	steps := []Step{
		{Label: "tac", Kind: "TAC", Min: 1, Max: 1, Requirement: Required},
		{Label: "dns", Kind: "DNS", Min: 1, Max: 1, Requirement: Required},
	}
	constraints := Constraints{MaxGapEnabled: true, MaxGapSeconds: 60, MaxGapOnUnknown: Warn}

	result := Run(timeline, steps, constraints, nil)
	if result.Steps[1].Status != Warn {
		t.Fatalf("got %+v, want dns step raised to Warn", result.Steps[1])
	}
}

func TestRunCriticalIssueRaisesStepToAtLeastWarn(t *testing.T) {
	base := time.Now()
	timeline := []flow.Row{row(0, "TAC", base)}
	steps := []Step{{Label: "tac", Kind: "TAC", Min: 1, Max: 1, Requirement: Required}}
	issues := []validate.Issue{{Severity: validate.Critical, ItemIndex: 0}}

	result := Run(timeline, steps, Constraints{}, issues)
	if result.Steps[0].Status != Warn {
		t.Fatalf("got %+v, want Warn", result.Steps[0])
	}
}

func TestRunCriticalIssueNeverDowngradesFail(t *testing.T) {
	timeline := []flow.Row{row(0, "DNS", time.Now())}
	steps := []Step{{Label: "tac", Kind: "TAC", Min: 1, Max: 1, Requirement: Required}}
	issues := []validate.Issue{{Severity: validate.Critical, ItemIndex: 0}}

	result := Run(timeline, steps, Constraints{}, issues)
	if result.Steps[0].Status != Fail {
		t.Fatalf("got %+v, want Fail (raise never downgrades, but this step has no consumed matches to upgrade anyway)", result.Steps[0])
	}
}
