package main

import (
	"testing"
	"time"

	"github.com/gregLibert/xtrace/internal/validate"
)

func issue(severity validate.Severity, category string, ts *time.Time) validate.Issue {
	return validate.Issue{Severity: severity, Category: category, ItemIndex: 0, Timestamp: ts}
}

func TestFilterIssuesHidesInfoByDefault(t *testing.T) {
	issues := []validate.Issue{
		issue(validate.Info, "Location Status / Normal", nil),
		issue(validate.Warning, "Location Status / No Service", nil),
	}
	got := filterIssues(issues, false, nil, nil, nil, nil)
	if len(got) != 1 || got[0].Severity != validate.Warning {
		t.Fatalf("got %+v, want only the Warning issue", got)
	}
}

func TestFilterIssuesAllIncludesInfo(t *testing.T) {
	issues := []validate.Issue{issue(validate.Info, "x", nil)}
	got := filterIssues(issues, true, nil, nil, nil, nil)
	if len(got) != 1 {
		t.Fatalf("got %d issues, want 1", len(got))
	}
}

func TestFilterIssuesSeverityOverridesDefaultInfoHiding(t *testing.T) {
	issues := []validate.Issue{issue(validate.Info, "x", nil)}
	got := filterIssues(issues, false, []string{"info"}, nil, nil, nil)
	if len(got) != 1 {
		t.Fatalf("got %d issues, want 1 (explicit --severity info requested)", len(got))
	}
}

func TestFilterIssuesBySeverityCaseInsensitive(t *testing.T) {
	issues := []validate.Issue{
		issue(validate.Critical, "a", nil),
		issue(validate.Warning, "b", nil),
	}
	got := filterIssues(issues, true, []string{"CRITICAL"}, nil, nil, nil)
	if len(got) != 1 || got[0].Severity != validate.Critical {
		t.Fatalf("got %+v", got)
	}
}

func TestFilterIssuesByCategorySubstring(t *testing.T) {
	issues := []validate.Issue{
		issue(validate.Critical, "BIP Error", nil),
		issue(validate.Critical, "State Machine", nil),
	}
	got := filterIssues(issues, true, nil, []string{"bip"}, nil, nil)
	if len(got) != 1 || got[0].Category != "BIP Error" {
		t.Fatalf("got %+v", got)
	}
}

func TestFilterIssuesDropsUndatedWhenBoundSet(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issues := []validate.Issue{
		issue(validate.Critical, "a", nil),
		issue(validate.Critical, "b", &t0),
	}
	got := filterIssues(issues, true, nil, nil, &t0, nil)
	if len(got) != 1 || got[0].Category != "b" {
		t.Fatalf("got %+v, want only the dated issue", got)
	}
}

func TestFilterIssuesSinceUntilBounds(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t0.Add(2 * time.Hour)
	issues := []validate.Issue{
		issue(validate.Critical, "early", &t0),
		issue(validate.Critical, "mid", &t1),
		issue(validate.Critical, "late", &t2),
	}
	got := filterIssues(issues, true, nil, nil, &t0, &t1)
	if len(got) != 2 || got[0].Category != "early" || got[1].Category != "mid" {
		t.Fatalf("got %+v, want early and mid only", got)
	}
}

func TestParseSinceUntilRejectsBadTimestamp(t *testing.T) {
	if _, _, err := parseSinceUntil("not-a-time", ""); err == nil {
		t.Fatal("got nil error for invalid --since")
	}
}

func TestParseSinceUntilEmptyIsNil(t *testing.T) {
	since, until, err := parseSinceUntil("", "")
	if err != nil || since != nil || until != nil {
		t.Fatalf("got (%v, %v, %v), want (nil, nil, nil)", since, until, err)
	}
}
