package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats <file>",
	Short: "Print summary counts for a trace file (items, pairing, sessions, issues)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

type statsView struct {
	TotalItems       int            `json:"total_items"`
	ParseWarnings    int            `json:"parse_warnings"`
	PairsPending     int            `json:"pairs_pending"`
	PairsSuccess     int            `json:"pairs_success"`
	PairsError       int            `json:"pairs_error"`
	Sessions         int            `json:"sessions"`
	SessionsByRole   map[string]int `json:"sessions_by_role"`
	Violations       int            `json:"violations"`
	ICCIDsDetected   int            `json:"iccids_detected"`
	IssuesBySeverity map[string]int `json:"issues_by_severity"`
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := loadAnalysis(args[0])
	if err != nil {
		return err
	}

	pairs := a.pipeline.Pairs(a.model)
	issues := a.pipeline.Validate(a.model, a.sessions, a.iccids)

	view := statsView{
		TotalItems:       len(a.model.Items),
		ParseWarnings:    len(a.warnings),
		Sessions:         len(a.sessions.Sessions),
		SessionsByRole:   make(map[string]int),
		Violations:       len(a.sessions.Violations),
		ICCIDsDetected:   len(a.iccids),
		IssuesBySeverity: make(map[string]int),
	}
	for _, pair := range pairs.Pairs {
		switch pair.Status.String() {
		case "Success":
			view.PairsSuccess++
		case "Error":
			view.PairsError++
		default:
			view.PairsPending++
		}
	}
	for _, sess := range a.sessions.Sessions {
		view.SessionsByRole[string(sess.DetectedRole)]++
	}
	for _, issue := range issues {
		view.IssuesBySeverity[string(issue.Severity)]++
	}

	format, err := resolveFormat()
	if err != nil {
		return err
	}
	return writeOutput(format, view, func(w io.Writer) error {
		return renderStatsText(w, view)
	})
}

func renderStatsText(w io.Writer, v statsView) error {
	lines := []struct {
		label string
		value int
	}{
		{"Total items", v.TotalItems},
		{"Parse warnings", v.ParseWarnings},
		{"Pairs (success)", v.PairsSuccess},
		{"Pairs (error)", v.PairsError},
		{"Pairs (pending)", v.PairsPending},
		{"Sessions", v.Sessions},
		{"Session violations", v.Violations},
		{"ICCIDs detected", v.ICCIDsDetected},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-20s %d\n", l.label, l.value); err != nil {
			return err
		}
	}
	for role, count := range v.SessionsByRole {
		if _, err := fmt.Fprintf(w, "  role %-10s %d\n", role, count); err != nil {
			return err
		}
	}
	for severity, count := range v.IssuesBySeverity {
		if _, err := fmt.Fprintf(w, "  issue %-10s %d\n", severity, count); err != nil {
			return err
		}
	}
	return nil
}
