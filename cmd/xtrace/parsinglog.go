package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gregLibert/xtrace/internal/validate"
)

var (
	parsingLogAll        bool
	parsingLogSeverities []string
	parsingLogCategories []string
	parsingLogSince      string
	parsingLogUntil      string
)

var parsingLogCmd = &cobra.Command{
	Use:   "parsing-log <file>",
	Short: "Print the validation engine's issues for a trace file",
	Args:  cobra.ExactArgs(1),
	RunE:  runParsingLog,
}

func init() {
	parsingLogCmd.Flags().BoolVar(&parsingLogAll, "all", false, "include Info-severity issues (hidden by default)")
	parsingLogCmd.Flags().StringSliceVar(&parsingLogSeverities, "severity", nil, "only issues at this severity (info, warning, critical); repeatable")
	parsingLogCmd.Flags().StringSliceVar(&parsingLogCategories, "category", nil, "only issues whose category contains this substring; repeatable")
	parsingLogCmd.Flags().StringVar(&parsingLogSince, "since", "", "only issues timestamped at or after this RFC3339 time")
	parsingLogCmd.Flags().StringVar(&parsingLogUntil, "until", "", "only issues timestamped at or before this RFC3339 time")
}

func runParsingLog(cmd *cobra.Command, args []string) error {
	a, err := loadAnalysis(args[0])
	if err != nil {
		return err
	}

	since, until, err := parseSinceUntil(parsingLogSince, parsingLogUntil)
	if err != nil {
		return err
	}

	issues := a.pipeline.Validate(a.model, a.sessions, a.iccids)
	issues = filterIssues(issues, parsingLogAll, parsingLogSeverities, parsingLogCategories, since, until)

	format, err := resolveFormat()
	if err != nil {
		return err
	}
	return writeOutput(format, toIssueViews(issues), func(w io.Writer) error {
		return renderIssuesText(w, issues)
	})
}

func parseSinceUntil(since, until string) (*time.Time, *time.Time, error) {
	var sincePtr, untilPtr *time.Time
	if since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return nil, nil, fmt.Errorf("xtrace: parse --since %q: %w", since, err)
		}
		sincePtr = &t
	}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return nil, nil, fmt.Errorf("xtrace: parse --until %q: %w", until, err)
		}
		untilPtr = &t
	}
	return sincePtr, untilPtr, nil
}

// filterIssues implements spec §6's parsing-log filters: --all disables
// the default that hides Info severity (the validator's table produces a
// lot of Info rows on a healthy trace); --severity and --category narrow
// further, each repeatable flag OR'd together; --since/--until bound on
// Timestamp, dropping undated issues once either bound is set.
func filterIssues(issues []validate.Issue, all bool, severities, categories []string, since, until *time.Time) []validate.Issue {
	var out []validate.Issue
	for _, issue := range issues {
		if !all && issue.Severity == validate.Info && len(severities) == 0 {
			continue
		}
		if len(severities) > 0 && !matchesSeverity(issue.Severity, severities) {
			continue
		}
		if len(categories) > 0 && !matchesCategory(issue.Category, categories) {
			continue
		}
		if (since != nil || until != nil) && issue.Timestamp == nil {
			continue
		}
		if since != nil && issue.Timestamp.Before(*since) {
			continue
		}
		if until != nil && issue.Timestamp.After(*until) {
			continue
		}
		out = append(out, issue)
	}
	return out
}

func matchesSeverity(s validate.Severity, wanted []string) bool {
	for _, w := range wanted {
		if strings.EqualFold(string(s), w) {
			return true
		}
	}
	return false
}

func matchesCategory(category string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(strings.ToLower(category), strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

type issueView struct {
	Severity  string `json:"severity"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	ItemIndex int    `json:"item_index"`
	ChannelID *int   `json:"channel_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func toIssueViews(issues []validate.Issue) []issueView {
	out := make([]issueView, len(issues))
	for i, issue := range issues {
		out[i] = issueView{
			Severity:  string(issue.Severity),
			Category:  issue.Category,
			Message:   issue.Message,
			ItemIndex: issue.ItemIndex,
			ChannelID: issue.ChannelID,
			Timestamp: formatTimestamp(issue.Timestamp),
		}
	}
	return out
}

func renderIssuesText(w io.Writer, issues []validate.Issue) error {
	for _, issue := range issues {
		if _, err := fmt.Fprintf(w, "[%s] #%-5d %-24s %-20s %s\n",
			issue.Severity, issue.ItemIndex, formatTimestamp(issue.Timestamp), issue.Category, issue.Message); err != nil {
			return err
		}
	}
	return nil
}
