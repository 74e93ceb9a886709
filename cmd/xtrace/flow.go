package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gregLibert/xtrace/internal/flow"
)

var flowOverviewCmd = &cobra.Command{
	Use:   "flow-overview <file>",
	Short: "Print the whole chronological timeline (sessions and events)",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlow(flow.FilterAll),
}

var flowSessionsCmd = &cobra.Command{
	Use:   "flow-sessions <file>",
	Short: "Print only the reconstructed channel sessions from the timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlow(flow.FilterSessions),
}

var flowEventsCmd = &cobra.Command{
	Use:   "flow-events <file>",
	Short: "Print only the card events (Refresh, Cold Reset, ICCID) from the timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlow(flow.FilterEvents),
}

// flowRow is the JSON view of a flow.Row; flow.Row itself isn't tagged
// for JSON since internal/flow has no reason to know about the CLI's
// wire format.
type flowRow struct {
	Kind      string `json:"kind"`
	Type      string `json:"type"`
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
	ItemIndex int    `json:"item_index"`
	ChannelID *int   `json:"channel_id,omitempty"`
	ICCID     string `json:"iccid,omitempty"`
}

func toFlowRows(rows []flow.Row) []flowRow {
	out := make([]flowRow, len(rows))
	for i, r := range rows {
		out[i] = flowRow{
			Kind:      string(r.Kind),
			Type:      r.Type,
			Label:     r.Label,
			Timestamp: formatTimestamp(r.Timestamp),
			ItemIndex: r.ItemIndex,
			ChannelID: r.ChannelID,
			ICCID:     r.ICCID,
		}
	}
	return out
}

// runFlow returns a RunE closure for a flow-* subcommand; pattern is one
// of flow.FilterAll/FilterSessions/FilterEvents.
func runFlow(pattern string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := loadAnalysis(args[0])
		if err != nil {
			return err
		}

		rows := a.pipeline.Flow(a.model, a.sessions, a.iccids)
		rows, err = flow.Filter(rows, pattern)
		if err != nil {
			return fmt.Errorf("xtrace: filter timeline: %w", err)
		}

		format, err := resolveFormat()
		if err != nil {
			return err
		}
		return writeOutput(format, toFlowRows(rows), func(w io.Writer) error {
			return renderFlowText(w, rows)
		})
	}
}

func renderFlowText(w io.Writer, rows []flow.Row) error {
	for _, r := range rows {
		channel := ""
		if r.ChannelID != nil {
			channel = fmt.Sprintf(" channel=%d", *r.ChannelID)
		}
		iccid := ""
		if r.ICCID != "" {
			iccid = " iccid=" + r.ICCID
		}
		if _, err := fmt.Fprintf(w, "%-20s %-8s %-12s %s%s%s\n",
			formatTimestamp(r.Timestamp), r.Kind, r.Type, r.Label, channel, iccid); err != nil {
			return err
		}
	}
	return nil
}
