package main

import (
	"testing"
	"time"

	"github.com/gregLibert/xtrace/internal/flow"
)

func TestToFlowRowsCopiesFieldsAndFormatsTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	channelID := 3
	rows := []flow.Row{{
		Kind:      flow.KindSession,
		Type:      "TAC",
		Label:     "tac.example.com",
		Timestamp: &ts,
		ItemIndex: 5,
		ChannelID: &channelID,
	}}

	got := toFlowRows(rows)
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	row := got[0]
	if row.Kind != "Session" || row.Type != "TAC" || row.Label != "tac.example.com" {
		t.Fatalf("got %+v", row)
	}
	if row.ItemIndex != 5 || row.ChannelID == nil || *row.ChannelID != 3 {
		t.Fatalf("got %+v", row)
	}
	if row.Timestamp != "2026-01-01T00:00:00Z" {
		t.Fatalf("Timestamp = %q", row.Timestamp)
	}
}

func TestToFlowRowsNilTimestampFormatsAsDash(t *testing.T) {
	rows := []flow.Row{{Kind: flow.KindEvent, Type: "Refresh", ItemIndex: 0}}
	got := toFlowRows(rows)
	if got[0].Timestamp != "-" {
		t.Fatalf("Timestamp = %q, want %q", got[0].Timestamp, "-")
	}
}
