package validate

import (
	"testing"
	"time"

	"github.com/gregLibert/xtrace/internal/iccid"
	"github.com/gregLibert/xtrace/internal/session"
	"github.com/gregLibert/xtrace/internal/tlv"
	"github.com/gregLibert/xtrace/internal/trace"
)

func textItem(index int, itemType, text string) *trace.Item {
	interp := []trace.Interpretation{{Content: text}}
	return trace.NewItem(index, "BIP", itemType, interp)
}

func tlvItem(index int, tagHex string, value []byte) *trace.Item {
	item := trace.NewItem(index, "BIP", "event", nil)
	item.TLVs = []*tlv.Node{{Tag: tlv.Hex(tagHex), Value: value, Length: len(value)}}
	return item
}

func TestRunLocationStatusNormal(t *testing.T) {
	m := trace.NewModel([]*trace.Item{tlvItem(0, "1B", []byte{0x00})})
	issues := Run(m, nil, nil, Warning)
	if len(issues) != 1 || issues[0].Severity != Info || issues[0].Category != "Location Status / Normal" {
		t.Fatalf("got %+v", issues)
	}
}

func TestRunLocationStatusNoService(t *testing.T) {
	m := trace.NewModel([]*trace.Item{tlvItem(0, "1B", []byte{0x02})})
	issues := Run(m, nil, nil, Warning)
	if len(issues) != 1 || issues[0].Severity != Warning || issues[0].Category != "Location Status / No Service" {
		t.Fatalf("got %+v", issues)
	}
}

func TestRunLocationStatusNoServiceHonorsConfiguredSeverity(t *testing.T) {
	m := trace.NewModel([]*trace.Item{tlvItem(0, "1B", []byte{0x02})})
	issues := Run(m, nil, nil, Critical)
	if len(issues) != 1 || issues[0].Severity != Critical {
		t.Fatalf("got %+v, want Critical severity override", issues)
	}
}

func TestRunLocationStatusNoServiceDefaultsToWarningWhenUnset(t *testing.T) {
	m := trace.NewModel([]*trace.Item{tlvItem(0, "1B", []byte{0x02})})
	issues := Run(m, nil, nil, "")
	if len(issues) != 1 || issues[0].Severity != Warning {
		t.Fatalf("got %+v, want Warning default", issues)
	}
}

func TestRunCardPoweredOff(t *testing.T) {
	m := trace.NewModel([]*trace.Item{textItem(0, "cardevent", "Card Powered Off (MSC 1900)")})
	issues := Run(m, nil, nil, Warning)
	if len(issues) != 1 || issues[0].Severity != Info || issues[0].Category != "Card Event" {
		t.Fatalf("got %+v", issues)
	}
}

func TestRunLinkDroppedDirectPhrase(t *testing.T) {
	m := trace.NewModel([]*trace.Item{textItem(0, "bip", "Channel Status: Link Dropped, Identifier: 3")})
	issues := Run(m, nil, nil, Warning)
	if len(issues) != 1 || issues[0].Severity != Critical || issues[0].Category != "Channel Status" {
		t.Fatalf("got %+v", issues)
	}
	if issues[0].ChannelID == nil || *issues[0].ChannelID != 3 {
		t.Errorf("ChannelID = %v, want 3", issues[0].ChannelID)
	}
}

func TestRunLinkDroppedChannelStatusPlusLinkOff(t *testing.T) {
	m := trace.NewModel([]*trace.Item{textItem(0, "bip", "Channel Status: Link Off")})
	issues := Run(m, nil, nil, Warning)
	if len(issues) != 1 || issues[0].Category != "Channel Status" {
		t.Fatalf("got %+v", issues)
	}
}

func TestRunBIPErrorWithCauseByte(t *testing.T) {
	item := textItem(0, "terminalresponse", "General Result: Bearer Independent Protocol Error")
	item.RawHex = tlv.Hex("81", "03", "01", "14", "00", "03", "02", "3A", "05")
	m := trace.NewModel([]*trace.Item{item})

	issues := Run(m, nil, nil, Warning)
	if len(issues) != 1 || issues[0].Severity != Critical || issues[0].Category != "BIP Error" {
		t.Fatalf("got %+v", issues)
	}
	if issues[0].Message != "BIP error (cause 0x05)" {
		t.Errorf("Message = %q, want cause 0x05", issues[0].Message)
	}
}

func TestRunTerminalResponseUnexpected(t *testing.T) {
	m := trace.NewModel([]*trace.Item{textItem(0, "terminalresponse", "Unexpected terminal response")})
	issues := Run(m, nil, nil, Warning)
	if len(issues) != 1 || issues[0].Severity != Info || issues[0].Category != "Trace (conservative)" {
		t.Fatalf("got %+v", issues)
	}
}

func TestRunSessionViolationsConvertToIssues(t *testing.T) {
	m := trace.NewModel([]*trace.Item{textItem(0, "fetch", ""), textItem(1, "fetch", "")})
	result := &session.Result{
		Violations: []session.Violation{
			{Kind: session.CloseWithoutOpen, ChannelID: 2, ItemIndex: 0},
			{Kind: session.UnclosedChannel, ChannelID: 2, ItemIndex: 1},
		},
	}

	issues := Run(m, result, nil, Warning)
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2: %+v", len(issues), issues)
	}
	if issues[0].Category != "State Machine" || issues[1].Category != "Resource Leak" {
		t.Errorf("categories = %q, %q", issues[0].Category, issues[1].Category)
	}
}

func TestRunOpenChannelWithoutIPIsInfo(t *testing.T) {
	m := trace.NewModel([]*trace.Item{textItem(0, "fetch", "Open Channel")})
	result := &session.Result{
		Sessions: []*session.Session{{ChannelID: 1, OpenIndex: 0}},
	}

	issues := Run(m, result, nil, Warning)
	if len(issues) != 1 || issues[0].Severity != Info || issues[0].Category != "Channel (DNS likely)" {
		t.Fatalf("got %+v", issues)
	}
}

func TestRunOpenChannelWithIPProducesNoIssue(t *testing.T) {
	m := trace.NewModel([]*trace.Item{textItem(0, "fetch", "Open Channel")})
	result := &session.Result{
		Sessions: []*session.Session{{ChannelID: 1, OpenIndex: 0, IPAddresses: []string{"1.2.3.4"}}},
	}

	if issues := Run(m, result, nil, Warning); len(issues) != 0 {
		t.Fatalf("got %+v, want none", issues)
	}
}

func TestRunICCIDDetection(t *testing.T) {
	m := trace.NewModel([]*trace.Item{textItem(0, "apdu", ""), textItem(1, "response", "")})
	detections := []iccid.Detection{{SelectIndex: 0, ResponseIndex: 1, ICCID: "8914012345678901234"}}

	issues := Run(m, nil, detections, Warning)
	if len(issues) != 1 || issues[0].Severity != Info || issues[0].Category != "ICCID Detected" {
		t.Fatalf("got %+v", issues)
	}
	if issues[0].ItemIndex != 1 {
		t.Errorf("ItemIndex = %d, want 1", issues[0].ItemIndex)
	}
}

func TestSortIssuesDatedBeforeUndatedAndTraceOrderOnTies(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Second)

	issues := []Issue{
		{ItemIndex: 5, Timestamp: nil},
		{ItemIndex: 2, Timestamp: &t1},
		{ItemIndex: 1, Timestamp: &t0},
		{ItemIndex: 0, Timestamp: nil},
	}
	sortIssues(issues)

	want := []int{1, 2, 0, 5}
	for i, idx := range want {
		if issues[i].ItemIndex != idx {
			t.Fatalf("order = %v, want item-index order %v", indices(issues), want)
		}
	}
}

func indices(issues []Issue) []int {
	out := make([]int, len(issues))
	for i, issue := range issues {
		out[i] = issue.ItemIndex
	}
	return out
}
