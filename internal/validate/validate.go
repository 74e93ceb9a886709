// Package validate runs the single, fixed-table validation pass spec.md
// §4.10 defines over an ingested trace, turning raw TLV bytes, free-text
// interpretation, status words, and the session reconstructor's state
// machine violations into severity-tagged issues. Grounded on
// 90karatinsa-ch10gate's internal/rules/engine.go Severity/Diagnostic
// pair, adapted from a user-authored rule-pack engine into this spec's
// fixed rule table, since spec.md names concrete conditions rather than
// letting a caller supply its own.
package validate

import (
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gregLibert/xtrace/internal/apdu"
	"github.com/gregLibert/xtrace/internal/iccid"
	"github.com/gregLibert/xtrace/internal/session"
	"github.com/gregLibert/xtrace/internal/tlv"
	"github.com/gregLibert/xtrace/internal/trace"
)

// Severity mirrors spec.md §4.10's table: Info, Warning, or Critical.
type Severity string

const (
	Info     Severity = "Info"
	Warning  Severity = "Warning"
	Critical Severity = "Critical"
)

// Issue is one validation finding.
type Issue struct {
	Severity  Severity
	Category  string
	Message   string
	ItemIndex int
	ChannelID *int
	Timestamp *time.Time
}

// Run performs the single pass spec §4.10 describes: a per-item text/TLV
// scan, plus the session reconstructor's state-machine Violations and the
// ICCID decoder's Detections folded in as their own rows. sessionResult
// and iccidDetections may be nil/empty when the caller only wants the
// per-item rules. noServiceSeverity overrides the Location Status "No
// Service" row's severity (spec §9 Open Question #2,
// config.AnalysisConfig.NoServiceSeverity); an empty value keeps the
// table's own default of Warning.
func Run(m *trace.Model, sessionResult *session.Result, iccidDetections []iccid.Detection, noServiceSeverity Severity) []Issue {
	if noServiceSeverity == "" {
		noServiceSeverity = Warning
	}

	var issues []Issue

	for i, item := range m.Items {
		text := flatten(item)
		issues = append(issues, locationStatusIssues(i, item, text, noServiceSeverity)...)
		issues = append(issues, cardEventIssues(i, item, text)...)
		issues = append(issues, linkDroppedIssues(i, item, text)...)
		issues = append(issues, statusWordIssues(i, item)...)
		issues = append(issues, bipErrorIssues(i, item, text)...)
		issues = append(issues, terminalResponseIssues(i, item, text)...)
	}

	if sessionResult != nil {
		issues = append(issues, sessionIssues(m, sessionResult)...)
	}
	for _, d := range iccidDetections {
		issues = append(issues, iccidIssue(m, d))
	}

	sortIssues(issues)
	return issues
}

func flatten(item *trace.Item) string {
	var sb strings.Builder
	var walk func([]trace.Interpretation)
	walk = func(nodes []trace.Interpretation) {
		for _, n := range nodes {
			sb.WriteString(n.Content)
			sb.WriteByte('\n')
			walk(n.Children)
		}
	}
	walk(item.Interpretation)
	return strings.ToLower(sb.String())
}

func at(m *trace.Model, i int) *time.Time {
	if item := m.At(i); item != nil {
		return item.Timestamp
	}
	return nil
}

// locationStatusIssues decodes the raw "1B 01 xx" TLV (tag 1B, Location
// Status, per spec §4.10). noServiceSeverity carries the configurable
// downgrade spec §9's Open Question #2 calls out as conservative.
func locationStatusIssues(i int, item *trace.Item, _ string, noServiceSeverity Severity) []Issue {
	node := tlv.Find(item.TLVs, "1B")
	if node == nil || len(node.Value) != 1 {
		return nil
	}
	switch node.Value[0] {
	case 0x00:
		return []Issue{{Severity: Info, Category: "Location Status / Normal", Message: "Location update: normal service", ItemIndex: i, Timestamp: item.Timestamp}}
	case 0x01:
		return []Issue{{Severity: Warning, Category: "Location Status / Limited", Message: "Location update: limited service", ItemIndex: i, Timestamp: item.Timestamp}}
	case 0x02:
		return []Issue{{Severity: noServiceSeverity, Category: "Location Status / No Service", Message: "Location update: no service", ItemIndex: i, Timestamp: item.Timestamp}}
	default:
		return nil
	}
}

func cardEventIssues(i int, item *trace.Item, text string) []Issue {
	switch {
	case strings.Contains(text, "card powered off"):
		return []Issue{{Severity: Info, Category: "Card Event", Message: "Card powered off", ItemIndex: i, Timestamp: item.Timestamp}}
	case strings.Contains(text, "cold reset") || strings.Contains(text, "power on"):
		return []Issue{{Severity: Info, Category: "Card Event", Message: "Cold reset / power on", ItemIndex: i, Timestamp: item.Timestamp}}
	case apdu.KindOfProactiveBody(item.TLVs) == apdu.ProactiveRefresh:
		return []Issue{{Severity: Info, Category: "Card Event", Message: "Refresh", ItemIndex: i, Timestamp: item.Timestamp}}
	default:
		return nil
	}
}

// linkDroppedIssues ports the free-text detection conditions the
// original implementation's test_detection_logic.py fixture exercises
// for "Link Dropped": a direct phrase match, a Channel Status item that
// also reports the link as off or the PDP context as inactive, or a
// generic "status:" line naming either condition.
var channelIdentifierRe = regexp.MustCompile(`identifier:\s*(\d+)`)

func linkDroppedIssues(i int, item *trace.Item, text string) []Issue {
	linkDown := strings.Contains(text, "link off") || strings.Contains(text, "pdp not activated")
	matched := strings.Contains(text, "link dropped") ||
		(strings.Contains(text, "channel status") && linkDown) ||
		(strings.Contains(text, "status:") && (strings.Contains(text, "link dropped") || strings.Contains(text, "link off")))
	if !matched {
		return nil
	}

	issue := Issue{Severity: Critical, Category: "Channel Status", Message: "Link dropped", ItemIndex: i, Timestamp: item.Timestamp}
	if m := channelIdentifierRe.FindStringSubmatch(text); m != nil {
		if id, err := strconv.Atoi(m[1]); err == nil {
			issue.ChannelID = &id
		}
	}
	return []Issue{issue}
}

func statusWordIssues(i int, item *trace.Item) []Issue {
	resp, ok := item.Apdu.(*apdu.Response)
	if !ok || resp.SW1 != 0x50 || resp.SW2 != 0x23 {
		return nil
	}
	return []Issue{{Severity: Critical, Category: "Status Word", Message: "SW = 50 23", ItemIndex: i, Timestamp: item.Timestamp}}
}

// bipErrorIssues ports test_detection_logic.py's BIP Error conditions
// and its cause-byte regex, run against the item's raw hex rather than
// its interpretation text since the cause code is carried in the TLV
// bytes, not narrated.
var bipCauseRe = regexp.MustCompile(`(?:03|83)023A([0-9A-F]{2})`)

func bipErrorIssues(i int, item *trace.Item, text string) []Issue {
	matched := strings.Contains(text, "bearer independent protocol error") ||
		strings.Contains(text, "bip error") ||
		(strings.Contains(text, "general result:") && strings.Contains(text, "bearer independent protocol error"))
	if !matched {
		return nil
	}

	msg := "BIP error"
	rawHex := strings.ToUpper(hex.EncodeToString(item.RawHex))
	if m := bipCauseRe.FindStringSubmatch(rawHex); m != nil {
		msg = "BIP error (cause 0x" + m[1] + ")"
	}
	return []Issue{{Severity: Critical, Category: "BIP Error", Message: msg, ItemIndex: i, Timestamp: item.Timestamp}}
}

func terminalResponseIssues(i int, item *trace.Item, text string) []Issue {
	if !strings.EqualFold(item.Type, "terminalresponse") || !strings.Contains(text, "unexpected") {
		return nil
	}
	return []Issue{{Severity: Info, Category: "Trace (conservative)", Message: "Terminal response marked unexpected", ItemIndex: i, Timestamp: item.Timestamp}}
}

// sessionIssues converts the session reconstructor's state-machine
// Violations into the matching table rows. session.ResourceLeak covers
// both "multiple OPEN on same channel" (the forced close of the prior
// session) and is reported under the same "State Machine" category as
// CloseWithoutOpen and OrphanData; UnclosedChannel is its own "Resource
// Leak" row per spec §4.10.
func sessionIssues(m *trace.Model, result *session.Result) []Issue {
	issues := make([]Issue, 0, len(result.Violations))
	for _, v := range result.Violations {
		channelID := v.ChannelID
		issue := Issue{ItemIndex: v.ItemIndex, ChannelID: &channelID, Timestamp: at(m, v.ItemIndex)}
		switch v.Kind {
		case session.ResourceLeak:
			issue.Severity, issue.Category, issue.Message = Critical, "State Machine", "Multiple OPEN on same channel"
		case session.OrphanData:
			issue.Severity, issue.Category, issue.Message = Critical, "State Machine", "SEND/RECEIVE DATA without an open channel"
		case session.CloseWithoutOpen:
			issue.Severity, issue.Category, issue.Message = Critical, "State Machine", "CLOSE CHANNEL without OPEN"
		case session.UnclosedChannel:
			issue.Severity, issue.Category, issue.Message = Critical, "Resource Leak", "Unclosed channel at end of trace"
		default:
			continue
		}
		issues = append(issues, issue)
	}

	for _, sess := range result.Sessions {
		if len(sess.IPAddresses) == 0 {
			issues = append(issues, Issue{
				Severity:  Info,
				Category:  "Channel (DNS likely)",
				Message:   "OPEN CHANNEL without an IP address in the interpretation",
				ItemIndex: sess.OpenIndex,
				ChannelID: &sess.ChannelID,
				Timestamp: at(m, sess.OpenIndex),
			})
		}
	}

	return issues
}

func iccidIssue(m *trace.Model, d iccid.Detection) Issue {
	return Issue{
		Severity:  Info,
		Category:  "ICCID Detected",
		Message:   "ICCID decoded: " + d.ICCID,
		ItemIndex: d.ResponseIndex,
		Timestamp: at(m, d.ResponseIndex),
	}
}

// sortIssues implements spec §4.10's "sorted by timestamp ascending
// (items without timestamp keep trace order after dated items)":
// undated issues sort as a block after every dated one, and ties within
// either block fall back to trace order.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if (a.Timestamp == nil) != (b.Timestamp == nil) {
			return a.Timestamp != nil
		}
		if a.Timestamp != nil && !a.Timestamp.Equal(*b.Timestamp) {
			return a.Timestamp.Before(*b.Timestamp)
		}
		return a.ItemIndex < b.ItemIndex
	})
}
