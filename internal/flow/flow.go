// Package flow merges the session reconstructor's ChannelSessions and a
// small set of card events into the single chronological timeline
// spec.md §4.11 describes, and filters it by kind with a regex the way
// Depgit-log-analyser's pkg/query/engine.go evaluates keyword/regex
// expressions over parsed log lines.
package flow

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gregLibert/xtrace/internal/apdu"
	"github.com/gregLibert/xtrace/internal/iccid"
	"github.com/gregLibert/xtrace/internal/session"
	"github.com/gregLibert/xtrace/internal/trace"
)

// Kind is the timeline row's coarse category, the field §4.11's filter
// modes match against.
type Kind string

const (
	KindSession Kind = "Session"
	KindEvent   Kind = "Event"
)

// Row is one chronological timeline entry: either a reconstructed
// ChannelSession or a card event (Refresh, Cold Reset, ICCID).
type Row struct {
	Kind        Kind
	Type        string // scenario-matchable label, e.g. "TAC", "DNS", "Refresh", "ICCID"
	Label       string
	Timestamp   *time.Time
	ItemIndex   int // the row's anchor item, for trace-order tie-breaking
	ItemIndices []int
	ChannelID   *int
	ICCID       string
}

// Build produces the merged timeline: one Row per session.Session (type
// taken from its detected role when known, else its normalised label)
// plus one Row per Refresh, Cold Reset, and ICCID event.
func Build(m *trace.Model, sessions []*session.Session, iccidDetections []iccid.Detection) []Row {
	rows := make([]Row, 0, len(sessions)+len(iccidDetections))

	for _, sess := range sessions {
		rows = append(rows, sessionRow(m, sess))
	}
	rows = append(rows, cardEventRows(m)...)
	for _, d := range iccidDetections {
		rows = append(rows, iccidRow(m, d))
	}

	sortRows(rows)
	return rows
}

// sessionRow's timestamp key is the session's first item's timestamp
// (its OpenIndex, always ItemIndices[0]) per spec §4.11.
func sessionRow(m *trace.Model, sess *session.Session) Row {
	anchor := sess.OpenIndex
	return Row{
		Kind:        KindSession,
		Type:        sessionType(sess),
		Label:       sess.Label(),
		Timestamp:   timestampAt(m, anchor),
		ItemIndex:   anchor,
		ItemIndices: sess.ItemIndices,
		ChannelID:   &sess.ChannelID,
	}
}

// sessionType prefers the role internal/core detects from TLS/IP
// evidence (TAC, SM-DP+, SM-DS, eIM, DNS) over the free-text label, since
// the role is the scenario engine's matchable "type" per spec §4.12's
// example set; an undetected role falls back to the same normalisation
// session.Label() already applies.
func sessionType(sess *session.Session) string {
	if sess.DetectedRole != "" && sess.DetectedRole != session.RoleUnknown {
		return string(sess.DetectedRole)
	}
	return sess.Label()
}

func cardEventRows(m *trace.Model) []Row {
	var rows []Row
	for i, item := range m.Items {
		if apdu.KindOfProactiveBody(item.TLVs) == apdu.ProactiveRefresh {
			rows = append(rows, Row{Kind: KindEvent, Type: "Refresh", Label: "Refresh", Timestamp: item.Timestamp, ItemIndex: i})
			continue
		}
		if strings.Contains(flattenLower(item), "cold reset") {
			rows = append(rows, Row{Kind: KindEvent, Type: "Cold Reset", Label: "Cold Reset", Timestamp: item.Timestamp, ItemIndex: i})
		}
	}
	return rows
}

func iccidRow(m *trace.Model, d iccid.Detection) Row {
	return Row{
		Kind:      KindEvent,
		Type:      "ICCID",
		Label:     "ICCID",
		Timestamp: timestampAt(m, d.ResponseIndex),
		ItemIndex: d.ResponseIndex,
		ICCID:     d.ICCID,
	}
}

func timestampAt(m *trace.Model, i int) *time.Time {
	if item := m.At(i); item != nil {
		return item.Timestamp
	}
	return nil
}

func flattenLower(item *trace.Item) string {
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

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if (a.Timestamp == nil) != (b.Timestamp == nil) {
			return a.Timestamp != nil
		}
		if a.Timestamp != nil && !a.Timestamp.Equal(*b.Timestamp) {
			return a.Timestamp.Before(*b.Timestamp)
		}
		return a.ItemIndex < b.ItemIndex
	})
}

// Predefined filter patterns for spec §4.11's three named modes; All
// matches every row, the other two anchor on the Kind field exactly.
const (
	FilterAll      = ".*"
	FilterSessions = "^Session$"
	FilterEvents   = "^Event$"
)

// Filter returns the rows whose Kind matches pattern, compiled as a
// regular expression the way Depgit-log-analyser's query engine compiles
// a caller-supplied keyword/regex against each log entry.
func Filter(rows []Row, pattern string) ([]Row, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, row := range rows {
		if re.MatchString(string(row.Kind)) {
			out = append(out, row)
		}
	}
	return out, nil
}
