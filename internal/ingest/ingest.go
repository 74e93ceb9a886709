// Package ingest reads a Universal-Tracer trace document (the ".xti" XML
// format validated by the original implementation's validate_xti.py) into
// an internal/trace.Model. Structured the way Depgit-log-analyser's
// pkg/wireshark/pdml.go reads Wireshark's PDML format: private XML
// structs mirror the wire schema exactly, then a conversion pass builds
// the domain model so nothing downstream depends on XML tags.
package ingest

import (
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gregLibert/xtrace/internal/apdu"
	"github.com/gregLibert/xtrace/internal/tlv"
	"github.com/gregLibert/xtrace/internal/trace"
	"github.com/gregLibert/xtrace/internal/xerrors"
	"github.com/gregLibert/xtrace/internal/xlog"
)

var log = xlog.New("ingest")

type xmlRoot struct {
	XMLName xml.Name       `xml:"tracedata"`
	Items   []xmlTraceItem `xml:"traceitem"`
}

type xmlTraceItem struct {
	Protocol  string    `xml:"protocol,attr"`
	Type      string    `xml:"type,attr"`
	Timestamp string    `xml:"timestamp,attr"`
	Date      string    `xml:"date,attr"`
	Month     string    `xml:"month,attr"`
	Year      string    `xml:"year,attr"`
	Hour      string    `xml:"hour,attr"`
	Minute    string    `xml:"minute,attr"`
	Second    string    `xml:"second,attr"`
	Millis    string    `xml:"millisecond,attr"`
	Nanos     string    `xml:"nanosecond,attr"`
	Data      xmlData   `xml:"data"`
	Interp    xmlInterp `xml:"interpretation"`
}

type xmlData struct {
	RawHex string `xml:"rawhex,attr"`
}

type xmlInterp struct {
	Results []xmlInterpretedResult `xml:"interpretedresult"`
}

type xmlInterpretedResult struct {
	Content  string                 `xml:"content,attr"`
	Children []xmlInterpretedResult `xml:"interpretedresult"`
}

// Result is what ingestion hands back: the built model plus any
// per-item warnings recorded while ingesting (spec.md §4.1: a malformed
// item never aborts the whole load, it is recorded and skipped over).
// The optional ICCID spec.md §4.1 mentions is not attached here — it is
// derived from the model's SELECT/READ BINARY items by internal/iccid,
// which runs after ingestion, not during it.
type Result struct {
	Model    *trace.Model
	Warnings []string
}

// LoadFile reads and parses the trace document at path.
func LoadFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &xerrors.InvalidXMLError{Path: path, Err: err}
	}
	defer f.Close()
	return Load(f, path)
}

// Load parses a trace document from r. path is used only for error
// messages and may be empty.
func Load(r io.Reader, path string) (*Result, error) {
	var root xmlRoot
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&root); err != nil {
		return nil, &xerrors.InvalidXMLError{Path: path, Err: err}
	}

	log.Info().Int("items", len(root.Items)).Msg("ingested tracedata root")

	result := &Result{}
	items := make([]*trace.Item, 0, len(root.Items))

	for i, raw := range root.Items {
		item, warning := convertItem(i, raw)
		items = append(items, item)
		if warning != "" {
			result.Warnings = append(result.Warnings, warning)
			log.Warn().Int("index", i).Str("reason", warning).Msg("malformed trace item")
		}
	}

	result.Model = trace.NewModel(items)
	return result, nil
}

func convertItem(index int, raw xmlTraceItem) (*trace.Item, string) {
	interp := convertInterpretation(raw.Interp.Results)
	item := trace.NewItem(index, raw.Protocol, raw.Type, interp)
	item.Timestamp = parseTimestamp(raw)

	var warning string
	if raw.Data.RawHex != "" {
		rawBytes, err := decodeRawHex(raw.Data.RawHex)
		if err != nil {
			warning = fmt.Sprintf("rawhex decode failed: %v", err)
			malformed := trace.NewItem(index, raw.Protocol, raw.Type, nil)
			malformed.Timestamp = item.Timestamp
			return malformed, warning
		}
		item.RawHex = rawBytes

		if looksLikeAPDU(raw.Type) {
			if a, err := decodeAPDU(raw.Type, rawBytes); err == nil {
				item.Apdu = a
			} else {
				log.Debug().Int("index", index).Err(err).Msg("apdu decode skipped")
			}
		}
		if nodes, err := tlv.Decode(rawBytes); err == nil && len(nodes) > 0 {
			item.TLVs = nodes
		}
	}
	return item, warning
}

func convertInterpretation(results []xmlInterpretedResult) []trace.Interpretation {
	if len(results) == 0 {
		return nil
	}
	out := make([]trace.Interpretation, 0, len(results))
	for _, r := range results {
		out = append(out, trace.Interpretation{
			Content:  r.Content,
			Children: convertInterpretation(r.Children),
		})
	}
	return out
}

func decodeRawHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	s = strings.ReplaceAll(s, " ", "")
	return hex.DecodeString(s)
}

// looksLikeAPDU matches spec.md §4.2's "type suggests APDU" gate.
func looksLikeAPDU(itemType string) bool {
	t := strings.ToLower(itemType)
	return strings.Contains(t, "apdu") || t == "fetch" || t == "terminalresponse" || t == "envelope"
}

// decodeAPDU picks Command vs. Response decoding by exact type, not a
// substring match: "terminalresponse" is itself a Command (INS 0x14) sent
// ME->UICC, even though its name contains "response".
func decodeAPDU(itemType string, raw []byte) (apdu.Apdu, error) {
	switch strings.ToLower(itemType) {
	case "apduresponse", "response":
		return apdu.ParseResponse(raw)
	default:
		return apdu.ParseCommand(raw)
	}
}

// parseTimestamp composes the multi-attribute timestamp per spec.md §4.1
// when year/month/date/hour/minute/second are all present, falling back
// to a single ISO-8601 "timestamp" attribute, and otherwise returning nil.
func parseTimestamp(raw xmlTraceItem) *time.Time {
	if raw.Year != "" && raw.Month != "" && raw.Date != "" && raw.Hour != "" && raw.Minute != "" && raw.Second != "" {
		year, err1 := strconv.Atoi(raw.Year)
		month, err2 := strconv.Atoi(raw.Month)
		day, err3 := strconv.Atoi(raw.Date)
		hour, err4 := strconv.Atoi(raw.Hour)
		minute, err5 := strconv.Atoi(raw.Minute)
		second, err6 := strconv.Atoi(raw.Second)
		if err1 == nil && err2 == nil && err3 == nil && err4 == nil && err5 == nil && err6 == nil {
			nanos := 0
			if raw.Nanos != "" {
				nanos, _ = strconv.Atoi(raw.Nanos)
			} else if raw.Millis != "" {
				ms, _ := strconv.Atoi(raw.Millis)
				nanos = ms * int(time.Millisecond)
			}
			ts := time.Date(year, time.Month(month), day, hour, minute, second, nanos, time.UTC)
			return &ts
		}
	}

	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			return &ts
		}
		if ts, err := time.Parse("2006-01-02T15:04:05", raw.Timestamp); err == nil {
			return &ts
		}
	}
	return nil
}
