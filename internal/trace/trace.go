// Package trace holds the data model every analysis stage reads: the
// ordered list of items ingested from a trace file (TraceItem), the
// nested interpretation tree each item carries, and the TraceModel index
// that lets later stages look items up by protocol or type
// without walking the whole list. Modelled on gregLibert-smart-card's
// Transaction/Trace pair (pkg/iso7816/trace.go) generalized from "one
// Command, one Response" to "N items of any protocol/type", and on its
// index-based (never pointer-based) referencing style so the model stays
// shared and read-only once built.
package trace

import (
	"time"

	"github.com/gregLibert/xtrace/internal/apdu"
	"github.com/gregLibert/xtrace/internal/tlv"
)

// Interpretation is one node of the nested, ordered tree an ingested
// trace item's human-readable description forms, preserving the source
// XML's element order and nesting.
type Interpretation struct {
	Content  string
	Children []Interpretation
}

// Item is one row of the trace: a single <traceitem>, immutable once
// ingestion returns. Derived fields (Apdu, TLVs) are nil when decoding
// failed or didn't apply — a decode failure on one item never prevents
// the rest of the trace from loading.
type Item struct {
	Index          int
	Protocol       string
	Type           string
	Timestamp      *time.Time
	RawHex         []byte
	Interpretation []Interpretation
	Summary        string

	Apdu apdu.Apdu
	TLVs []*tlv.Node
}

// NewItem builds an Item and derives Summary from the first
// interpretation node, per the invariant that Summary always equals the
// first interpretation node's content when one exists.
func NewItem(index int, protocol, itemType string, interp []Interpretation) *Item {
	item := &Item{
		Index:          index,
		Protocol:       protocol,
		Type:           itemType,
		Interpretation: interp,
	}
	if len(interp) > 0 {
		item.Summary = interp[0].Content
	}
	return item
}

// Model is the whole ingested trace plus the indices later stages use to
// avoid repeated linear scans. Items is the single source of truth;
// every index below stores positions into Items, never pointers, so the
// model can be freely shared across concurrently running analysis
// stages (spec.md §5).
type Model struct {
	Items []*Item

	byProtocol map[string][]int
	byType     map[string][]int
}

// NewModel builds a Model from an already-ingested, index-ordered item
// list and populates its lookup indices.
func NewModel(items []*Item) *Model {
	m := &Model{
		Items:      items,
		byProtocol: make(map[string][]int),
		byType:     make(map[string][]int),
	}
	for _, item := range items {
		m.byProtocol[item.Protocol] = append(m.byProtocol[item.Protocol], item.Index)
		m.byType[item.Type] = append(m.byType[item.Type], item.Index)
	}
	return m
}

// ByProtocol returns the indices of items with the given protocol, in
// trace order.
func (m *Model) ByProtocol(protocol string) []int {
	return m.byProtocol[protocol]
}

// ByType returns the indices of items with the given type, in trace
// order.
func (m *Model) ByType(itemType string) []int {
	return m.byType[itemType]
}

// At returns the item at index i, or nil if i is out of range. Centralizes
// the bounds check every stage that resolves an index back to an Item
// would otherwise repeat.
func (m *Model) At(i int) *Item {
	if i < 0 || i >= len(m.Items) {
		return nil
	}
	return m.Items[i]
}
