package pairing

import (
	"testing"
	"time"

	"github.com/gregLibert/xtrace/internal/apdu"
	"github.com/gregLibert/xtrace/internal/trace"
)

func fetchItem(t *testing.T, index int, ts time.Time) *trace.Item {
	item := trace.NewItem(index, "BIP", "fetch", nil)
	item.Timestamp = &ts
	return item
}

// termRespItem builds a TERMINAL RESPONSE item whose data carries a
// Result TLV (tag 02) with the given general result byte (0x00 success,
// nonzero error).
func termRespItem(t *testing.T, index int, generalResult byte, ts time.Time) *trace.Item {
	cls, err := apdu.DecodeClass(0x80)
	if err != nil {
		t.Fatalf("DecodeClass failed: %v", err)
	}
	ins, err := apdu.DecodeInstruction(apdu.InsTerminalResponse)
	if err != nil {
		t.Fatalf("DecodeInstruction failed: %v", err)
	}
	item := trace.NewItem(index, "BIP", "terminalresponse", nil)
	item.Apdu = &apdu.Command{Class: cls, Instruction: ins, Data: []byte{0x02, 0x01, generalResult}}
	item.Timestamp = &ts
	return item
}

func TestRunPairsFetchWithNextTerminalResponse(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*trace.Item{
		fetchItem(t, 0, t0),
		termRespItem(t, 1, 0x00, t0.Add(50*time.Millisecond)),
	}
	result := Run(trace.NewModel(items))

	if len(result.Pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(result.Pairs))
	}
	pair := result.Pairs[0]
	if pair.ResponseIndex != 1 {
		t.Errorf("ResponseIndex = %d, want 1", pair.ResponseIndex)
	}
	if pair.Status != Success {
		t.Errorf("Status = %v, want Success", pair.Status)
	}
	if pair.DurationMs == nil || *pair.DurationMs != 50 {
		t.Errorf("DurationMs = %v, want 50", pair.DurationMs)
	}
	if result.ByFetch[0] != 1 || result.ByResponse[1] != 0 {
		t.Errorf("index maps wrong: ByFetch=%v ByResponse=%v", result.ByFetch, result.ByResponse)
	}
}

func TestRunLeavesUnmatchedFetchPending(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*trace.Item{fetchItem(t, 0, t0)}
	result := Run(trace.NewModel(items))

	if len(result.Pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(result.Pairs))
	}
	if result.Pairs[0].Status != Pending {
		t.Errorf("Status = %v, want Pending", result.Pairs[0].Status)
	}
	if result.Pairs[0].ResponseIndex != -1 {
		t.Errorf("ResponseIndex = %d, want -1", result.Pairs[0].ResponseIndex)
	}
}

func TestRunInterveningFetchWithoutResponseBreaksMatch(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*trace.Item{
		fetchItem(t, 0, t0),
		fetchItem(t, 1, t0.Add(10*time.Millisecond)),
		termRespItem(t, 2, 0x00, t0.Add(20*time.Millisecond)),
	}
	result := Run(trace.NewModel(items))

	if len(result.Pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(result.Pairs))
	}
	if result.Pairs[0].Status != Pending {
		t.Errorf("first fetch Status = %v, want Pending (intervening fetch breaks match)", result.Pairs[0].Status)
	}
	if result.Pairs[1].ResponseIndex != 2 {
		t.Errorf("second fetch ResponseIndex = %d, want 2", result.Pairs[1].ResponseIndex)
	}
}

func TestRunResponseIsNeverClaimedTwice(t *testing.T) {
	// Two FETCHes on the same context, one TERMINAL RESPONSE: the first
	// FETCH must claim it, the second must stay Pending rather than
	// re-matching the already-consumed response (the injectivity guard
	// the original implementation's duplicate-FETCH fix relies on).
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*trace.Item{
		fetchItem(t, 0, t0),
		termRespItem(t, 1, 0x00, t0.Add(10*time.Millisecond)),
	}
	// Manually append a second fetch with no following response of its
	// own, sharing the same "protocol:BIP" context key.
	items = append(items, fetchItem(t, 2, t0.Add(20*time.Millisecond)))

	result := Run(trace.NewModel(items))
	if len(result.Pairs) != 2 {
		t.Fatalf("got %d pairs, want 2", len(result.Pairs))
	}
	if result.Pairs[0].ResponseIndex != 1 {
		t.Errorf("first fetch ResponseIndex = %d, want 1", result.Pairs[0].ResponseIndex)
	}
	if result.Pairs[1].Status != Pending {
		t.Errorf("second fetch Status = %v, want Pending (response already consumed)", result.Pairs[1].Status)
	}
}

func TestRunErrorStatusOnFailingGeneralResult(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*trace.Item{
		fetchItem(t, 0, t0),
		termRespItem(t, 1, 0x20, t0.Add(5*time.Millisecond)),
	}
	result := Run(trace.NewModel(items))
	if result.Pairs[0].Status != Error {
		t.Errorf("Status = %v, want Error", result.Pairs[0].Status)
	}
}
