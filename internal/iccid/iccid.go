// Package iccid recognises the SELECT EF_ICCID + READ BINARY sequence a
// trace uses to read the card's serial number, and decodes the BCD value
// that comes back. Grounded on gregLibert-smart-card's Transaction
// pairing (pkg/iso7816/trace.go: one Command matched to the Response
// that follows it), generalized here to a two-step Command/Response,
// Command/Response chain rather than a single pair, since the spec's
// ICCID Detected rule (§4.10) needs both the SELECT's File Identifier and
// the READ BINARY's data.
package iccid

import (
	"strings"

	"github.com/gregLibert/xtrace/internal/apdu"
	"github.com/gregLibert/xtrace/internal/trace"
)

// efICCIDFileID is EF_ICCID's file identifier, as returned in a SELECT
// response's FCP tag 83.
const efICCIDFileID = "2FE2"

// Detection is one successfully decoded ICCID, with the trace indices of
// the three items that produced it (spec §4.11: the flow builder's
// ICCID event is "extracted from the nearest READ BINARY response after
// SELECT EF_ICCID").
type Detection struct {
	SelectIndex     int
	ReadBinaryIndex int
	ResponseIndex   int
	ICCID           string
}

// state is the tiny state machine Scan drives across the trace: after
// a SELECT response confirms EF_ICCID, the next READ BINARY response
// (regardless of how many unrelated items sit in between) supplies the
// ICCID.
type state int

const (
	stateIdle state = iota
	stateAwaitingSelectResponse
	stateSelectedICCID
	stateAwaitingReadResponse
)

// Scan walks m.Items in trace order and returns one Detection per
// completed SELECT EF_ICCID -> READ BINARY sequence. A SELECT that
// targets a different file, or a READ BINARY response with an error
// status word, never produces a Detection.
func Scan(m *trace.Model) []Detection {
	var detections []Detection

	st := stateIdle
	var selectCmd *apdu.Command
	var selectIndex, readIndex int

	for i, item := range m.Items {
		switch cmd := item.Apdu.(type) {
		case *apdu.Command:
			switch cmd.Instruction.Raw {
			case apdu.InsSelect:
				st = stateAwaitingSelectResponse
				selectCmd = cmd
				selectIndex = i
			case apdu.InsReadBinary:
				if st == stateSelectedICCID {
					st = stateAwaitingReadResponse
					readIndex = i
				} else {
					st = stateIdle
				}
			default:
				if st != stateSelectedICCID {
					st = stateIdle
				}
			}
		case *apdu.Response:
			switch st {
			case stateAwaitingSelectResponse:
				st = stateIdle
				if cmd.Status.IsSuccess() && selectTargetsICCID(selectCmd, cmd.Data) {
					st = stateSelectedICCID
				}
			case stateAwaitingReadResponse:
				st = stateIdle
				if cmd.Status.IsSuccess() && len(cmd.Data) > 0 {
					detections = append(detections, Detection{
						SelectIndex:     selectIndex,
						ReadBinaryIndex: readIndex,
						ResponseIndex:   i,
						ICCID:           Decode(cmd.Data),
					})
				}
			}
		}
	}

	return detections
}

func selectTargetsICCID(cmd *apdu.Command, responseData []byte) bool {
	if cmd == nil {
		return false
	}
	fci, err := apdu.ParseSelectData(responseData, cmd.P2)
	if err != nil || fci == nil {
		return false
	}
	return fci.FileIdentifierHex() == efICCIDFileID
}

// Decode swaps each byte's BCD nibbles and strips the trailing pad
// nibble ('F'), the encoding EF_ICCID uses for its serial number (spec
// §4.11 and §GLOSSARY: "ICCID ... a BCD-encoded card serial").
func Decode(data []byte) string {
	var b strings.Builder
	for _, by := range data {
		lo := by & 0x0F
		hi := by >> 4
		b.WriteByte(bcdDigit(lo))
		if hi != 0x0F {
			b.WriteByte(bcdDigit(hi))
		}
	}
	return b.String()
}

func bcdDigit(n byte) byte {
	if n > 9 {
		return '?'
	}
	return '0' + n
}
