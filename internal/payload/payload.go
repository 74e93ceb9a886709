// Package payload reassembles per-direction byte buffers out of a BIP
// session's SEND DATA / RECEIVE DATA items and classifies the resulting
// buffer by protocol. Grounded on ajkula-CyberRaven's pkg/sniffer
// parser.go (buffer accumulation per conversation) and Depgit-log-analyser's
// pkg/wireshark/pdml.go protocol-priority dispatch (detectProtocol), adapted
// from live packet streams to trace-item-sourced byte buffers.
package payload

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/gregLibert/xtrace/internal/apdu"
	"github.com/gregLibert/xtrace/internal/session"
	"github.com/gregLibert/xtrace/internal/tlv"
	"github.com/gregLibert/xtrace/internal/trace"
)

// Direction is which side of the channel a byte buffer was sourced from.
type Direction int

const (
	DirectionMEToSIM Direction = iota
	DirectionSIMToME
)

func (d Direction) String() string {
	if d == DirectionSIMToME {
		return "SIM->ME"
	}
	return "ME->SIM"
}

// OffsetEntry marks the trace item that contributed the bytes starting
// at Offset, so a byte range selected in the reassembled buffer can be
// synced back to the originating trace item.
type OffsetEntry struct {
	Offset    int
	ItemIndex int
}

// Buffer is one direction's reassembled byte stream.
type Buffer struct {
	Direction Direction
	Data      []byte
	Offsets   []OffsetEntry
}

// ItemAt returns the trace item index that contributed the byte at
// offset, or false if offset is out of range.
func (b *Buffer) ItemAt(offset int) (int, bool) {
	if offset < 0 || offset >= len(b.Data) || len(b.Offsets) == 0 {
		return 0, false
	}
	lo, hi := 0, len(b.Offsets)-1
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if b.Offsets[mid].Offset <= offset {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return b.Offsets[best].ItemIndex, true
}

// channelDataTag is the BIP channel data TLV tag a trace producer
// typically uses for SEND DATA / RECEIVE DATA payloads (spec §4.6).
const channelDataTag = "36"

// Reassemble concatenates, in trace order, the channel-data TLV of every
// SEND DATA item into the ME->SIM buffer and every RECEIVE DATA item
// into the SIM->ME buffer. Empty payloads are skipped.
func Reassemble(m *trace.Model, sess *session.Session) (meToSIM, simToME *Buffer) {
	meToSIM = &Buffer{Direction: DirectionMEToSIM}
	simToME = &Buffer{Direction: DirectionSIMToME}

	for _, idx := range sess.ItemIndices {
		item := m.At(idx)
		if item == nil {
			continue
		}
		kind := apdu.KindOfProactiveBody(item.TLVs)

		var target *Buffer
		switch kind {
		case apdu.ProactiveSendData:
			target = meToSIM
		case apdu.ProactiveReceiveData:
			target = simToME
		default:
			continue
		}

		data := channelData(item.TLVs)
		if len(data) == 0 {
			continue
		}
		target.Offsets = append(target.Offsets, OffsetEntry{Offset: len(target.Data), ItemIndex: idx})
		target.Data = append(target.Data, data...)
	}

	return meToSIM, simToME
}

func channelData(nodes []*tlv.Node) []byte {
	node := tlv.Find(nodes, channelDataTag)
	if node == nil {
		return nil
	}
	return node.Value
}

// Protocol is the classifier's single primary label for a direction
// buffer (spec §4.7: classification is non-destructive, but exactly one
// primary label wins).
type Protocol int

const (
	ProtocolBinary Protocol = iota
	ProtocolTLS
	ProtocolDNS
	ProtocolJSON
	ProtocolHTTP
	ProtocolASN1
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTLS:
		return "TLS"
	case ProtocolDNS:
		return "DNS"
	case ProtocolJSON:
		return "JSON"
	case ProtocolHTTP:
		return "HTTP"
	case ProtocolASN1:
		return "ASN.1/BER"
	default:
		return "Binary"
	}
}

// Classify dispatches a direction buffer through the fixed priority
// order spec §4.7 names. isUDPPort53 comes from the owning session's
// extracted port, since a DNS header alone is too ambiguous to trust on
// its own.
func Classify(data []byte, isUDPPort53 bool) Protocol {
	switch {
	case len(data) == 0:
		return ProtocolBinary
	case looksLikeTLS(data):
		return ProtocolTLS
	case isUDPPort53 && looksLikeDNS(data):
		return ProtocolDNS
	case looksLikeJSON(data):
		return ProtocolJSON
	case looksLikeHTTP(data):
		return ProtocolHTTP
	case looksLikeASN1(data):
		return ProtocolASN1
	default:
		return ProtocolBinary
	}
}

func looksLikeTLS(data []byte) bool {
	if len(data) < 5 {
		return false
	}
	switch data[0] {
	case 0x16, 0x17, 0x15, 0x14:
	default:
		return false
	}
	version := uint16(data[1])<<8 | uint16(data[2])
	switch version {
	case 0x0301, 0x0302, 0x0303, 0x0304:
		return true
	default:
		return false
	}
}

func looksLikeDNS(data []byte) bool {
	dns := &layers.DNS{}
	return dns.DecodeFromBytes(data, gopacket.NilDecodeFeedback) == nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

func looksLikeHTTP(data []byte) bool {
	for _, prefix := range []string{"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "HTTP/"} {
		if strings.HasPrefix(string(data), prefix) {
			return true
		}
	}
	return false
}

// looksLikeASN1 reuses the BER-TLV decoder: a buffer starting with a
// SEQUENCE/SET/context tag whose declared length is internally
// consistent decodes cleanly and consumes the whole buffer.
func looksLikeASN1(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	first := data[0]
	if !(first == 0x30 || first == 0x31 || (first >= 0xA0 && first <= 0xBF)) {
		return false
	}
	nodes, err := tlv.Decode(data)
	return err == nil && len(nodes) > 0
}
