// Package dnsanalysis decodes a UDP port 53 payload buffer into a DNS
// message. Grounded on ajkula-CyberRaven's pkg/sniffer engine.go, which
// already reaches for gopacket/layers.DNS to dissect live DNS packets;
// this package applies the same decoder to a reassembled byte buffer
// (internal/payload has already decided the buffer is a DNS candidate),
// and formats layers.DNS's already-parsed questions/records into the
// flat summaries spec.md §4.9 asks for (header counts, decoded RDATA per
// record type, compression pointers resolved for free by the decoder).
package dnsanalysis

import (
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Question is one decoded question-section entry.
type Question struct {
	Name  string
	Type  string
	Class string
}

// Record is one decoded answer/authority/additional-section entry. Data
// is the type-appropriate rendering of RDATA: an IP for A/AAAA, a name
// for NS/CNAME/PTR, "preference name" for MX, the joined strings for
// TXT, "target:port weight priority" for SRV, and the serial/refresh
// tuple for SOA.
type Record struct {
	Name  string
	Type  string
	Class string
	TTL   uint32
	Data  string
}

// Message is a decoded DNS message, or the reason decoding failed.
// Fails softly per spec §4.9: a malformed buffer never panics, it just
// reports OK = false.
type Message struct {
	OK     bool
	Reason string

	ID       uint16
	Response bool

	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16

	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// Analyze decodes data as a DNS message. It never panics: a malformed
// or truncated buffer yields Message{OK: false, Reason: ...}.
func Analyze(data []byte) *Message {
	dns := &layers.DNS{}
	if err := dns.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return &Message{OK: false, Reason: err.Error()}
	}

	msg := &Message{
		OK:       true,
		ID:       dns.ID,
		Response: dns.QR,
		QDCount:  dns.QDCount,
		ANCount:  dns.ANCount,
		NSCount:  dns.NSCount,
		ARCount:  dns.ARCount,
	}

	for _, q := range dns.Questions {
		msg.Questions = append(msg.Questions, Question{
			Name:  string(q.Name),
			Type:  q.Type.String(),
			Class: q.Class.String(),
		})
	}
	for _, rr := range dns.Answers {
		msg.Answers = append(msg.Answers, renderRecord(rr))
	}
	for _, rr := range dns.Authorities {
		msg.Authorities = append(msg.Authorities, renderRecord(rr))
	}
	for _, rr := range dns.Additionals {
		msg.Additionals = append(msg.Additionals, renderRecord(rr))
	}
	return msg
}

func renderRecord(rr layers.DNSResourceRecord) Record {
	return Record{
		Name:  string(rr.Name),
		Type:  rr.Type.String(),
		Class: rr.Class.String(),
		TTL:   rr.TTL,
		Data:  renderData(rr),
	}
}

func renderData(rr layers.DNSResourceRecord) string {
	switch rr.Type {
	case layers.DNSTypeA, layers.DNSTypeAAAA:
		if rr.IP != nil {
			return rr.IP.String()
		}
	case layers.DNSTypeNS:
		return string(rr.NS)
	case layers.DNSTypeCNAME:
		return string(rr.CNAME)
	case layers.DNSTypePTR:
		return string(rr.PTR)
	case layers.DNSTypeMX:
		return fmt.Sprintf("%d %s", rr.MX.Preference, rr.MX.Name)
	case layers.DNSTypeTXT:
		strs := make([]string, 0, len(rr.TXTs))
		for _, t := range rr.TXTs {
			strs = append(strs, string(t))
		}
		return strings.Join(strs, ";")
	case layers.DNSTypeSRV:
		return fmt.Sprintf("%s:%d weight=%d priority=%d", rr.SRV.Name, rr.SRV.Port, rr.SRV.Weight, rr.SRV.Priority)
	case layers.DNSTypeSOA:
		return fmt.Sprintf("%s %s serial=%d refresh=%d retry=%d expire=%d minimum=%d",
			rr.SOA.MName, rr.SOA.RName, rr.SOA.Serial, rr.SOA.Refresh, rr.SOA.Retry, rr.SOA.Expire, rr.SOA.Minimum)
	}
	return fmt.Sprintf("% x", rr.Data)
}
