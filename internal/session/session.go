// Package session reconstructs BIP channel sessions from a trace model's
// OPEN CHANNEL / SEND DATA / RECEIVE DATA / CLOSE CHANNEL proactive
// commands, running a small per-channel-id state machine the way
// gregLibert-smart-card's pkg/iso7816/trace.go tracks a Transaction's
// command/response lifecycle, generalized from one pair to an arbitrary
// OPEN -> (Active) -> CLOSE run of items.
package session

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gregLibert/xtrace/internal/apdu"
	"github.com/gregLibert/xtrace/internal/trace"
)

// Transport is the BIP channel's underlying transport, inferred from the
// extracted port alone (see classifyTransport).
type Transport int

const (
	TransportUnknown Transport = iota
	TransportTCP
	TransportUDP
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "TCP"
	case TransportUDP:
		return "UDP"
	default:
		return "Unknown"
	}
}

// Role is the channel's detected endpoint role (spec.md §4.5). Detection
// itself lives outside this package (internal/core wires TLS SNI/port/IP
// evidence in after internal/tlsanalysis runs) to avoid a session ->
// tlsanalysis -> payload -> session import cycle; Role is just the slot
// that result is written into.
type Role string

const (
	RoleUnknown Role = "Unknown"
	RoleSMDP    Role = "SM-DP+"
	RoleSMDS    Role = "SM-DS"
	RoleEIM     Role = "eIM"
	RoleTAC     Role = "TAC"
	RoleDNS     Role = "DNS"
)

// Session is one OPEN -> CLOSE (or OPEN -> end-of-trace) BIP channel
// lifecycle.
type Session struct {
	ChannelID    int
	OpenIndex    int
	CloseIndex   *int
	ItemIndices  []int
	ServerName   string
	IPAddresses  []string
	Port         *int
	TransportKnd Transport
	DetectedRole Role
}

// Label normalises the session's display name per spec.md §4.11: the
// well-known Google DNS server collapses to "DNS"; a server-less Open
// Channel group falls back to "BIP Session".
func (s *Session) Label() string {
	if s.ServerName == "Google DNS" {
		return "DNS"
	}
	if s.ServerName == "" {
		return "BIP Session"
	}
	return s.ServerName
}

// ViolationKind names a channel state-machine anomaly the reconstructor
// observed. internal/validate converts these into ValidationIssue values
// with the severities spec.md §4.10's table assigns them.
type ViolationKind int

const (
	ResourceLeak ViolationKind = iota
	OrphanData
	CloseWithoutOpen
	UnclosedChannel
)

func (k ViolationKind) String() string {
	switch k {
	case ResourceLeak:
		return "ResourceLeak"
	case OrphanData:
		return "OrphanData"
	case CloseWithoutOpen:
		return "CloseWithoutOpen"
	case UnclosedChannel:
		return "UnclosedChannel"
	default:
		return "Unknown"
	}
}

// Violation is one state-machine anomaly tied to a channel id and the
// item index that triggered it.
type Violation struct {
	Kind      ViolationKind
	ChannelID int
	ItemIndex int
}

// Result is the reconstructor's output: every session observed (open or
// closed) plus any state-machine violations.
type Result struct {
	Sessions   []*Session
	Violations []Violation
}

// Reconstruct walks m in trace order running the per-channel-id state
// machine spec.md §4.4 describes.
func Reconstruct(m *trace.Model) *Result {
	result := &Result{}
	open := make(map[int]*Session) // channel id -> currently-open session

	for i, item := range m.Items {
		// A FETCH (or ENVELOPE) trace item's raw_hex is the proactive
		// command's own TLV body, not a literal ISO 7816 command header,
		// so the command details TLV (tag 81) is what carries the real
		// command type. Reading item.Apdu here would decode the TLV bytes
		// as if they were CLA/INS/P1/P2 and misclassify the item.
		kind := apdu.KindOfProactiveBody(item.TLVs)
		if !kind.IsChannelLifecycle() {
			continue
		}

		channelID := deviceChannelID(item)

		switch kind {
		case apdu.ProactiveOpenChannel:
			if prior, isOpen := open[channelID]; isOpen {
				result.Violations = append(result.Violations, Violation{ResourceLeak, channelID, i})
				closeAt := i
				prior.CloseIndex = &closeAt
				result.Sessions = append(result.Sessions, prior)
			}
			sess := &Session{ChannelID: channelID, OpenIndex: i, ItemIndices: []int{i}}
			extractAddress(item, sess)
			open[channelID] = sess

		case apdu.ProactiveSendData, apdu.ProactiveReceiveData:
			sess, isOpen := open[channelID]
			if !isOpen {
				result.Violations = append(result.Violations, Violation{OrphanData, channelID, i})
				continue
			}
			sess.ItemIndices = append(sess.ItemIndices, i)

		case apdu.ProactiveCloseChannel:
			sess, isOpen := open[channelID]
			if !isOpen {
				result.Violations = append(result.Violations, Violation{CloseWithoutOpen, channelID, i})
				continue
			}
			sess.ItemIndices = append(sess.ItemIndices, i)
			closeAt := i
			sess.CloseIndex = &closeAt
			result.Sessions = append(result.Sessions, sess)
			delete(open, channelID)
		}
	}

	for channelID, sess := range open {
		result.Violations = append(result.Violations, Violation{UnclosedChannel, channelID, sess.OpenIndex})
		result.Sessions = append(result.Sessions, sess)
		delete(open, channelID)
	}

	return result
}

// deviceChannelID reads the BIP channel id out of the Device Identities
// TLV (tag 8F in context), defaulting to 1 when absent — a trace may omit
// it for a single-channel session.
func deviceChannelID(item *trace.Item) int {
	for _, node := range item.TLVs {
		if node.TagHex() == "8F" && len(node.Value) == 1 {
			return int(node.Value[0])
		}
	}
	return 1
}

var (
	serverNameRe = regexp.MustCompile(`(?i)server\s*name\s*[:=]\s*([^,\n]+)`)
	ipAddressRe  = regexp.MustCompile(`(?i)ip\s*address\s*[:=]\s*([0-9a-fA-F.:]+)`)
	portRe       = regexp.MustCompile(`(?i)port\s*[:=]\s*(\d+)`)
)

// extractAddress implements spec.md §4.4's server/IP/port extraction:
// try the OPEN CHANNEL item's free-text interpretation first, then fall
// back to the Transport Protocol (tag 3C) / Data Destination Address
// (tag 3E) TLVs when the interpretation didn't carry the fields.
func extractAddress(item *trace.Item, sess *Session) {
	text := flattenInterpretation(item)

	if m := serverNameRe.FindStringSubmatch(text); m != nil {
		sess.ServerName = strings.TrimSpace(m[1])
	}
	if m := ipAddressRe.FindStringSubmatch(text); m != nil {
		sess.IPAddresses = append(sess.IPAddresses, strings.TrimSpace(m[1]))
	}
	if m := portRe.FindStringSubmatch(text); m != nil {
		if port, err := strconv.Atoi(m[1]); err == nil {
			sess.Port = &port
		}
	}

	if sess.Port == nil {
		extractTransportTLV(item, sess)
	}
	if len(sess.IPAddresses) == 0 {
		extractAddressTLV(item, sess)
	}

	sess.TransportKnd = classifyTransport(sess.Port)
}

func flattenInterpretation(item *trace.Item) string {
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
	return sb.String()
}

const (
	transportProtocolTag   = "3C"
	dataDestinationAddrTag = "3E"
)

func extractTransportTLV(item *trace.Item, sess *Session) {
	for _, node := range item.TLVs {
		if node.TagHex() != transportProtocolTag || len(node.Value) < 3 {
			continue
		}
		port := int(node.Value[1])<<8 | int(node.Value[2])
		sess.Port = &port
		return
	}
}

func extractAddressTLV(item *trace.Item, sess *Session) {
	for _, node := range item.TLVs {
		if node.TagHex() != dataDestinationAddrTag || len(node.Value) < 2 {
			continue
		}
		addrType := node.Value[0]
		octets := node.Value[1:]
		switch {
		case addrType == 0x21 && len(octets) == 4: // IPv4
			sess.IPAddresses = append(sess.IPAddresses, ipv4String(octets))
		case addrType == 0x57 && len(octets) == 16: // IPv6
			sess.IPAddresses = append(sess.IPAddresses, ipv6String(octets))
		}
		return
	}
}

func ipv4String(b []byte) string {
	return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + "." +
		strconv.Itoa(int(b[2])) + "." + strconv.Itoa(int(b[3]))
}

func ipv6String(b []byte) string {
	var parts []string
	for i := 0; i < 16; i += 2 {
		parts = append(parts, strconv.FormatUint(uint64(b[i])<<8|uint64(b[i+1]), 16))
	}
	return strings.Join(parts, ":")
}

// classifyTransport maps the port to a transport: 443 or 80 is TCP, 53 is
// UDP, any other port (or none) is Unknown. The protocol-type byte of the
// Transport Protocol TLV is not consulted.
func classifyTransport(port *int) Transport {
	if port == nil {
		return TransportUnknown
	}
	switch *port {
	case 53:
		return TransportUDP
	case 443, 80:
		return TransportTCP
	default:
		return TransportUnknown
	}
}
