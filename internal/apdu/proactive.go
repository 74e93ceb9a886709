package apdu

import "github.com/gregLibert/xtrace/internal/tlv"

// ProactiveKind is the command recognised from a trace item's APDU, used
// by internal/pairing to find FETCH/TERMINAL RESPONSE boundaries and by
// internal/session to route OPEN/CLOSE/SEND/RECEIVE CHANNEL items to the
// channel state machine.
type ProactiveKind int

const (
	ProactiveUnknown ProactiveKind = iota
	ProactiveFetch
	ProactiveTerminalResponse
	ProactiveSelect
	ProactiveReadBinary
	ProactiveEnvelope
	ProactiveOpenChannel
	ProactiveCloseChannel
	ProactiveSendData
	ProactiveReceiveData
	ProactiveSetUpEventList
	ProactiveRefresh
	ProactiveSetUpCall
	ProactiveGetChannelStatus
)

func (k ProactiveKind) String() string {
	switch k {
	case ProactiveFetch:
		return "FETCH"
	case ProactiveTerminalResponse:
		return "TERMINAL RESPONSE"
	case ProactiveSelect:
		return "SELECT"
	case ProactiveReadBinary:
		return "READ BINARY"
	case ProactiveEnvelope:
		return "ENVELOPE"
	case ProactiveOpenChannel:
		return "OPEN CHANNEL"
	case ProactiveCloseChannel:
		return "CLOSE CHANNEL"
	case ProactiveSendData:
		return "SEND DATA"
	case ProactiveReceiveData:
		return "RECEIVE DATA"
	case ProactiveSetUpEventList:
		return "SET UP EVENT LIST"
	case ProactiveRefresh:
		return "REFRESH"
	case ProactiveSetUpCall:
		return "SET UP CALL"
	case ProactiveGetChannelStatus:
		return "GET CHANNEL STATUS"
	default:
		return "UNKNOWN"
	}
}

// commandDetailsTag is the COMPREHENSION-TLV tag for "Command details"
// with the comprehension-required bit set (ETSI TS 102.223 §8.4).
const commandDetailsTag = "81"

// Command type byte carried as the second byte of the Command details TLV
// value (ETSI TS 102.223 Annex), the byte the spec calls the
// "command-type byte" distinguishing OPEN CHANNEL from REFRESH etc.
const (
	cmdTypeRefresh         = 0x01
	cmdTypeSetUpCall       = 0x10
	cmdTypeSetUpEventList  = 0x05
	cmdTypeOpenChannel     = 0x40
	cmdTypeCloseChannel    = 0x41
	cmdTypeReceiveData     = 0x42
	cmdTypeSendData        = 0x43
	cmdTypeGetChannelStatus = 0x44
)

// KindOfCommand recognises the proactive kind directly decodable from a
// command APDU's instruction byte: FETCH, TERMINAL RESPONSE, SELECT, READ
// BINARY, ENVELOPE. ENVELOPE's specific proactive sub-kind (e.g. an Event
// Download carrying Location Status) is not resolved here; the validator
// inspects ENVELOPE data directly.
func KindOfCommand(cmd *Command) ProactiveKind {
	switch cmd.Instruction.Raw {
	case InsFetch:
		return ProactiveFetch
	case InsTerminalResponse:
		return ProactiveTerminalResponse
	case InsSelect:
		return ProactiveSelect
	case InsReadBinary, InsReadBinaryBER:
		return ProactiveReadBinary
	case InsEnvelope, InsEnvelopeBER:
		return ProactiveEnvelope
	default:
		return ProactiveUnknown
	}
}

// KindOfProactiveBody inspects the body of a FETCH response (the
// proactive command the SIM is asking the ME to run) for a Command
// details TLV and maps its command-type byte to a ProactiveKind. Returns
// ProactiveUnknown when no command details TLV is present or its command
// type is not one this module routes specially — that is not an error,
// most proactive commands besides the BIP/Refresh ones are irrelevant to
// session reconstruction.
func KindOfProactiveBody(nodes []*tlv.Node) ProactiveKind {
	details := tlv.Find(nodes, commandDetailsTag)
	if details == nil || len(details.Value) < 2 {
		return ProactiveUnknown
	}

	switch details.Value[1] {
	case cmdTypeOpenChannel:
		return ProactiveOpenChannel
	case cmdTypeCloseChannel:
		return ProactiveCloseChannel
	case cmdTypeSendData:
		return ProactiveSendData
	case cmdTypeReceiveData:
		return ProactiveReceiveData
	case cmdTypeSetUpEventList:
		return ProactiveSetUpEventList
	case cmdTypeRefresh:
		return ProactiveRefresh
	case cmdTypeSetUpCall:
		return ProactiveSetUpCall
	case cmdTypeGetChannelStatus:
		return ProactiveGetChannelStatus
	default:
		return ProactiveUnknown
	}
}

// IsChannelLifecycle reports whether kind drives the channel session
// state machine (internal/session): OPEN/CLOSE/SEND/RECEIVE.
func (k ProactiveKind) IsChannelLifecycle() bool {
	switch k {
	case ProactiveOpenChannel, ProactiveCloseChannel, ProactiveSendData, ProactiveReceiveData:
		return true
	default:
		return false
	}
}
