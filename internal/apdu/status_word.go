package apdu

import (
	"fmt"

	"github.com/gregLibert/xtrace/internal/bits"
)

// StatusWord is the two-byte SW1-SW2 trailer of a response APDU.
//
// A few ranges carry dynamic meaning instead of a fixed code: 61XX (more
// response bytes available, XX = count), 6CXX (wrong Le, XX = correct
// value), 62XX/64XX with SW2 in [02,80] ("triggering by the card"), and
// 63CX (a retry counter in the low nibble of SW2).
type StatusWord uint16

// NewStatusWord builds a StatusWord from its two bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }
func (sw StatusWord) SW2() byte { return byte(sw) }

// IsTriggeringByCard reports the "triggering by the card" dynamic range.
func (sw StatusWord) IsTriggeringByCard() bool {
	sw1, sw2 := sw.SW1(), sw.SW2()
	if sw2 < 0x02 || sw2 > 0x80 {
		return false
	}
	return sw1 == 0x62 || sw1 == 0x64
}

// IsCounter reports the 63CX retry-counter range.
func (sw StatusWord) IsCounter() bool {
	if sw.SW1() != 0x63 {
		return false
	}
	return bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// IsSuccess reports 9000, 91XX (proactive command pending) or 61XX (data
// available); internal/iccid gates its SELECT and READ BINARY steps on it.
func (sw StatusWord) IsSuccess() bool {
	return sw == SWNoError || sw.SW1() == 0x91 || sw.SW1() == 0x61
}

// IsWarning reports the 62XX/63XX warning range.
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError reports the 64XX..6FXX execution/checking error range.
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// Verbose renders the status word for the parsing-log CLI view.
func (sw StatusWord) Verbose() string {
	sw1, sw2 := sw.SW1(), sw.SW2()

	if sw.IsTriggeringByCard() {
		action := "warning (triggering)"
		if sw1 == 0x64 {
			action = "error (triggering)"
		}
		return fmt.Sprintf("%s: card expects query of %d bytes", action, sw2)
	}

	if sw.IsCounter() {
		return fmt.Sprintf("warning: NV memory changed, counter = %d", bits.GetRange(sw2, 4, 1))
	}

	if sw1 == 0x61 {
		return fmt.Sprintf("process completed, %d bytes available", sw2)
	}

	if sw1 == 0x6C {
		return fmt.Sprintf("wrong length, correct Le is %d", sw2)
	}

	if name, ok := statusWordNames[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), name)
	}

	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.genericCategoryDescription())
}

func (sw StatusWord) genericCategoryDescription() string {
	switch sw.SW1() {
	case 0x62:
		return "warning: NV memory unchanged"
	case 0x63:
		return "warning: NV memory changed"
	case 0x64:
		return "execution error: NV memory unchanged"
	case 0x65:
		return "execution error: NV memory changed"
	case 0x66:
		return "execution error: security issue"
	case 0x68:
		return "checking error: function not supported"
	case 0x69:
		return "checking error: command not allowed"
	case 0x6A:
		return "checking error: wrong parameters"
	default:
		return "unknown status"
	}
}

// Standard ISO/IEC 7816-4 status words, plus the 91XX "proactive command
// pending" status and the 5023 status a SIM's Universal-Tracer trace
// surfaces directly in SW1/SW2.
const (
	SWNoError          StatusWord = 0x9000
	SWNoErrorProactive StatusWord = 0x9100 // 91XX: success, XX bytes pending for next FETCH

	SWWarnNoInfo              StatusWord = 0x6200
	SWWarnTriggeringByCard    StatusWord = 0x6202
	SWWarnDataCorrupted       StatusWord = 0x6281
	SWWarnEOFReached          StatusWord = 0x6282
	SWWarnFileDeactivated     StatusWord = 0x6283
	SWWarnFCIBadFormat        StatusWord = 0x6284
	SWWarnTerminationState    StatusWord = 0x6285

	SWWarnNVChangedNoInfo StatusWord = 0x6300
	SWWarnFileFilled      StatusWord = 0x6381
	SWWarnCounter0        StatusWord = 0x63C0

	SWErrExecNoInfo            StatusWord = 0x6400
	SWErrExecTriggeringByCard  StatusWord = 0x6402

	SWErrNVChangedNoInfo StatusWord = 0x6500
	SWErrMemoryFailure   StatusWord = 0x6581
	SWErrSecurityIssue   StatusWord = 0x6600

	SWErrWrongLength             StatusWord = 0x6700
	SWErrCheckingNoInfo          StatusWord = 0x6800
	SWErrLogicalChannelNotSupp   StatusWord = 0x6881
	SWErrSecureMessagingNotSupp  StatusWord = 0x6882

	SWErrCmdNotAllowedNoInfo   StatusWord = 0x6900
	SWErrCmdIncompatibleFile   StatusWord = 0x6981
	SWErrSecurityStatusNotSat  StatusWord = 0x6982
	SWErrAuthMethodBlocked     StatusWord = 0x6983
	SWErrRefDataNotUsable      StatusWord = 0x6984
	SWErrCondOfUseNotSat       StatusWord = 0x6985
	SWErrCmdNotAllowedNoEF     StatusWord = 0x6986

	SWErrWrongParamsNoInfo  StatusWord = 0x6A00
	SWErrIncorrectParamsData StatusWord = 0x6A80
	SWErrFuncNotSupported   StatusWord = 0x6A81
	SWErrFileNotFound       StatusWord = 0x6A82
	SWErrRecordNotFound     StatusWord = 0x6A83
	SWErrNotEnoughMemory    StatusWord = 0x6A84
	SWErrIncorrectParamsP1P2 StatusWord = 0x6A86
	SWErrRefDataNotFound    StatusWord = 0x6A88

	SWErrWrongP1P2        StatusWord = 0x6B00
	SWErrInsInvalid       StatusWord = 0x6D00
	SWErrClaNotSupported  StatusWord = 0x6E00
	SWErrUnknown          StatusWord = 0x6F00

	// SWSecurityLinkDropped is the SIM Toolkit "link dropped" indicator a
	// Universal-Tracer trace carries on a failed BIP exchange.
	SWSecurityLinkDropped StatusWord = 0x5023
)

var statusWordNames = map[StatusWord]string{
	SWNoError:          "no error",
	SWNoErrorProactive: "no error, proactive session pending",
	SWErrFileNotFound:  "file not found",
	SWErrRecordNotFound: "record not found",
	SWErrSecurityStatusNotSat: "security status not satisfied",
	SWSecurityLinkDropped:    "link dropped",
}
