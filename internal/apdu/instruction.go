package apdu

import (
	"fmt"

	"github.com/gregLibert/xtrace/internal/bits"
)

// InsCode is the raw instruction byte (INS) of a command APDU.
//
// Bit 1 of INS conventionally flags BER-TLV formatted command data (e.g.
// READ BINARY 0xB0 vs. its BER-TLV sibling 0xB1). INS values with high
// nibble 0x6 or 0x9 are reserved for status words and transport control,
// never valid as an instruction.
type InsCode byte

// Standard ISO/IEC 7816-4 instruction codes, plus the SIM Toolkit
// FETCH/TERMINAL RESPONSE/ENVELOPE instructions that a Universal-Tracer
// trace of a BIP session is built from (ETSI TS 102.221 §10.1, TS 102.223).
const (
	InsDeactivateFile            InsCode = 0x04
	InsEraseRecord               InsCode = 0x0C
	InsEraseBinary               InsCode = 0x0E
	InsEraseBinaryBER            InsCode = 0x0F
	InsFetch                     InsCode = 0x12
	InsTerminalResponse          InsCode = 0x14
	InsVerify                    InsCode = 0x20
	InsVerifyBER                InsCode = 0x21
	InsManageSecurityEnvironment InsCode = 0x22
	InsChangeReferenceData       InsCode = 0x24
	InsDisableVerifReq           InsCode = 0x26
	InsEnableVerifReq            InsCode = 0x28
	InsPerformSecurityOperation  InsCode = 0x2A
	InsResetRetryCounter         InsCode = 0x2C
	InsActivateFile              InsCode = 0x44
	InsManageChannel             InsCode = 0x70
	InsExternalAuthenticate      InsCode = 0x82
	InsGetChallenge              InsCode = 0x84
	InsGeneralAuthenticate       InsCode = 0x86
	InsGeneralAuthenticateBER    InsCode = 0x87
	InsInternalAuthenticate      InsCode = 0x88
	InsSearchBinary              InsCode = 0xA0
	InsSearchBinaryBER           InsCode = 0xA1
	InsSearchRecord              InsCode = 0xA2
	InsSelect                    InsCode = 0xA4
	InsReadBinary                InsCode = 0xB0
	InsReadBinaryBER             InsCode = 0xB1
	InsReadRecord                InsCode = 0xB2
	InsReadRecordBER             InsCode = 0xB3
	InsGetResponse               InsCode = 0xC0
	InsEnvelope                  InsCode = 0xC2
	InsEnvelopeBER               InsCode = 0xC3
	InsGetData                   InsCode = 0xCA
	InsGetDataBER                InsCode = 0xCB
	InsWriteBinary                InsCode = 0xD0
	InsWriteBinaryBER             InsCode = 0xD1
	InsWriteRecord                InsCode = 0xD2
	InsUpdateBinary               InsCode = 0xD6
	InsUpdateBinaryBER            InsCode = 0xD7
	InsPutData                    InsCode = 0xDA
	InsPutDataBER                 InsCode = 0xDB
	InsUpdateRecord                InsCode = 0xDC
	InsUpdateRecordBER             InsCode = 0xDD
	InsCreateFile                  InsCode = 0xE0
	InsAppendRecord                InsCode = 0xE2
	InsDeleteFile                  InsCode = 0xE4
	InsTerminateDF                 InsCode = 0xE6
	InsTerminateEF                 InsCode = 0xE8
	InsTerminateCardUsage           InsCode = 0xFE
)

var insNames = map[InsCode]string{
	InsDeactivateFile:            "DEACTIVATE FILE",
	InsEraseRecord:               "ERASE RECORD",
	InsEraseBinary:               "ERASE BINARY",
	InsFetch:                     "FETCH",
	InsTerminalResponse:          "TERMINAL RESPONSE",
	InsVerify:                    "VERIFY",
	InsManageSecurityEnvironment: "MANAGE SECURITY ENVIRONMENT",
	InsChangeReferenceData:       "CHANGE REFERENCE DATA",
	InsDisableVerifReq:           "DISABLE VERIFICATION REQUIREMENT",
	InsEnableVerifReq:            "ENABLE VERIFICATION REQUIREMENT",
	InsPerformSecurityOperation:  "PERFORM SECURITY OPERATION",
	InsResetRetryCounter:         "RESET RETRY COUNTER",
	InsActivateFile:              "ACTIVATE FILE",
	InsManageChannel:             "MANAGE CHANNEL",
	InsExternalAuthenticate:      "EXTERNAL AUTHENTICATE",
	InsGetChallenge:              "GET CHALLENGE",
	InsGeneralAuthenticate:       "GENERAL AUTHENTICATE",
	InsInternalAuthenticate:      "INTERNAL AUTHENTICATE",
	InsSearchBinary:              "SEARCH BINARY",
	InsSearchRecord:              "SEARCH RECORD",
	InsSelect:                    "SELECT",
	InsReadBinary:                "READ BINARY",
	InsReadRecord:                "READ RECORD",
	InsGetResponse:               "GET RESPONSE",
	InsEnvelope:                  "ENVELOPE",
	InsGetData:                   "GET DATA",
	InsWriteBinary:               "WRITE BINARY",
	InsWriteRecord:               "WRITE RECORD",
	InsUpdateBinary:              "UPDATE BINARY",
	InsPutData:                   "PUT DATA",
	InsUpdateRecord:              "UPDATE RECORD",
	InsCreateFile:                "CREATE FILE",
	InsAppendRecord:              "APPEND RECORD",
	InsDeleteFile:                "DELETE FILE",
	InsTerminateDF:               "TERMINATE DF",
	InsTerminateEF:               "TERMINATE EF",
	InsTerminateCardUsage:        "TERMINATE CARD USAGE",
}

// String renders a best-effort mnemonic, "UNKNOWN (0xXX)" for anything not
// in the table above.
func (i InsCode) String() string {
	if name, ok := insNames[i]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN (0x%02X)", byte(i))
}

// Instruction is the parsed INS byte.
type Instruction struct {
	Raw      InsCode
	IsBERTLV bool
}

// DecodeInstruction decodes ins, rejecting the 6X/9X reserved ranges.
func DecodeInstruction(ins InsCode) (Instruction, error) {
	highNibble := byte(ins) & 0xF0
	if highNibble == 0x60 || highNibble == 0x90 {
		return Instruction{}, fmt.Errorf("apdu: INS 0x%02X is reserved (6X/9X range)", ins)
	}

	return Instruction{
		Raw:      ins,
		IsBERTLV: bits.IsSet(byte(ins), 1),
	}, nil
}

// Verbose renders the INS decode for the parsing-log CLI view.
func (i Instruction) Verbose() string {
	format := "standard"
	if i.IsBERTLV {
		format = "BER-TLV"
	}
	return fmt.Sprintf("INS 0x%02X (%s, %s encoding)", byte(i.Raw), i.Raw.String(), format)
}
