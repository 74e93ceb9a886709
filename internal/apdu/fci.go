package apdu

import (
	"fmt"
	"strings"

	"github.com/gregLibert/xtrace/internal/bits"
	"github.com/gregLibert/xtrace/internal/tlv"
	"github.com/moov-io/bertlv"
)

// SELECT's response data is controlled by P2 bits 4-3: 00 returns FCI
// (tag 6F wrapping FCP and/or FMD), 01 returns FCP (tag 62) directly, 10
// returns FMD (tag 64) directly, 11 returns nothing. The ICCID validation
// rule (spec §4.10 "ICCID Detected") needs the FCP's File Identifier (tag
// 83) to confirm a SELECT actually targeted EF_ICCID (FID 2FE2) before
// trusting the READ BINARY that follows it.

// FCPTemplate is the File Control Parameters template (tag 62), trimmed
// to the fields a SIM file-selection trace actually carries.
type FCPTemplate struct {
	FileSize       []byte `tlv:"80" fmt:"int"`
	FileDescriptor []byte `tlv:"82"`
	FileIdentifier []byte `tlv:"83"`
	DFName         []byte `tlv:"84" fmt:"ascii"`
	LifeCycleStatus []byte `tlv:"8A"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FMDTemplate is the File Management Data template (tag 64).
type FMDTemplate struct {
	ApplicationIdentifier []byte `tlv:"84" fmt:"ascii"`
	ApplicationLabel      []byte `tlv:"50" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FileControlInfo is the parsed result of a SELECT response.
type FileControlInfo struct {
	FCP                *FCPTemplate
	FMD                *FMDTemplate
	ProprietaryRawData []byte
}

// FileIdentifierHex returns the FCP's File Identifier as an uppercase hex
// string ("2FE2" for EF_ICCID), or "" if no FCP was returned.
func (fci *FileControlInfo) FileIdentifierHex() string {
	if fci.FCP == nil || len(fci.FCP.FileIdentifier) == 0 {
		return ""
	}
	return strings.ToUpper(fmt.Sprintf("%X", fci.FCP.FileIdentifier))
}

// ParseSelectData parses a SELECT response's data field according to the
// issuing command's P2.
func ParseSelectData(data []byte, p2 byte) (*FileControlInfo, error) {
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] >= 0xC0 {
		return &FileControlInfo{ProprietaryRawData: data}, nil
	}

	packets, err := bertlv.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("apdu: SELECT response BER-TLV decode failed: %w", err)
	}

	fci := &FileControlInfo{FCP: &FCPTemplate{}, FMD: &FMDTemplate{}}
	control := bits.GetRange(p2, 4, 3)

	switch control {
	case 1:
		if !unmarshalIfTagExists(packets, "62", fci.FCP) {
			return nil, fmt.Errorf("apdu: mandatory FCP tag 62 not found")
		}
		return fci, nil
	case 2:
		if !unmarshalIfTagExists(packets, "64", fci.FMD) {
			return nil, fmt.Errorf("apdu: mandatory FMD tag 64 not found")
		}
		return fci, nil
	case 0:
		workingPackets := packets
		for _, p := range packets {
			if strings.EqualFold(p.Tag, "6F") {
				workingPackets = p.TLVs
				break
			}
		}

		foundFCP := unmarshalIfTagExists(workingPackets, "62", fci.FCP)
		foundFMD := unmarshalIfTagExists(workingPackets, "64", fci.FMD)

		if !foundFCP && !foundFMD {
			// No explicit 62/64 wrapper: treat the whole body as a flat FCP.
			if err := tlv.UnmarshalFromPackets(workingPackets, fci.FCP); err != nil {
				return nil, fmt.Errorf("apdu: flat FCP unmarshal failed: %w", err)
			}
		}
		return fci, nil
	default:
		return nil, nil
	}
}

func unmarshalIfTagExists(packets []bertlv.TLV, tagHex string, target interface{}) bool {
	for _, p := range packets {
		if strings.EqualFold(p.Tag, tagHex) {
			if err := tlv.UnmarshalFromPackets(p.TLVs, target); err == nil {
				return true
			}
		}
	}
	return false
}
