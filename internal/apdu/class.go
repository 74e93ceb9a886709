package apdu

import (
	"fmt"

	"github.com/gregLibert/xtrace/internal/bits"
)

// Class decodes the ISO/IEC 7816-4 CLA byte of a command APDU: proprietary
// vs. interindustry, command chaining, secure messaging, and logical
// channel number. A trace producer encodes the BIP channel a command
// targets in this byte, so decoding it correctly is what lets the session
// reconstructor (internal/session) tell channel 1's OPEN CHANNEL apart from
// channel 2's.
//
// First interindustry class (00xx xxxx) packs secure messaging into bits
// 4-3 and channel 0-3 into bits 2-1. Further interindustry class (01xx
// xxxx) packs one SM bit into bit 6 and channel 4-19 (offset by 4) into
// bits 4-1.

// SecureMessaging is the security level declared on the CLA byte.
type SecureMessaging int

const (
	SMNone         SecureMessaging = 0
	SMProprietary  SecureMessaging = 1
	SMHeaderNoProc SecureMessaging = 2
	SMHeaderAuth   SecureMessaging = 3
)

// Class is the parsed CLA byte.
type Class struct {
	Raw             byte
	IsProprietary   bool
	IsChained       bool
	SecureMessaging SecureMessaging
	Channel         uint8
}

// DecodeClass decodes a raw CLA byte.
func DecodeClass(cla byte) (Class, error) {
	if cla == 0xFF {
		return Class{}, fmt.Errorf("apdu: CLA 0xFF is reserved")
	}

	c := Class{Raw: cla}

	if bits.IsSet(cla, 8) {
		c.IsProprietary = true
		return c, nil
	}

	c.IsChained = bits.IsSet(cla, 5)

	if !bits.IsSet(cla, 7) {
		c.SecureMessaging = SecureMessaging(bits.GetRange(cla, 4, 3))
		c.Channel = bits.GetRange(cla, 2, 1)
	} else {
		if bits.IsSet(cla, 6) {
			c.SecureMessaging = SMHeaderNoProc
		} else {
			c.SecureMessaging = SMNone
		}
		c.Channel = bits.GetRange(cla, 4, 1) + 4
	}

	return c, nil
}

// Encode converts a Class back to its raw byte.
func (c Class) Encode() (byte, error) {
	if c.IsProprietary {
		return c.Raw, nil
	}

	var res byte

	if c.Channel <= 3 {
		if c.IsChained {
			res = bits.Set(res, 5)
		}
		res |= byte(c.SecureMessaging) << 2
		res |= c.Channel
	} else {
		res = bits.Set(res, 7)
		if c.IsChained {
			res = bits.Set(res, 5)
		}
		if c.SecureMessaging != SMNone {
			res = bits.Set(res, 6)
		}
		res |= c.Channel - 4
	}

	return res, nil
}

// Verbose renders the CLA decode for the parsing-log CLI view.
func (c Class) Verbose() string {
	if c.IsProprietary {
		return fmt.Sprintf("Class: Proprietary (0x%02X)", c.Raw)
	}

	smDesc := "Unknown"
	switch c.SecureMessaging {
	case SMNone:
		smDesc = "None"
	case SMProprietary:
		smDesc = "Proprietary"
	case SMHeaderNoProc:
		smDesc = "ISO (header not processed)"
	case SMHeaderAuth:
		smDesc = "ISO (header authenticated)"
	}

	chaining := "last or only command"
	if c.IsChained {
		chaining = "more commands follow"
	}

	return fmt.Sprintf("Chaining: %s | Secure messaging: %s | Logical channel: %d", chaining, smDesc, c.Channel)
}
