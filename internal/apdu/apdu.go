// Package apdu decodes ISO/IEC 7816 command and response APDUs recorded in
// a Universal-Tracer trace, and recognises the SIM Toolkit proactive
// commands (FETCH, TERMINAL RESPONSE, OPEN/CLOSE/SEND/RECEIVE CHANNEL, ...)
// carried inside ENVELOPE/FETCH bodies.
package apdu

import (
	"bytes"
	"fmt"

	"github.com/gregLibert/xtrace/internal/tlv"
)

// Limits from ISO 7816-3; extended length kicks in once Lc/Le exceed the
// short-form range.
const (
	MaxShortLc    = 255
	MaxShortLe    = 256
	MaxExtendedLc = 65535
	MaxExtendedLe = 65536
)

// Apdu is the tagged variant spec'd for a parsed 7816 unit: a trace item's
// raw_hex decodes to exactly one of *Command or *Response, never both.
type Apdu interface {
	apduVariant()
}

// Command is a command APDU: CLA INS P1 P2 [Lc Data] [Le].
type Command struct {
	Class       Class
	Instruction Instruction
	P1, P2      byte
	Data        []byte
	Le          int // expected response length; 0 means none requested
}

func (*Command) apduVariant() {}

// Response is a response APDU: Data ending in SW1 SW2.
type Response struct {
	Data   []byte
	SW1    byte
	SW2    byte
	Status StatusWord
}

func (*Response) apduVariant() {}

// ParseCommand decodes raw as a command APDU header plus the Case 1-4
// Lc/Data/Le body, selecting short or extended length encoding the same
// way it was written.
func ParseCommand(raw []byte) (*Command, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("apdu: command too short: %d bytes", len(raw))
	}

	class, err := DecodeClass(raw[0])
	if err != nil {
		return nil, fmt.Errorf("apdu: decoding CLA: %w", err)
	}
	ins, err := DecodeInstruction(InsCode(raw[1]))
	if err != nil {
		return nil, fmt.Errorf("apdu: decoding INS: %w", err)
	}

	cmd := &Command{Class: class, Instruction: ins, P1: raw[2], P2: raw[3]}

	rest := raw[4:]
	switch len(rest) {
	case 0:
		// Case 1: header only.
	case 1:
		// Case 2 short: Le only.
		cmd.Le = decodeShortLe(rest[0])
	default:
		if err := parseBody(cmd, rest); err != nil {
			return nil, err
		}
	}

	return cmd, nil
}

func parseBody(cmd *Command, rest []byte) error {
	first := rest[0]

	if first != 0x00 {
		// Case 3/4 short form: Lc(1) Data Le?(1)
		lc := int(first)
		if 1+lc > len(rest) {
			return fmt.Errorf("apdu: declared Lc %d exceeds remaining %d bytes", lc, len(rest)-1)
		}
		cmd.Data = rest[1 : 1+lc]
		tail := rest[1+lc:]
		if len(tail) == 1 {
			cmd.Le = decodeShortLe(tail[0])
		} else if len(tail) > 1 {
			return fmt.Errorf("apdu: %d trailing bytes after short-form Lc/Data", len(tail))
		}
		return nil
	}

	// Leading 0x00 signals extended length, unless it's the whole body
	// (Case 2 extended: 00 Le(2)).
	if len(rest) == 3 {
		cmd.Le = decodeExtendedLe(rest[1], rest[2])
		return nil
	}

	if len(rest) < 3 {
		return fmt.Errorf("apdu: truncated extended-length header")
	}
	lc := int(rest[1])<<8 | int(rest[2])
	if 3+lc > len(rest) {
		return fmt.Errorf("apdu: declared extended Lc %d exceeds remaining %d bytes", lc, len(rest)-3)
	}
	cmd.Data = rest[3 : 3+lc]
	tail := rest[3+lc:]
	switch len(tail) {
	case 0:
	case 2:
		cmd.Le = decodeExtendedLe(tail[0], tail[1])
	default:
		return fmt.Errorf("apdu: %d trailing bytes after extended-form Lc/Data", len(tail))
	}
	return nil
}

func decodeShortLe(b byte) int {
	if b == 0x00 {
		return MaxShortLe
	}
	return int(b)
}

func decodeExtendedLe(hi, lo byte) int {
	v := int(hi)<<8 | int(lo)
	if v == 0 {
		return MaxExtendedLe
	}
	return v
}

// Bytes re-encodes a Command, used by the round-trip tests.
func (c *Command) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)

	class, err := c.Class.Encode()
	if err != nil {
		return nil, fmt.Errorf("apdu: encoding CLA: %w", err)
	}
	buf.WriteByte(class)
	buf.WriteByte(byte(c.Instruction.Raw))
	buf.WriteByte(c.P1)
	buf.WriteByte(c.P2)

	nc, ne := len(c.Data), c.Le
	isExtended := nc > MaxShortLc || ne > MaxShortLe

	if nc > 0 {
		if !isExtended {
			buf.WriteByte(byte(nc))
		} else {
			buf.WriteByte(0x00)
			buf.WriteByte(byte(nc >> 8))
			buf.WriteByte(byte(nc))
		}
		buf.Write(c.Data)
	}

	if ne > 0 {
		if !isExtended {
			if ne == MaxShortLe {
				buf.WriteByte(0x00)
			} else {
				buf.WriteByte(byte(ne))
			}
		} else {
			if nc == 0 {
				buf.WriteByte(0x00)
			}
			if ne == MaxExtendedLe {
				buf.WriteByte(0x00)
				buf.WriteByte(0x00)
			} else {
				buf.WriteByte(byte(ne >> 8))
				buf.WriteByte(byte(ne))
			}
		}
	}

	return buf.Bytes(), nil
}

// String renders the command for the parsing-log CLI view.
func (c *Command) String() string {
	return fmt.Sprintf("%s | P1: %02X, P2: %02X | Lc: %d | Le: %d",
		c.Instruction.Verbose(), c.P1, c.P2, len(c.Data), c.Le)
}

// ParseResponse decodes raw as Data + SW1 SW2. raw must hold at least the
// two trailer bytes.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("apdu: response too short: %d bytes", len(raw))
	}

	split := len(raw) - 2
	sw1, sw2 := raw[split], raw[split+1]

	return &Response{
		Data:   raw[:split],
		SW1:    sw1,
		SW2:    sw2,
		Status: NewStatusWord(sw1, sw2),
	}, nil
}

// String renders the response for the parsing-log CLI view.
func (r *Response) String() string {
	return fmt.Sprintf("Data (%d bytes) | Status: %s", len(r.Data), r.Status.Verbose())
}

// TLVs decodes a response's data field as a top-level BER-TLV sequence,
// the common case for SELECT/GET RESPONSE/FETCH bodies. Returns an empty
// slice, not an error, when Data is empty.
func (r *Response) TLVs() ([]*tlv.Node, error) {
	if len(r.Data) == 0 {
		return nil, nil
	}
	return tlv.Decode(r.Data)
}
