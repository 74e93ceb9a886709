package apdu

import (
	"encoding/hex"
	"strings"
	"testing"
)

func mustClass(t *testing.T, cla byte) Class {
	c, err := DecodeClass(cla)
	if err != nil {
		t.Fatalf("DecodeClass(%#x) failed: %v", cla, err)
	}
	return c
}

func mustIns(t *testing.T, ins InsCode) Instruction {
	i, err := DecodeInstruction(ins)
	if err != nil {
		t.Fatalf("DecodeInstruction(%#x) failed: %v", ins, err)
	}
	return i
}

func TestCommandEncoding(t *testing.T) {
	cls := mustClass(t, 0x00)
	insSelect := mustIns(t, InsSelect)
	insRead := mustIns(t, InsReadBinary)

	tests := []struct {
		name     string
		cmd      *Command
		expected string
	}{
		{
			name:     "case 1: header only",
			cmd:      &Command{Class: cls, Instruction: insSelect, P1: 0x01, P2: 0x02},
			expected: "00A40102",
		},
		{
			name:     "case 3 short: data, no Le",
			cmd:      &Command{Class: cls, Instruction: insSelect, P1: 0x04, P2: 0x00, Data: []byte{0xA0, 0x00}},
			expected: "00A4040002A000",
		},
		{
			name:     "case 2 short: no data, Le = 256 encodes as 00",
			cmd:      &Command{Class: cls, Instruction: insRead, Le: MaxShortLe},
			expected: "00B0000000",
		},
		{
			name:     "case 4 short: data and Le",
			cmd:      &Command{Class: cls, Instruction: insSelect, Data: []byte{0x01}, Le: 10},
			expected: "00A4000001010A",
		},
		{
			name: "case 3 extended: data > 255 bytes",
			cmd: &Command{
				Class: cls, Instruction: insSelect,
				Data: make([]byte, 260),
			},
			expected: "00A40000000104" + hex.EncodeToString(make([]byte, 260)),
		},
		{
			name:     "case 2 extended: no data, Le = 65536 encodes as 0000",
			cmd:      &Command{Class: cls, Instruction: insRead, Le: MaxExtendedLe},
			expected: "00B00000000000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Bytes()
			if err != nil {
				t.Fatalf("Bytes() failed: %v", err)
			}
			gotHex := strings.ToUpper(hex.EncodeToString(got))
			wantHex := strings.ToUpper(tt.expected)
			if gotHex != wantHex {
				t.Errorf("got %s, want %s", gotHex, wantHex)
			}
		})
	}
}

func TestCommandEncodeParseRoundTrip(t *testing.T) {
	cls := mustClass(t, 0x00)
	ins := mustIns(t, InsSelect)
	cmd := &Command{Class: cls, Instruction: ins, P1: 0x04, P2: 0x00, Data: []byte{0xA0, 0x00, 0x00}, Le: 0x10}

	raw, err := cmd.Bytes()
	if err != nil {
		t.Fatalf("Bytes() failed: %v", err)
	}

	got, err := ParseCommand(raw)
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}

	if got.P1 != cmd.P1 || got.P2 != cmd.P2 || got.Le != cmd.Le {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, cmd)
	}
	if hex.EncodeToString(got.Data) != hex.EncodeToString(cmd.Data) {
		t.Errorf("data mismatch: got %x, want %x", got.Data, cmd.Data)
	}
}

func TestParseResponse(t *testing.T) {
	raw, _ := hex.DecodeString("6F108407A0000000871002A5050500840100009000")

	resp, err := ParseResponse(raw)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if resp.Status != SWNoError {
		t.Errorf("Status = %04X, want 9000", uint16(resp.Status))
	}
	if len(resp.Data) != len(raw)-2 {
		t.Errorf("Data length = %d, want %d", len(resp.Data), len(raw)-2)
	}

	nodes, err := resp.TLVs()
	if err != nil {
		t.Fatalf("TLVs() failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].TagHex() != "6F" {
		t.Fatalf("top-level TLVs = %+v, want single node tagged 6F", nodes)
	}
}

func TestParseResponseTooShort(t *testing.T) {
	if _, err := ParseResponse([]byte{0x90}); err == nil {
		t.Fatal("expected error for a 1-byte response")
	}
}
