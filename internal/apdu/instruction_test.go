package apdu

import "testing"

func TestDecodeInstruction(t *testing.T) {
	tests := []struct {
		name     string
		ins      InsCode
		wantErr  bool
		wantBER  bool
	}{
		{name: "SELECT", ins: InsSelect, wantBER: false},
		{name: "READ BINARY BER has bit 1 set", ins: InsReadBinaryBER, wantBER: true},
		{name: "FETCH", ins: InsFetch, wantBER: false},
		{name: "reserved 6X", ins: InsCode(0x6A), wantErr: true},
		{name: "reserved 9X", ins: InsCode(0x91), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInstruction(tt.ins)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeInstruction(%#x) error = %v, wantErr %v", tt.ins, err, tt.wantErr)
			}
			if err == nil && got.IsBERTLV != tt.wantBER {
				t.Errorf("IsBERTLV = %v, want %v", got.IsBERTLV, tt.wantBER)
			}
		})
	}
}

func TestInsCodeString(t *testing.T) {
	if got := InsFetch.String(); got != "FETCH" {
		t.Errorf("InsFetch.String() = %q, want FETCH", got)
	}
	if got := InsCode(0x55).String(); got != "UNKNOWN (0x55)" {
		t.Errorf("unknown INS String() = %q, want UNKNOWN (0x55)", got)
	}
}
