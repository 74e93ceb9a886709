package tlv

import (
	"bytes"
	"testing"
)

func TestHex(t *testing.T) {
	tests := []struct {
		name      string
		inputs    []string
		want      []byte
		wantPanic bool
	}{
		{
			name:   "simple join",
			inputs: []string{"81", "03"},
			want:   []byte{0x81, 0x03},
		},
		{
			name:   "with spaces",
			inputs: []string{"8D 04", " 01 00 "},
			want:   []byte{0x8D, 0x04, 0x01, 0x00},
		},
		{
			name:   "mixed case",
			inputs: []string{"bf", "0C"},
			want:   []byte{0xBF, 0x0C},
		},
		{
			name:      "invalid hex",
			inputs:    []string{"GG"},
			wantPanic: true,
		},
		{
			name:      "odd length",
			inputs:    []string{"abc"},
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				if (r != nil) != tt.wantPanic {
					t.Errorf("Hex() panic = %v, wantPanic %v", r, tt.wantPanic)
				}
			}()

			got := Hex(tt.inputs...)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Hex() = %X, want %X", got, tt.want)
			}
		})
	}
}
