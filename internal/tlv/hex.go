package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex builds a byte slice out of whitespace-separated hex fragments, the
// way a trace's rawhex attribute is written in the source XML. Used almost
// exclusively to build test fixtures without a hex.DecodeString/err pair at
// every call site.
func Hex(parts ...string) []byte {
	fullHex := strings.Join(parts, "")
	cleanHex := strings.ReplaceAll(fullHex, " ", "")

	data, err := hex.DecodeString(cleanHex)
	if err != nil {
		panic(fmt.Sprintf("invalid input %q: %v", cleanHex, err))
	}
	return data
}
