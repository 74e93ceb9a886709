// Package tlv implements BER-TLV decoding for APDU command/response bodies,
// adapted from the struct-tag TLV mapper in github.com/gregLibert/smart-card's
// pkg/tlv onto the trace analyzer's Tlv node model (spec §3): every tag keeps
// its byte range so callers can navigate hex<->TLV without re-walking the
// buffer.
package tlv

import "fmt"

// Node is one BER-TLV element. TagOffset/ValueOffset/End are byte offsets
// into the buffer Decode was called with, so a consumer (GUI, validator)
// can slice the original buffer to recover exactly the bytes that produced
// this node.
type Node struct {
	Tag         []byte
	Constructed bool
	Length      int
	TagOffset   int
	LengthOffset int
	ValueOffset int
	End         int
	Value       []byte
	Children    []*Node
}

// TagHex renders the tag bytes as an uppercase hex string, the same format
// moov-io/bertlv uses for its Tag field, so lookups against tag tables
// written as "8D" or "BF0C" line up either way.
func (n *Node) TagHex() string {
	const hextable = "0123456789ABCDEF"
	out := make([]byte, 0, len(n.Tag)*2)
	for _, b := range n.Tag {
		out = append(out, hextable[b>>4], hextable[b&0x0F])
	}
	return string(out)
}

// Bytes reconstructs the exact TLV encoding of this node (tag+length+value),
// used by the round-trip test in internal/tlv/node_test.go.
func (n *Node) Bytes() []byte {
	out := make([]byte, 0, n.End-n.TagOffset)
	out = append(out, n.Tag...)
	out = append(out, encodeLength(n.Length)...)
	out = append(out, n.Value...)
	return out
}

// Decode walks data as a sequence of top-level BER-TLV elements, recursing
// into constructed tags. It never returns a partial error for the whole
// buffer: a node whose declared length runs past the end of data is
// reported via err and decoding of the top-level sequence stops there,
// exactly like the teacher's APDU parser stops at the first malformed byte
// instead of guessing.
func Decode(data []byte) ([]*Node, error) {
	var nodes []*Node
	offset := 0
	for offset < len(data) {
		node, next, err := decodeOne(data, offset)
		if err != nil {
			return nodes, err
		}
		nodes = append(nodes, node)
		offset = next
	}
	return nodes, nil
}

func decodeOne(data []byte, offset int) (*Node, int, error) {
	start := offset
	if offset >= len(data) {
		return nil, offset, fmt.Errorf("tlv: unexpected end of data at offset %d", offset)
	}

	first := data[offset]
	constructed := first&0x20 != 0
	tagEnd := offset + 1

	// "more tags" rule: low 5 bits of the first byte all set (0x1F) means
	// the tag continues; each subsequent byte with bit 8 set continues
	// further, terminating at the first byte with bit 8 clear.
	if first&0x1F == 0x1F {
		for {
			if tagEnd >= len(data) {
				return nil, offset, fmt.Errorf("tlv: truncated multi-byte tag at offset %d", offset)
			}
			b := data[tagEnd]
			tagEnd++
			if b&0x80 == 0 {
				break
			}
		}
	}
	tagBytes := data[offset:tagEnd]

	if tagEnd >= len(data) {
		return nil, offset, fmt.Errorf("tlv: truncated length at offset %d", tagEnd)
	}

	length, lengthEnd, err := decodeLength(data, tagEnd)
	if err != nil {
		return nil, offset, err
	}

	valueOffset := lengthEnd
	valueEnd := valueOffset + length
	if valueEnd > len(data) {
		return nil, offset, fmt.Errorf("tlv: tag %X declares length %d but only %d bytes remain", tagBytes, length, len(data)-valueOffset)
	}

	node := &Node{
		Tag:          append([]byte(nil), tagBytes...),
		Constructed:  constructed,
		Length:       length,
		TagOffset:    start,
		LengthOffset: tagEnd,
		ValueOffset:  valueOffset,
		End:          valueEnd,
		Value:        data[valueOffset:valueEnd],
	}

	if constructed {
		children, err := Decode(node.Value)
		if err != nil {
			// Malformed children don't invalidate the parent node itself
			// (DecoderFailure is buffer-local, spec §7): the child error is
			// dropped and Children keeps whatever decoded before it.
			node.Children = children
		} else {
			node.Children = children
		}
	}

	return node, valueEnd, nil
}

func decodeLength(data []byte, offset int) (int, int, error) {
	if offset >= len(data) {
		return 0, offset, fmt.Errorf("tlv: missing length byte at offset %d", offset)
	}
	b := data[offset]
	if b < 0x80 {
		return int(b), offset + 1, nil
	}
	numBytes := int(b & 0x7F)
	if numBytes == 0 {
		return 0, offset, fmt.Errorf("tlv: indefinite length form not supported at offset %d", offset)
	}
	if offset+1+numBytes > len(data) {
		return 0, offset, fmt.Errorf("tlv: truncated long-form length at offset %d", offset)
	}
	length := 0
	for i := 0; i < numBytes; i++ {
		length = length<<8 | int(data[offset+1+i])
	}
	return length, offset + 1 + numBytes, nil
}

func encodeLength(length int) []byte {
	if length < 0x80 {
		return []byte{byte(length)}
	}
	var b []byte
	n := length
	for n > 0 {
		b = append([]byte{byte(n)}, b...)
		n >>= 8
	}
	return append([]byte{byte(0x80 | len(b))}, b...)
}

// Find returns the first top-level node matching tagHex (case-insensitive),
// searching only the given slice, not descending into unrelated siblings'
// children.
func Find(nodes []*Node, tagHex string) *Node {
	for _, n := range nodes {
		if equalFoldHex(n.TagHex(), tagHex) {
			return n
		}
	}
	return nil
}

// FindRecursive searches nodes and all descendants for the first node
// matching tagHex.
func FindRecursive(nodes []*Node, tagHex string) *Node {
	for _, n := range nodes {
		if equalFoldHex(n.TagHex(), tagHex) {
			return n
		}
		if found := FindRecursive(n.Children, tagHex); found != nil {
			return found
		}
	}
	return nil
}

func equalFoldHex(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'a' && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if cb >= 'a' && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
