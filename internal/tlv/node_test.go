package tlv

import (
	"bytes"
	"testing"
)

func TestDecodeRoundTrip(t *testing.T) {
	data := Hex(
		"9F02", "02", "1234", // BIP-style proprietary leaf tag
		"A5", "04", "82", "02", "AABB", // constructed tag with one child
	)

	nodes, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("got %d top-level nodes, want 2", len(nodes))
	}

	leaf := nodes[0]
	if leaf.TagHex() != "9F02" || leaf.Constructed {
		t.Errorf("leaf node = %+v, want tag 9F02 non-constructed", leaf)
	}
	if !bytes.Equal(leaf.Value, Hex("1234")) {
		t.Errorf("leaf value = %X, want 1234", leaf.Value)
	}

	template := nodes[1]
	if !template.Constructed || len(template.Children) != 1 {
		t.Fatalf("template node = %+v, want constructed with 1 child", template)
	}
	if template.Children[0].TagHex() != "82" {
		t.Errorf("child tag = %s, want 82", template.Children[0].TagHex())
	}

	var rebuilt []byte
	for _, n := range nodes {
		rebuilt = append(rebuilt, n.Bytes()...)
	}
	if !bytes.Equal(rebuilt, data) {
		t.Errorf("round trip = %X, want %X", rebuilt, data)
	}
}

func TestDecodeMultiByteTag(t *testing.T) {
	data := Hex("BF", "0C", "02", "8000") // constructed multi-byte tag BF0C

	nodes, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].TagHex() != "BF0C" {
		t.Fatalf("got %+v, want single node tagged BF0C", nodes)
	}
	if len(nodes[0].Children) != 1 || nodes[0].Children[0].TagHex() != "80" {
		t.Errorf("children = %+v, want single child tagged 80", nodes[0].Children)
	}
}

func TestDecodeLongFormLength(t *testing.T) {
	value := bytes.Repeat([]byte{0xAB}, 200)
	data := append(Hex("81", "81", "C8"), value...) // 0xC8 = 200

	nodes, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Length != 200 {
		t.Fatalf("got %+v, want length 200", nodes)
	}
	if !bytes.Equal(nodes[0].Value, value) {
		t.Errorf("value mismatch, got %d bytes", len(nodes[0].Value))
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := Hex("82", "05", "AABB") // declares 5 bytes, only has 2

	_, err := Decode(data)
	if err == nil {
		t.Fatal("expected error for truncated value, got nil")
	}
}

func TestFindAndFindRecursive(t *testing.T) {
	data := Hex(
		"9F02", "02", "1234",
		"A5", "04", "82", "02", "AABB",
	)
	nodes, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if Find(nodes, "9f02") == nil {
		t.Error("Find(9F02) = nil, want a match")
	}
	if Find(nodes, "82") != nil {
		t.Error("Find(82) should not match a nested child")
	}
	if FindRecursive(nodes, "82") == nil {
		t.Error("FindRecursive(82) = nil, want a match inside A5")
	}
	if FindRecursive(nodes, "FF") != nil {
		t.Error("FindRecursive(FF) should not match anything")
	}
}
