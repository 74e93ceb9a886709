package xerrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestInvalidXMLErrorIs(t *testing.T) {
	base := errors.New("unexpected EOF")
	err := &InvalidXMLError{Path: "trace.xti", Err: base}

	if !errors.Is(err, ErrInvalidXML) {
		t.Errorf("errors.Is(err, ErrInvalidXML) = false, want true")
	}
	if !errors.Is(err, base) {
		t.Errorf("errors.Is(err, base) = false, want true")
	}
}

func TestMalformedItemErrorIs(t *testing.T) {
	base := errors.New("missing apdu element")
	err := &MalformedItemError{Index: 7, Err: base}

	if !errors.Is(err, ErrMalformedItem) {
		t.Errorf("errors.Is(err, ErrMalformedItem) = false, want true")
	}
	if got, want := err.Error(), "malformed trace item at index 7: missing apdu element"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestDecoderFailureErrorIs(t *testing.T) {
	base := errors.New("truncated length byte")
	err := &DecoderFailureError{Decoder: "tlv", Err: base}

	if !errors.Is(err, ErrDecoderFailure) {
		t.Errorf("errors.Is(err, ErrDecoderFailure) = false, want true")
	}
	if got, want := err.Error(), "tlv decoder failure: truncated length byte"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrappedWithFmtErrorf(t *testing.T) {
	decErr := &DecoderFailureError{Decoder: "x509", Err: errors.New("bad ASN.1")}
	wrapped := fmt.Errorf("certificate parse: %w", decErr)

	if !errors.Is(wrapped, ErrDecoderFailure) {
		t.Errorf("errors.Is(wrapped, ErrDecoderFailure) = false, want true")
	}

	var target *DecoderFailureError
	if !errors.As(wrapped, &target) {
		t.Fatalf("errors.As failed to recover *DecoderFailureError")
	}
	if target.Decoder != "x509" {
		t.Errorf("Decoder = %q, want x509", target.Decoder)
	}
}
