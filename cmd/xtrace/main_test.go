package main

import (
	"errors"
	"testing"
	"time"

	"github.com/gregLibert/xtrace/internal/xerrors"
)

func TestCodeForInvalidXMLError(t *testing.T) {
	err := &xerrors.InvalidXMLError{Path: "trace.xti", Err: errors.New("boom")}
	if got := codeFor(err); got != exitInvalidXML {
		t.Fatalf("codeFor = %d, want %d", got, exitInvalidXML)
	}
}

func TestCodeForOtherErrorsAreInvalidInput(t *testing.T) {
	if got := codeFor(errors.New("missing file")); got != exitInvalidInput {
		t.Fatalf("codeFor = %d, want %d", got, exitInvalidInput)
	}
}

func TestFormatTimestampNil(t *testing.T) {
	if got := formatTimestamp(nil); got != "-" {
		t.Fatalf("formatTimestamp(nil) = %q, want %q", got, "-")
	}
}

func TestFormatTimestampFormatsUTC(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := formatTimestamp(&ts)
	want := "2026-01-02T03:04:05Z"
	if got != want {
		t.Fatalf("formatTimestamp = %q, want %q", got, want)
	}
}
