// Package xerrors defines the error taxonomy used across the trace
// analysis pipeline. Each category is a sentinel error (in the style of
// 90karatinsa-ch10gate's internal/ch10 sentinel errors) that call sites
// wrap with context via fmt.Errorf("...: %w", err), and callers further up
// the stack recover with errors.Is/errors.As.
package xerrors

import (
	"errors"
	"strconv"
)

var (
	// ErrInvalidXML marks a document-level parse failure. Fatal at
	// ingestion: nothing downstream runs when this is returned.
	ErrInvalidXML = errors.New("invalid xml document")

	// ErrMalformedItem marks a single trace item that could not be
	// parsed. Recorded as a Warning issue; the item is still included
	// in the model with an empty interpretation.
	ErrMalformedItem = errors.New("malformed trace item")

	// ErrDecoderFailure marks an APDU/TLV/TLS/DNS/X.509 decoder that
	// could not proceed on a particular buffer. Localised to that
	// buffer; never aborts the pipeline.
	ErrDecoderFailure = errors.New("decoder failure")

	// ErrStateMachineViolation marks a channel-session state violation
	// (CLOSE without OPEN, unclosed channel, duplicate OPEN). Surfaced
	// as a Critical ValidationIssue.
	ErrStateMachineViolation = errors.New("state machine violation")

	// ErrComplianceWarning marks a non-fatal compliance concern (weak
	// TLS version, expired certificate, non-approved cipher). Surfaced
	// as a Warning ValidationIssue.
	ErrComplianceWarning = errors.New("compliance warning")

	// ErrScenarioViolation marks a scenario step that did not match.
	// Non-fatal; produces a per-step status with a reason.
	ErrScenarioViolation = errors.New("scenario violation")
)

// InvalidXMLError wraps ErrInvalidXML with the document-level detail that
// caused ingestion to abort.
type InvalidXMLError struct {
	Path string
	Err  error
}

func (e *InvalidXMLError) Error() string {
	if e.Path != "" {
		return "invalid xml document " + e.Path + ": " + e.Err.Error()
	}
	return "invalid xml document: " + e.Err.Error()
}

func (e *InvalidXMLError) Unwrap() error { return errors.Join(ErrInvalidXML, e.Err) }

// MalformedItemError wraps ErrMalformedItem with the index of the trace
// item that failed to parse.
type MalformedItemError struct {
	Index int
	Err   error
}

func (e *MalformedItemError) Error() string {
	return "malformed trace item at index " + strconv.Itoa(e.Index) + ": " + e.Err.Error()
}

func (e *MalformedItemError) Unwrap() error { return errors.Join(ErrMalformedItem, e.Err) }

// DecoderFailureError wraps ErrDecoderFailure with the name of the decoder
// that failed and the buffer it failed on.
type DecoderFailureError struct {
	Decoder string
	Err     error
}

func (e *DecoderFailureError) Error() string {
	return e.Decoder + " decoder failure: " + e.Err.Error()
}

func (e *DecoderFailureError) Unwrap() error { return errors.Join(ErrDecoderFailure, e.Err) }
