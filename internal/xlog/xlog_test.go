package xlog

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
)

func TestNewTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(io.Discard) })

	New("ingest").Info().Msg("loaded trace")

	var fields map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &fields); err != nil {
		t.Fatalf("failed to decode log line: %v, raw=%s", err, buf.String())
	}
	if fields["component"] != "ingest" {
		t.Errorf("component = %v, want ingest", fields["component"])
	}
	if fields["app"] != "xtrace" {
		t.Errorf("app = %v, want xtrace", fields["app"])
	}
	if fields["message"] != "loaded trace" {
		t.Errorf("message = %v, want %q", fields["message"], "loaded trace")
	}
}

func TestUseFileReturnsRotator(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/xtrace.log"

	rotator := UseFile(path)
	t.Cleanup(func() { SetOutput(io.Discard) })

	if rotator.Filename != path {
		t.Errorf("Filename = %q, want %q", rotator.Filename, path)
	}
	if rotator.MaxSize != defaultMaxSizeMB || rotator.MaxAge != defaultMaxAge || rotator.MaxBackups != defaultBackups {
		t.Errorf("rotation defaults = %+v, want %d/%d/%d", rotator, defaultMaxSizeMB, defaultMaxAge, defaultBackups)
	}
}

