// Package xlog wires the pipeline's structured logging, merging
// danmuck-edgectl's zerolog console setup
// (internal/observability.InitLogger) with 90karatinsa-ch10gate's
// lumberjack-backed file rotation (cmd/ch10d's setupLogging).
package xlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var root = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().Timestamp().Str("app", "xtrace").Logger()

// Rotation defaults matching ch10gate's production cmd/ch10d values.
const (
	defaultMaxSizeMB = 10
	defaultMaxAge    = 28
	defaultBackups   = 5
)

// SetOutput redirects the root logger to w, replacing the default stderr
// console writer. Used by the CLI to switch to a lumberjack file sink.
func SetOutput(w io.Writer) {
	root = zerolog.New(w).With().Timestamp().Str("app", "xtrace").Logger()
}

// UseFile points the root logger at a rotating log file (10MB/5
// backups/28 days), returning the underlying *lumberjack.Logger so the
// caller can close it on shutdown.
func UseFile(path string) *lumberjack.Logger {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    defaultMaxSizeMB,
		MaxAge:     defaultMaxAge,
		MaxBackups: defaultBackups,
	}
	SetOutput(rotator)
	return rotator
}

// New returns a child logger tagged component=name.
func New(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}
