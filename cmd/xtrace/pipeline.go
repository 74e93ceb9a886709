package main

import (
	"fmt"

	"github.com/gregLibert/xtrace/internal/core"
	"github.com/gregLibert/xtrace/internal/iccid"
	"github.com/gregLibert/xtrace/internal/session"
	"github.com/gregLibert/xtrace/internal/trace"
)

// analysis bundles everything a subcommand reads out of one trace file:
// the model itself plus the session and ICCID stages, computed once so
// flow-overview and stats don't each re-run session reconstruction.
type analysis struct {
	pipeline *core.Pipeline
	model    *trace.Model
	warnings []string
	sessions *session.Result
	iccids   []iccid.Detection
}

// loadAnalysis wires a Pipeline from the configured AnalysisConfig, loads
// path, and runs session reconstruction and ICCID scanning eagerly — the
// stages every report subcommand composes from (spec §6's load -> pairs/
// sessions/validate/flow chain).
func loadAnalysis(path string) (*analysis, error) {
	cfg, err := loadAnalysisConfig()
	if err != nil {
		return nil, err
	}
	p := core.New(cfg)

	model, warnings, err := p.Load(path)
	if err != nil {
		return nil, fmt.Errorf("xtrace: load %s: %w", path, err)
	}

	return &analysis{
		pipeline: p,
		model:    model,
		warnings: warnings,
		sessions: p.Sessions(model),
		iccids:   p.ICCID(model),
	}, nil
}

func requireArg(args []string, index int, name string) (string, error) {
	if index >= len(args) {
		return "", fmt.Errorf("xtrace: missing required argument <%s>", name)
	}
	return args[index], nil
}
