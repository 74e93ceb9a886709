package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ConfigFile is the on-disk scenario config format spec §6 names: a
// table of named scenarios plus which one is selected by default,
// structured the way Depgit-log-analyser's query.Constraints is a typed
// shape the caller's declarative input decodes into, rather than a
// free-form map walked at evaluation time.
type ConfigFile struct {
	Scenarios        map[string]ScenarioDef `json:"scenarios"`
	SelectedScenario string                 `json:"selected_scenario"`
}

// ScenarioDef is one named scenario's step sequence and gap constraints.
type ScenarioDef struct {
	Sequence    []Step            `json:"sequence"`
	Constraints constraintsConfig `json:"constraints"`
}

// constraintsConfig is Constraints' JSON shape: the two Status
// fields are free-text (none/warn/fail) rather than the Status enum's
// int encoding, since the config file is meant to be hand-edited.
type constraintsConfig struct {
	MaxGapEnabled     bool    `json:"max_gap_enabled"`
	MaxGapSeconds     float64 `json:"max_gap_seconds"`
	MaxGapOnUnknown   string  `json:"max_gap_on_unknown"`
	MaxGapOnViolation string  `json:"max_gap_on_violation"`
}

func (c constraintsConfig) toConstraints() Constraints {
	return Constraints{
		MaxGapEnabled:     c.MaxGapEnabled,
		MaxGapSeconds:     c.MaxGapSeconds,
		MaxGapOnUnknown:   statusFromString(c.MaxGapOnUnknown),
		MaxGapOnViolation: statusFromString(c.MaxGapOnViolation),
	}
}

// Constraints returns def's constraints converted to the Run-ready type.
func (def ScenarioDef) Constraints() Constraints {
	return def.Constraints.toConstraints()
}

func statusFromString(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warn", "warning":
		return Warn
	case "fail", "failure":
		return Fail
	default:
		return OK
	}
}

func requirementFromString(s string) Requirement {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "optional":
		return Optional
	case "forbidden":
		return Forbidden
	default:
		return Required
	}
}

// stepJSON mirrors a ScenarioStep object's JSON fields (spec §3); a Step
// written as a bare string is the shorthand `{kind: string, presence:
// Required}`.
type stepJSON struct {
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	AnyOf    []string `json:"any_of"`
	Min      *int     `json:"min"`
	Max      *int     `json:"max"`
	Presence string   `json:"presence"`
	Scope    string   `json:"scope"`
	TooFew   string   `json:"too_few"`
	TooMany  string   `json:"too_many"`
}

// UnmarshalJSON implements the shorthand/object duality spec §3 and §6
// describe for a ScenarioStep.
func (s *Step) UnmarshalJSON(data []byte) error {
	var shorthand string
	if err := json.Unmarshal(data, &shorthand); err == nil {
		*s = Step{Kind: shorthand, Requirement: Required, Min: 1, Max: 1}
		return nil
	}

	var raw stepJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("scenario: decode step: %w", err)
	}

	step := Step{Label: raw.Label, Kind: raw.Kind, AnyOf: raw.AnyOf}
	step.Requirement = requirementFromString(raw.Presence)

	switch step.Requirement {
	case Optional:
		step.Min, step.Max = 0, 1
	case Forbidden:
		step.Min, step.Max = 0, 0
	default:
		step.Min, step.Max = 1, 1
	}
	if raw.Min != nil {
		step.Min = *raw.Min
	}
	if raw.Max != nil {
		step.Max = *raw.Max
	}
	if strings.EqualFold(raw.Scope, "global") {
		step.Scope = ScopeGlobal
	}
	if raw.TooFew != "" {
		step.TooFewOverridden = true
		step.TooFew = statusFromString(raw.TooFew)
	}
	if raw.TooMany != "" {
		step.TooManyOverridden = true
		step.TooMany = statusFromString(raw.TooMany)
	}

	*s = step
	return nil
}

// LoadConfigFile reads and decodes a scenario config file from path.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read config %s: %w", path, err)
	}
	var cfg ConfigFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("scenario: parse config %s: %w", path, err)
	}
	return &cfg, nil
}
