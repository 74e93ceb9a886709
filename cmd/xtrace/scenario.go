package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gregLibert/xtrace/internal/scenario"
)

var (
	scenarioList   bool
	scenarioConfig string
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario [<name> <file>]",
	Short: "List or run declarative scenario matches against a trace file",
	Long: `With -l, lists the scenario names defined in the scenario config file.
Otherwise, runs the named scenario's step sequence against <file>'s flow
timeline and reports each step's outcome (spec §4.12).`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runScenario,
}

func init() {
	scenarioCmd.Flags().BoolVarP(&scenarioList, "list", "l", false, "list scenario names instead of running one")
	scenarioCmd.Flags().StringVar(&scenarioConfig, "scenario-config", "", "path to the scenario config file (defaults to <cli-config scenario_dir>/scenarios.json)")
}

func resolveScenarioConfigPath() (string, error) {
	if scenarioConfig != "" {
		return scenarioConfig, nil
	}
	cliCfg, err := loadCLIConfig()
	if err != nil {
		return "", err
	}
	if cliCfg.ScenarioDir == "" {
		return "", fmt.Errorf("xtrace: no --scenario-config given and no scenario_dir configured")
	}
	return filepath.Join(cliCfg.ScenarioDir, "scenarios.json"), nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	configPath, err := resolveScenarioConfigPath()
	if err != nil {
		return err
	}
	cfg, err := scenario.LoadConfigFile(configPath)
	if err != nil {
		return err
	}

	if scenarioList {
		return listScenarios(cfg)
	}

	name, err := requireArg(args, 0, "name")
	if err != nil {
		return err
	}
	tracePath, err := requireArg(args, 1, "file")
	if err != nil {
		return err
	}

	def, ok := cfg.Scenarios[name]
	if !ok {
		return fmt.Errorf("xtrace: scenario %q not found in %s", name, configPath)
	}

	a, err := loadAnalysis(tracePath)
	if err != nil {
		return err
	}

	timeline := a.pipeline.Flow(a.model, a.sessions, a.iccids)
	issues := a.pipeline.Validate(a.model, a.sessions, a.iccids)
	result := a.pipeline.RunScenario(timeline, def.Sequence, def.Constraints(), issues)

	if result.Overall == scenario.Fail {
		exitCode = exitScenarioFail
	}

	format, err := resolveFormat()
	if err != nil {
		return err
	}
	return writeOutput(format, toScenarioView(result), func(w io.Writer) error {
		return renderScenarioText(w, result)
	})
}

func listScenarios(cfg *scenario.ConfigFile) error {
	names := make([]string, 0, len(cfg.Scenarios))
	for name := range cfg.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	format, err := resolveFormat()
	if err != nil {
		return err
	}
	return writeOutput(format, names, func(w io.Writer) error {
		for _, name := range names {
			marker := "  "
			if name == cfg.SelectedScenario {
				marker = "* "
			}
			if _, err := fmt.Fprintf(w, "%s%s\n", marker, name); err != nil {
				return err
			}
		}
		return nil
	})
}

type scenarioStepView struct {
	Label        string   `json:"label"`
	Status       string   `json:"status"`
	Reason       string   `json:"reason,omitempty"`
	MatchedTypes []string `json:"matched_types,omitempty"`
	ItemIndices  []int    `json:"item_indices,omitempty"`
}

type scenarioView struct {
	Overall string             `json:"overall"`
	Steps   []scenarioStepView `json:"steps"`
}

func toScenarioView(result *scenario.Result) scenarioView {
	view := scenarioView{Overall: result.Overall.String()}
	for _, sr := range result.Steps {
		view.Steps = append(view.Steps, scenarioStepView{
			Label:        sr.Label,
			Status:       sr.Status.String(),
			Reason:       sr.Reason,
			MatchedTypes: sr.MatchedTypes,
			ItemIndices:  sr.ItemIndices,
		})
	}
	return view
}

func renderScenarioText(w io.Writer, result *scenario.Result) error {
	for _, sr := range result.Steps {
		reason := ""
		if sr.Reason != "" {
			reason = " (" + sr.Reason + ")"
		}
		if _, err := fmt.Fprintf(w, "[%s] %-20s matched=%d%s\n", sr.Status, sr.Label, len(sr.ItemIndices), reason); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "overall: %s\n", result.Overall)
	return err
}
