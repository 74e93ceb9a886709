// Command xtrace is the CLI surface spec.md §6 names: a thin cobra
// wrapper around internal/core.Pipeline, grounded on ajkula-CyberRaven's
// root main.go (persistent flags, PersistentPreRunE config loading,
// subcommands delegating to an Execute(cmd, args) error per file) and
// gregLibert-smart-card's main.go narrated step-by-step style carried
// into each subcommand's plain-text report body.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gregLibert/xtrace/internal/config"
	"github.com/gregLibert/xtrace/internal/xerrors"
	"github.com/gregLibert/xtrace/internal/xlog"
)

// Exit codes per spec.md §6.
const (
	exitOK           = 0
	exitInvalidInput = 2
	exitInvalidXML   = 3
	exitScenarioFail = 4
)

// exitCode is set by a subcommand that needs a non-zero success exit
// (the scenario command's "overall status Fail" case, spec §6) without
// that outcome being reported through cobra as a command error.
var exitCode = exitOK

var (
	analysisConfigPath string
	cliConfigPath      string
	logFilePath        string
	outFormat          string
	outPath            string
)

var rootCmd = &cobra.Command{
	Use:   "xtrace",
	Short: "Analyze SIM/eUICC Universal-Tracer trace files",
	Long: `xtrace decodes Universal-Tracer (.xti) trace files into FETCH/TERMINAL-RESPONSE
pairings, reconstructed BIP channel sessions, a validation report, a
chronological flow timeline, and declarative scenario matching.`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logFilePath != "" {
			xlog.UseFile(logFilePath)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&analysisConfigPath, "analysis-config", "", "path to AnalysisConfig YAML file")
	rootCmd.PersistentFlags().StringVar(&cliConfigPath, "cli-config", "", "path to CLI preferences TOML file")
	rootCmd.PersistentFlags().StringVar(&logFilePath, "log-file", "", "rotate logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&outFormat, "format", "", "output format: text or json (overrides CLI preferences)")
	rootCmd.PersistentFlags().StringVar(&outPath, "out", "", "write output to this file instead of stdout")

	rootCmd.AddCommand(flowOverviewCmd, flowSessionsCmd, flowEventsCmd, parsingLogCmd, iccidCmd, statsCmd, scenarioCmd)
}

func loadAnalysisConfig() (config.AnalysisConfig, error) {
	if analysisConfigPath == "" {
		return config.DefaultAnalysisConfig(), nil
	}
	return config.LoadAnalysisConfig(analysisConfigPath)
}

func loadCLIConfig() (config.CLIConfig, error) {
	if cliConfigPath == "" {
		return config.DefaultCLIConfig(), nil
	}
	return config.LoadCLIConfig(cliConfigPath)
}

// resolveFormat applies spec §6's precedence: the --format flag, else the
// CLI preferences file, else "text".
func resolveFormat() (string, error) {
	if outFormat != "" {
		return outFormat, nil
	}
	cliCfg, err := loadCLIConfig()
	if err != nil {
		return "", err
	}
	return cliCfg.Format, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(codeFor(err))
	}
	os.Exit(exitCode)
}

// codeFor maps an error returned from a subcommand's Execute to one of
// spec §6's exit codes: an invalid-XML document gets its own code, every
// other failure (bad flags, missing files, malformed config) is a plain
// invalid-input failure.
func codeFor(err error) int {
	if errors.Is(err, xerrors.ErrInvalidXML) {
		return exitInvalidXML
	}
	return exitInvalidInput
}
