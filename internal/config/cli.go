package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"
)

// CLIConfig holds developer/workstation defaults for cmd/xtrace, grounded
// on danmuck-edgectl's internal/config load-then-validate-then-default
// pattern. CLI flags always take precedence over values loaded here.
type CLIConfig struct {
	Format      string `toml:"format"`
	LogFile     string `toml:"log_file"`
	ScenarioDir string `toml:"scenario_dir"`
}

// DefaultCLIConfig mirrors cmd/xtrace's flag defaults (§6): text output,
// no log file (stderr console writer), no scenario directory.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{Format: "text"}
}

// LoadCLIConfig reads a CLIConfig from a TOML file. A missing file is not
// an error — DefaultCLIConfig is returned unchanged, since CLI preferences
// are optional per spec.md §6.
func LoadCLIConfig(path string) (CLIConfig, error) {
	cfg := DefaultCLIConfig()

	var loaded CLIConfig
	if _, err := toml.DecodeFile(path, &loaded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return CLIConfig{}, fmt.Errorf("config: parse cli config %s: %w", path, err)
	}
	if loaded.Format != "" {
		cfg.Format = loaded.Format
	}
	cfg.LogFile = loaded.LogFile
	cfg.ScenarioDir = loaded.ScenarioDir

	if err := ValidateCLIConfig(cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

// ValidateCLIConfig rejects an output format cmd/xtrace doesn't support.
func ValidateCLIConfig(cfg CLIConfig) error {
	switch strings.ToLower(cfg.Format) {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("config: unsupported format %q, want text or json", cfg.Format)
	}
}
