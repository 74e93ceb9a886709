package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAnalysisConfig(t *testing.T) {
	cfg := DefaultAnalysisConfig()
	if cfg.RoleItemCap != 20 {
		t.Errorf("RoleItemCap = %d, want 20", cfg.RoleItemCap)
	}
	if cfg.NoServiceSeverity != "Warning" {
		t.Errorf("NoServiceSeverity = %q, want Warning", cfg.NoServiceSeverity)
	}
}

func TestLoadAnalysisConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.yaml")
	yamlDoc := `
approved_cipher_suites:
  - TLS_AES_128_GCM_SHA256
hostname_role_patterns:
  ota: "provisioning"
ip_role_table:
  10.0.0.1: "bip-server"
role_item_cap: 5
max_gap_seconds: 10
no_service_severity: "Critical"
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadAnalysisConfig(path)
	if err != nil {
		t.Fatalf("LoadAnalysisConfig failed: %v", err)
	}
	if cfg.RoleItemCap != 5 {
		t.Errorf("RoleItemCap = %d, want 5", cfg.RoleItemCap)
	}
	if cfg.NoServiceSeverity != "Critical" {
		t.Errorf("NoServiceSeverity = %q, want Critical", cfg.NoServiceSeverity)
	}
	if cfg.HostnameRolePatterns["ota"] != "provisioning" {
		t.Errorf("HostnameRolePatterns[ota] = %q, want provisioning", cfg.HostnameRolePatterns["ota"])
	}
}

func TestLoadAnalysisConfigMissingRoleCapDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analysis.yaml")
	if err := os.WriteFile(path, []byte("max_gap_seconds: 5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadAnalysisConfig(path)
	if err != nil {
		t.Fatalf("LoadAnalysisConfig failed: %v", err)
	}
	if cfg.RoleItemCap != defaultRoleItemCap {
		t.Errorf("RoleItemCap = %d, want default %d", cfg.RoleItemCap, defaultRoleItemCap)
	}
}

func TestLoadAnalysisConfigMissingFile(t *testing.T) {
	if _, err := LoadAnalysisConfig("/nonexistent/analysis.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
