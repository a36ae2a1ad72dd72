package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_WithExplicitFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 9090
log_level = "debug"
data_dir = "` + dir + `"

[pool]
agents_file = "` + filepath.Join(dir, "agents.yaml") + `"
default_model = "gpt-4.1"

[upstream]
endpoint = "https://grounding.example.com"
timeout = 30
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel: got %q, want %q", cfg.Server.LogLevel, "debug")
	}
	if cfg.Pool.DefaultModel != "gpt-4.1" {
		t.Errorf("DefaultModel: got %q, want %q", cfg.Pool.DefaultModel, "gpt-4.1")
	}
	if cfg.Upstream.Endpoint != "https://grounding.example.com" {
		t.Errorf("Endpoint: got %q", cfg.Upstream.Endpoint)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 7677
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("GROUNDPOOL_SERVER_PORT", "8888")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8888 {
		t.Errorf("Port with env override: got %d, want 8888", cfg.Server.Port)
	}
}

func TestLoad_ValidationFailure_BadPort(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "bad.toml")

	content := `
[server]
port = 0
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for port 0")
	}
}

func TestLoad_RegionFromEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 7677
log_level = "info"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("REGION_NAME", "swedencentral")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Region != "swedencentral" {
		t.Errorf("Region: got %q, want %q", cfg.Server.Region, "swedencentral")
	}
}

func TestLoad_ExplicitRegionWinsOverEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "test.toml")

	content := `
[server]
port = 7677
log_level = "info"
data_dir = "` + dir + `"
region = "eastus2"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("REGION_NAME", "swedencentral")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Region != "eastus2" {
		t.Errorf("Region: got %q, want %q", cfg.Server.Region, "eastus2")
	}
}

func TestRegionFromEnv_Fallback(t *testing.T) {
	t.Setenv("REGION_NAME", "")
	t.Setenv("AZURE_REGION", "")

	if got := regionFromEnv(); got != "local" {
		t.Errorf("regionFromEnv with no env: got %q, want %q", got, "local")
	}

	t.Setenv("AZURE_REGION", "westeurope")
	if got := regionFromEnv(); got != "westeurope" {
		t.Errorf("regionFromEnv with AZURE_REGION: got %q, want %q", got, "westeurope")
	}

	t.Setenv("REGION_NAME", "swedencentral")
	if got := regionFromEnv(); got != "swedencentral" {
		t.Errorf("REGION_NAME should win: got %q", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Port: got %d, want %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Pool.DefaultModel != DefaultModel {
		t.Errorf("DefaultModel: got %q, want %q", cfg.Pool.DefaultModel, DefaultModel)
	}
	if cfg.Pool.Watch != true {
		t.Error("Pool.Watch: got false, want true")
	}
	if cfg.Cache.Enabled != true {
		t.Error("Cache.Enabled: got false, want true")
	}
	if cfg.Upstream.Timeout != DefaultUpstreamTimeout {
		t.Errorf("Upstream.Timeout: got %d, want %d", cfg.Upstream.Timeout, DefaultUpstreamTimeout)
	}
}

func TestUpstreamConfig_TimeoutDuration(t *testing.T) {
	tests := []struct {
		timeout int
		wantSec int
	}{
		{0, 60},  // default
		{-1, 60}, // negative defaults
		{30, 30},
		{120, 120},
	}

	for _, tt := range tests {
		u := UpstreamConfig{Timeout: tt.timeout}
		got := u.TimeoutDuration().Seconds()
		if int(got) != tt.wantSec {
			t.Errorf("TimeoutDuration(%d): got %v, want %ds", tt.timeout, got, tt.wantSec)
		}
	}
}

func TestConfigFilePath_BeforeLoad(t *testing.T) {
	// Reset to ensure clean state.
	loadedConfigFile.Store("")
	path := ConfigFilePath()
	if path != "" {
		t.Errorf("ConfigFilePath before load: got %q, want empty", path)
	}
}

func TestExportConfig(t *testing.T) {
	dir := t.TempDir()
	exportPath := filepath.Join(dir, "exported.toml")

	cfg := DefaultConfig()
	set(cfg)

	if err := ExportConfig(exportPath); err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Error("exported config is empty")
	}
}

func TestImportConfig(t *testing.T) {
	dir := t.TempDir()
	importPath := filepath.Join(dir, "import.toml")

	content := `
[server]
port = 9999
log_level = "warn"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(importPath, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := ImportConfig(importPath); err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}

	cfg := Get()
	if cfg.Server.Port != 9999 {
		t.Errorf("Port after import: got %d, want 9999", cfg.Server.Port)
	}

	// Reset to default to not affect other tests.
	set(DefaultConfig())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("UserHomeDir: %v", err)
	}

	got := expandHome("~/.groundpool/agents.yaml")
	want := filepath.Join(home, ".groundpool", "agents.yaml")
	if got != want {
		t.Errorf("expandHome: got %q, want %q", got, want)
	}

	if got := expandHome("/absolute/path"); got != "/absolute/path" {
		t.Errorf("expandHome should leave absolute paths alone: got %q", got)
	}
}
