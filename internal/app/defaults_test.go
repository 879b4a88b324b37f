package app

import (
	"os"
	"path/filepath"
	"testing"

	"artai-go/internal/config"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv("ARTAI_CONFIG_PATH", "/custom/config.toml")
		t.Setenv("ARTAI_HOME", "/custom/artai")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		if defaults["config_path"] != "/custom/config.toml" {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], "/custom/config.toml")
		}
		if defaults["base_dir"] != "/custom/artai" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/custom/artai")
		}
		if defaults["log_dir"] != "/custom/artai/log" {
			t.Errorf("log_dir = %q, want %q", defaults["log_dir"], "/custom/artai/log")
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv("ARTAI_CONFIG_PATH", "")
		t.Setenv("ARTAI_HOME", "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "artai.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "artai")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
	})
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ARTAI_BASE_URL", "http://localhost:8000/api/artai")
	t.Setenv("ARTAI_ASSET_BASE_URL", "")
	t.Setenv("ARTAI_LOG_LEVEL", "debug")

	cfg := config.NewConfig("/tmp/artai")
	ApplyEnv(cfg)

	if cfg.BaseURL != "http://localhost:8000/api/artai" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.AssetBaseURL != config.DefaultAssetBaseURL {
		t.Errorf("AssetBaseURL = %q, want unchanged %q", cfg.AssetBaseURL, config.DefaultAssetBaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}
