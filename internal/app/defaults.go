package app

import (
	"fmt"
	"os"
	"path/filepath"

	"artai-go/internal/config"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - ARTAI_CONFIG_PATH: config file location (default: ~/.config/artai.toml)
//   - ARTAI_HOME: base directory for artai data (default: ~/.local/share/artai)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking ARTAI_CONFIG_PATH env var first,
// then falling back to the default ~/.config/artai.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("ARTAI_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "artai.toml"), nil
}

// getBaseDir returns the base directory for artai data, checking ARTAI_HOME env var first,
// then falling back to the XDG default ~/.local/share/artai.
func getBaseDir() (string, error) {
	if path := os.Getenv("ARTAI_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "artai"), nil
}

// ApplyEnv overrides config settings from the environment (or a loaded .env):
//   - ARTAI_BASE_URL: API base URL
//   - ARTAI_ASSET_BASE_URL: base URL image file paths resolve against
//   - ARTAI_LOG_LEVEL: minimum log level
func ApplyEnv(cfg *config.Config) {
	if v := os.Getenv("ARTAI_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("ARTAI_ASSET_BASE_URL"); v != "" {
		cfg.AssetBaseURL = v
	}
	if v := os.Getenv("ARTAI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
