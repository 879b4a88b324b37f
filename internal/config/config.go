package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	DefaultBaseURL      = "https://crm.actium.ro/api/artai"
	DefaultAssetBaseURL = "https://crm.actium.ro"
	DefaultUserAgent    = "artai-go"
	DefaultTimeout      = 30
)

// Config represents the main configuration for artai.
type Config struct {
	BaseURL        string           `toml:"base_url"`
	AssetBaseURL   string           `toml:"asset_base_url"`
	BaseDir        string           `toml:"base_dir"`
	LogDir         string           `toml:"log_dir"`
	LogLevel       string           `toml:"log_level"`       // "debug", "info" (default), "warn" or "error"
	TimeoutSeconds int              `toml:"timeout_seconds"` // per request; 0 means no timeout
	UserAgent      string           `toml:"user_agent"`
	TokenStore     TokenStoreConfig `toml:"token_store"`
	Cache          CacheConfig      `toml:"cache"`
	S3             S3Config         `toml:"s3"`
}

// TokenStoreConfig represents where the session token is persisted.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type TokenStoreConfig struct {
	Type string `toml:"type"` // "memory", "file", "sqlite" or "age"

	// Token file (Type == "file" or "age")
	Path string `toml:"path,omitempty"`

	// Directory holding artai.db (Type == "sqlite")
	DataDir string `toml:"data_dir,omitempty"`

	// X25519 identity file, created on first save (Type == "age")
	IdentityPath string `toml:"identity_path,omitempty"`
}

// CacheConfig holds how many seconds each kind of data is served from the
// cache before it is refetched.
type CacheConfig struct {
	ImagesSeconds          int `toml:"images_seconds"`
	ImageSeconds           int `toml:"image_seconds"`
	CategoriesSeconds      int `toml:"categories_seconds"`
	TagsSeconds            int `toml:"tags_seconds"`
	ImageCategoriesSeconds int `toml:"image_categories_seconds"`
	HistorySeconds         int `toml:"history_seconds"`
	LikesSeconds           int `toml:"likes_seconds"`
	ReferencesSeconds      int `toml:"references_seconds"`
	SessionsSeconds        int `toml:"sessions_seconds"`
}

// S3Config configures reading upload sources from s3:// URLs. Empty fields
// fall back to the default AWS credential chain.
type S3Config struct {
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `toml:"use_path_style,omitempty"`
}

// NewConfig creates a new Config rooted at baseDir with default settings.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseURL:        DefaultBaseURL,
		AssetBaseURL:   DefaultAssetBaseURL,
		BaseDir:        baseDir,
		LogDir:         filepath.Join(baseDir, "log"),
		LogLevel:       "info",
		TimeoutSeconds: DefaultTimeout,
		UserAgent:      DefaultUserAgent,
		TokenStore: TokenStoreConfig{
			Type: "file",
			Path: filepath.Join(baseDir, "token"),
		},
		Cache: CacheConfig{
			ImageSeconds:           30,
			CategoriesSeconds:      600,
			TagsSeconds:            600,
			ImageCategoriesSeconds: 60,
		},
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be an http or https URL, got %q", c.BaseURL)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level: %q", c.LogLevel)
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	switch c.TokenStore.Type {
	case "memory":
	case "file", "":
		if c.TokenStore.Path == "" {
			return fmt.Errorf("file token store requires path to be set")
		}
	case "sqlite":
		if c.TokenStore.DataDir == "" {
			return fmt.Errorf("sqlite token store requires data_dir to be set")
		}
	case "age":
		if c.TokenStore.Path == "" || c.TokenStore.IdentityPath == "" {
			return fmt.Errorf("age token store requires path and identity_path to be set")
		}
	default:
		return fmt.Errorf("unknown token store type: %q", c.TokenStore.Type)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to path. The file may hold S3 keys, so it is
// only readable by the owner.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
