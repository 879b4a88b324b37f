package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"artai-go/internal/app"
	"artai-go/internal/artai"
	"artai-go/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if artai.IsRetryable(err) {
			fmt.Fprintln(os.Stderr, "The server may be temporarily unavailable; try again.")
		}
		stop()
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when none has
// been initialized, and applies environment overrides.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.NewConfig(defaults["base_dir"])
	} else if err != nil {
		return nil, "", fmt.Errorf("reading config: %w", err)
	}
	app.ApplyEnv(cfg)
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates an ArtaiApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Login", "ListImages").
func newApp(operation string, args []string) (*app.ArtaiApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewArtaiApp(cfg, operation, strings.Join(args, " "))
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// run creates the app, runs fn and records its outcome.
func run(cmd *cobra.Command, operation string, args []string, fn func(ctx context.Context, a *app.ArtaiApp) error) error {
	a, err := newApp(operation, args)
	if err != nil {
		return err
	}
	defer a.Close()

	err = fn(cmd.Context(), a)
	a.Fail(err)
	return err
}

// runAuthed is run for commands that need a logged-in user.
func runAuthed(cmd *cobra.Command, operation string, args []string, fn func(ctx context.Context, a *app.ArtaiApp, u *artai.User) error) error {
	return run(cmd, operation, args, func(ctx context.Context, a *app.ArtaiApp) error {
		u, err := a.RequireLogin(ctx)
		if errors.Is(err, artai.ErrNotAuthenticated) {
			return fmt.Errorf("%w; run 'artai login' first", err)
		}
		if err != nil {
			return err
		}
		return fn(ctx, a, u)
	})
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// The optional* helpers return nil unless the flag was given.

func optionalBool(cmd *cobra.Command, name string) *bool {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetBool(name)
	return &v
}

func optionalInt64(cmd *cobra.Command, name string) *int64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt64(name)
	return &v
}

func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

// prompt reads a line from stdin after printing label to stderr.
func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(label, ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// readPassword returns ARTAI_PASSWORD when set, and otherwise prompts
// without echo on a terminal.
func readPassword(label string) (string, error) {
	if pw := os.Getenv("ARTAI_PASSWORD"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(label)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

func formatTime(t *artai.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var rootCmd = &cobra.Command{
	Use:          "artai",
	Short:        "Command-line client for the Artai image service",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if v, _ := cmd.Flags().GetString("base-url"); v != "" {
			cfg.BaseURL = v
		}
		if v, _ := cmd.Flags().GetString("token-store"); v != "" {
			cfg.TokenStore.Type = v
			switch v {
			case "sqlite":
				cfg.TokenStore.Path = ""
				cfg.TokenStore.DataDir = defaults["base_dir"]
			case "age":
				cfg.TokenStore.Path = filepath.Join(defaults["base_dir"], "token.age")
				cfg.TokenStore.IdentityPath = filepath.Join(defaults["base_dir"], "identity.txt")
			case "memory":
				cfg.TokenStore.Path = ""
			}
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base URL:    %s\n", cfg.BaseURL)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Token Store: %s\n", cfg.TokenStore.Type)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base URL:       %s\n", cfg.BaseURL)
		fmt.Printf("Asset Base URL: %s\n", cfg.AssetBaseURL)
		fmt.Printf("Base Dir:       %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:        %s\n", cfg.LogDir)
		fmt.Printf("Log Level:      %s\n", cfg.LogLevel)
		fmt.Printf("Timeout:        %ds\n", cfg.TimeoutSeconds)
		fmt.Printf("Token Store:    %s\n", cfg.TokenStore.Type)
		if cfg.S3.Region != "" || cfg.S3.Endpoint != "" {
			fmt.Printf("S3:             region=%s endpoint=%s\n", cfg.S3.Region, cfg.S3.Endpoint)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("base-url", "", "API base URL (default "+config.DefaultBaseURL+")")
	configInitCmd.Flags().String("token-store", "", "Where to keep the session token: file, sqlite, age or memory")

	rootCmd.AddCommand(configCmd)
}
