// Package config resolves runtime settings from environment variables,
// .env files, and built-in defaults. Precedence, highest first: the
// process environment, a .env in the working directory, a .env in the
// config directory, then defaults. Command-line flags are applied on
// top by the caller.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"storyloom/internal/logger"
	"storyloom/internal/story"
)

// EnvPrefix namespaces every storyloom environment variable, so the
// model is read from STORYLOOM_MODEL, the store path from
// STORYLOOM_STORE_PATH, and so on.
const EnvPrefix = "STORYLOOM"

// Settings carries the resolved runtime configuration.
type Settings struct {
	// Provider picks the backend: gemini, openai, anthropic, or mock.
	Provider string
	// Model overrides the provider's default model when non-empty.
	Model string
	// APIKey authenticates against the provider.
	APIKey string

	// StorePath locates the bbolt database file.
	StorePath string
	// Ephemeral keeps everything in memory; nothing is persisted.
	Ephemeral bool

	// SaveQuiet is the debounce window for transcript writes.
	SaveQuiet time.Duration
	// BadgeClear is how long the saved badge lingers.
	BadgeClear time.Duration

	LogLevel string
	LogFile  string
}

// Load resolves settings from the environment. Missing .env files are
// not errors, and variables already set in the process environment are
// never overridden by file contents.
func Load() *Settings {
	loadDotEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("provider", "gemini")
	v.SetDefault("model", "")
	v.SetDefault("api-key", "")
	v.SetDefault("store-path", DefaultStorePath())
	v.SetDefault("ephemeral", false)
	v.SetDefault("save-quiet", story.DefaultQuietInterval)
	v.SetDefault("badge-clear", story.DefaultBadgeInterval)
	v.SetDefault("log-level", "")
	v.SetDefault("log-file", "")

	settings := &Settings{
		Provider:   strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		Model:      strings.TrimSpace(v.GetString("model")),
		APIKey:     strings.TrimSpace(v.GetString("api-key")),
		StorePath:  v.GetString("store-path"),
		Ephemeral:  v.GetBool("ephemeral"),
		SaveQuiet:  v.GetDuration("save-quiet"),
		BadgeClear: v.GetDuration("badge-clear"),
		LogLevel:   v.GetString("log-level"),
		LogFile:    v.GetString("log-file"),
	}
	if settings.APIKey == "" {
		settings.APIKey = providerAPIKey(settings.Provider)
	}
	return settings
}

// DefaultStorePath places the database under the user's home directory.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "storyloom.db"
	}
	return filepath.Join(home, ".storyloom", "stories.db")
}

// loadDotEnvFiles loads .env from the working directory, then from the
// config directory. godotenv never overrides variables that are already
// set, which gives the process environment the last word and the
// working directory priority over the config directory.
func loadDotEnvFiles() {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".storyloom", ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Warn("failed to load env file", "path", path, "error", err)
		}
	}
}

// providerAPIKey falls back to the conventional per-provider variables
// when no STORYLOOM_API_KEY is set.
func providerAPIKey(provider string) string {
	switch provider {
	case "", "gemini", "google":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic", "claude":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}
