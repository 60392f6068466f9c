// Package main provides the storyloom CLI application entry point.
// Storyloom is a terminal co-author for interactive fiction: the user
// writes a turn, the model writes the next passage, and the story is
// saved as it grows.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"storyloom/internal/config"
	"storyloom/internal/llm"
	"storyloom/internal/logger"
	"storyloom/internal/shell"
	"storyloom/internal/store"
	"storyloom/internal/story"
	"storyloom/internal/version"
)

var (
	provider  string
	model     string
	apiKey    string
	storePath string
	ephemeral bool
	logLevel  string
	logFile   string

	versionDetailed bool

	settings *config.Settings
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "storyloom",
	Short: "Storyloom - stories written together with a model",
	Long: `Storyloom is a terminal co-author for interactive fiction.
You write a turn, the model writes the next passage, and the story is
saved as you go. Stories live in a local database and survive restarts.`,
	Run: runShell, // Default behavior is to run the interactive shell
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version of storyloom.`,
	Run: func(_ *cobra.Command, _ []string) {
		if versionDetailed {
			fmt.Println(version.GetDetailedVersion())
			return
		}
		fmt.Println(version.GetFormattedVersion())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "Model provider (gemini|openai|anthropic|mock) [default: gemini]")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model name [default: the provider's default]")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key [default: the provider's environment variable]")
	rootCmd.PersistentFlags().StringVar(&storePath, "store-path", "", "Story database path [default: ~/.storyloom/stories.db]")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Keep stories in memory only, never touch disk")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: warn]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")

	// Bind flags to viper
	for _, name := range []string{"provider", "model", "api-key", "store-path", "ephemeral", "log-level", "log-file"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}

	versionCmd.Flags().BoolVar(&versionDetailed, "detailed", false, "Include commit, build, and platform details")
	rootCmd.AddCommand(versionCmd)

	// Resolve configuration and logger before any command execution
	cobra.OnInitialize(initConfig)
}

// initConfig resolves settings from the environment and .env files,
// then lets explicit flags win.
func initConfig() {
	settings = config.Load()

	if provider != "" {
		settings.Provider = provider
	}
	if model != "" {
		settings.Model = model
	}
	if apiKey != "" {
		settings.APIKey = apiKey
	}
	if storePath != "" {
		settings.StorePath = storePath
	}
	if ephemeral {
		settings.Ephemeral = true
	}
	if logLevel != "" {
		settings.LogLevel = logLevel
	}
	if logFile != "" {
		settings.LogFile = logFile
	}

	if err := logger.Configure(settings.LogLevel, settings.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}

func runShell(_ *cobra.Command, _ []string) {
	logger.Info("starting storyloom", "version", version.GetVersion(), "provider", settings.Provider)

	backend, err := llm.NewClient(settings.Provider, settings.APIKey, settings.Model)
	if err != nil {
		logger.Fatal("failed to create backend client", "error", err)
	}

	var kv store.KV
	if settings.Ephemeral {
		logger.Info("ephemeral run, stories stay in memory")
		kv = store.NewMemoryKV()
	} else {
		bolt, err := store.OpenBolt(settings.StorePath)
		if err != nil {
			logger.Fatal("failed to open story database", "path", settings.StorePath, "error", err)
		}
		defer func() { _ = bolt.Close() }()
		kv = bolt
	}

	chats := store.NewChatStore(kv, story.DefaultPersona())
	sink := shell.NewTermSink(os.Stdout)
	controller := story.NewTurnController(chats, backend, sink, settings.SaveQuiet, settings.BadgeClear)

	// Catches the EOF path; \exit flushes on its own before stopping.
	defer controller.Flush()

	shell.New(controller, chats, backend, sink).Run()
}
