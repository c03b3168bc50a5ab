package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"MiniChat/internal/chatbot"
	"MiniChat/internal/config"
)

// flagValues receives the command-line flags. Only flags the user set
// override the file and environment.
var flagValues = config.Default()

var configPath string

var rootCmd = &cobra.Command{
	Use:   "minichat",
	Short: "Interactive AI chat in the terminal",
	Long: `MiniChat is an interactive command-line chatbot. It keeps the conversation
as context for every reply and supports Gemini, Anthropic, OpenAI, Grok and Ollama.

Type 'help' in the chat for commands.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runChat,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&configPath, "config", "minichat.yaml", "YAML configuration file")
	f.StringVar(&flagValues.Backend, "backend", flagValues.Backend, "LLM backend (gemini|anthropic|openai|grok|ollama)")
	f.StringVar(&flagValues.Model, "model", "", "Model name (defaults per backend)")
	f.StringVar(&flagValues.Store, "store", flagValues.Store, "Session store (file|sqlite)")
	f.StringVar(&flagValues.SessionDir, "session-dir", flagValues.SessionDir, "Directory for saved conversation files")
	f.StringVar(&flagValues.DBPath, "db", flagValues.DBPath, "SQLite database path")
	f.StringVar(&flagValues.LogDir, "log-dir", flagValues.LogDir, "Directory for logs, traces and metrics")
	f.BoolVar(&flagValues.Debug, "debug", false, "Enable debug logging")

	flags := rootCmd.Flags()
	flags.StringVar(&flagValues.Resume, "resume", "", "Restore a saved session (file path, or session ID with --store=sqlite)")
	flags.StringVar(&flagValues.SystemPrompt, "system-prompt", flagValues.SystemPrompt, "System prompt defining the assistant's personality")
	flags.BoolVar(&flagValues.Plain, "plain", false, "Disable colors and markdown; the typing indicator shows plain dots")
	flags.IntVar(&flagValues.ContextBudget, "context-budget", flagValues.ContextBudget, "Characters of conversation sent per request")
	flags.IntVar(&flagValues.MaxAttempts, "max-attempts", flagValues.MaxAttempts, "Attempts per message for transient failures")
	flags.DurationVar(&flagValues.RetryDelay, "retry-delay", flagValues.RetryDelay, "Initial retry backoff")
	flags.DurationVar(&flagValues.RequestTimeout, "timeout", flagValues.RequestTimeout, "HTTP request timeout")
	flags.BoolVar(&flagValues.CacheEnabled, "cache", flagValues.CacheEnabled, "Reuse replies for identical conversations")
	flags.BoolVar(&flagValues.AutoSave, "auto-save", flagValues.AutoSave, "Save the conversation on exit")
	flags.BoolVar(&flagValues.Telemetry, "telemetry", flagValues.Telemetry, "Export traces and metrics to the log directory")
	flags.StringVar(&flagValues.OllamaURL, "ollama-url", flagValues.OllamaURL, "Ollama server URL")
	flags.StringVar(&flagValues.BaseURL, "base-url", "", "Override the hosted API endpoint")
}

// mergeConfig merges defaults, the config file, the environment and the
// flags the user set, in increasing order of precedence.
func mergeConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if err := cfg.LoadFile(configPath, cmd.Flags().Changed("config")); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	applyFlags(cmd.Flags(), &cfg)
	return cfg, nil
}

// resolveConfig is mergeConfig plus the backend credential, validated
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := mergeConfig(cmd)
	if err != nil {
		return cfg, err
	}
	cfg.LoadCredential()
	return cfg, cfg.Validate()
}

func applyFlags(flags *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("backend", func() { cfg.Backend = flagValues.Backend })
	set("model", func() { cfg.Model = flagValues.Model })
	set("store", func() { cfg.Store = flagValues.Store })
	set("session-dir", func() { cfg.SessionDir = flagValues.SessionDir })
	set("db", func() { cfg.DBPath = flagValues.DBPath })
	set("log-dir", func() { cfg.LogDir = flagValues.LogDir })
	set("debug", func() { cfg.Debug = flagValues.Debug })
	set("resume", func() { cfg.Resume = flagValues.Resume })
	set("system-prompt", func() { cfg.SystemPrompt = flagValues.SystemPrompt })
	set("plain", func() { cfg.Plain = flagValues.Plain })
	set("context-budget", func() { cfg.ContextBudget = flagValues.ContextBudget })
	set("max-attempts", func() { cfg.MaxAttempts = flagValues.MaxAttempts })
	set("retry-delay", func() { cfg.RetryDelay = flagValues.RetryDelay })
	set("timeout", func() { cfg.RequestTimeout = flagValues.RequestTimeout })
	set("cache", func() { cfg.CacheEnabled = flagValues.CacheEnabled })
	set("auto-save", func() { cfg.AutoSave = flagValues.AutoSave })
	set("telemetry", func() { cfg.Telemetry = flagValues.Telemetry })
	set("ollama-url", func() { cfg.OllamaURL = flagValues.OllamaURL })
	set("base-url", func() { cfg.BaseURL = flagValues.BaseURL })
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	loadDotEnv()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		if name := config.CredentialEnv(cfg.Backend); name != "" && cfg.APIKey == "" {
			fmt.Fprintf(os.Stderr, "Set %s in the environment or in a .env file.\n", name)
		}
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	bot, cleanup, err := chatbot.NewChatBot(ctx, cfg, os.Stdout)
	defer cleanup()
	if err != nil {
		return fmt.Errorf("failed to initialize chatbot: %w", err)
	}

	if err := bot.Preflight(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Backend, err)
	}

	if err := bot.Run(ctx, os.Stdin); err != nil {
		if chatbot.IsAuthFailure(err) {
			return fmt.Errorf("authentication with %s failed: %w", cfg.Backend, err)
		}
		return err
	}
	return nil
}
