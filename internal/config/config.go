package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"MiniChat/internal/session"
)

const (
	BackendGemini    = "gemini"
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// DefaultSystemPrompt defines the assistant's personality
const DefaultSystemPrompt = `You are a friendly, helpful, and engaging chatbot assistant.
You have a warm personality and enjoy having conversations with users.
You're knowledgeable about a wide range of topics but keep your responses concise and conversational.
If you don't know something, you're honest about it.
You remember context from the conversation and can refer back to previous messages.`

// Config holds application configuration
type Config struct {
	Backend      string `yaml:"backend"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"-"` // Resolved from the environment only
	SystemPrompt string `yaml:"system_prompt"`
	Resume       string `yaml:"-"` // Session file (file store) or session ID (sqlite store) to restore
	Debug        bool   `yaml:"debug"`
	Plain        bool   `yaml:"plain"` // Disable colors and markdown, animate dots instead of a spinner

	// Context budget in characters sent to the model per request
	ContextBudget int `yaml:"context_budget"`

	MaxAttempts    int           `yaml:"max_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	CacheEnabled bool          `yaml:"cache"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`

	Store      string `yaml:"store"`
	SessionDir string `yaml:"session_dir"`
	DBPath     string `yaml:"db_path"`
	AutoSave   bool   `yaml:"auto_save"`

	LogDir    string `yaml:"log_dir"`
	Telemetry bool   `yaml:"telemetry"`

	OllamaURL string `yaml:"ollama_url"`
	BaseURL   string `yaml:"base_url"` // Overrides the hosted API endpoint
}

// Default returns the configuration used when nothing else is set
func Default() Config {
	return Config{
		Backend:        BackendGemini,
		SystemPrompt:   DefaultSystemPrompt,
		ContextBudget:  24000,
		MaxAttempts:    3,
		RetryDelay:     500 * time.Millisecond,
		RequestTimeout: 60 * time.Second,
		CacheEnabled:   true,
		CacheTTL:       10 * time.Minute,
		Store:          StoreFile,
		SessionDir:     ".",
		DBPath:         "chatbot.db",
		AutoSave:       true,
		LogDir:         "logs",
		Telemetry:      true,
		OllamaURL:      "http://localhost:11434",
	}
}

// LoadFile merges the YAML file at path into c. A missing file is not an
// error unless required is set.
func (c *Config) LoadFile(path string, required bool) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv reads overrides from the environment. The credential is read
// separately by LoadCredential once the backend is final.
func (c *Config) ApplyEnv() {
	loadFromEnv(&c.Backend, "MINICHAT_BACKEND")
	loadFromEnv(&c.Model, "MINICHAT_MODEL")
	loadFromEnv(&c.Store, "MINICHAT_STORE")
	loadFromEnv(&c.OllamaURL, "OLLAMA_HOST")
	if v := os.Getenv("MINICHAT_CONTEXT_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ContextBudget = n
		}
	}
}

// LoadCredential reads the API key for the selected backend
func (c *Config) LoadCredential() {
	if name := CredentialEnv(c.Backend); name != "" {
		loadFromEnv(&c.APIKey, name)
	}
}

func loadFromEnv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// CredentialEnv returns the environment variable holding the API key for
// backend, or "" if the backend needs none.
func CredentialEnv(backend string) string {
	switch backend {
	case BackendGemini:
		return "GEMINI_API_KEY"
	case BackendAnthropic:
		return "ANTHROPIC_API_KEY"
	case BackendOpenAI:
		return "OPENAI_API_KEY"
	case BackendGrok:
		return "GROK_API_KEY"
	}
	return ""
}

// DefaultModel returns the model used for backend when none is configured
func DefaultModel(backend string) string {
	switch backend {
	case BackendGemini:
		return "gemini-1.5-flash"
	case BackendAnthropic:
		return "claude-sonnet-4-20250514"
	case BackendOpenAI:
		return "gpt-3.5-turbo"
	case BackendGrok:
		return "grok-1"
	case BackendOllama:
		return "llama3:latest"
	}
	return ""
}

// ResolvedModel returns Model or the backend default
func (c Config) ResolvedModel() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel(c.Backend)
}

// Validate checks if the required configuration is present
func (c Config) Validate() error {
	switch c.Backend {
	case BackendGemini, BackendAnthropic, BackendOpenAI, BackendGrok, BackendOllama:
	default:
		return fmt.Errorf("unknown backend: %s (gemini|anthropic|openai|grok|ollama)", c.Backend)
	}
	if name := CredentialEnv(c.Backend); name != "" && c.APIKey == "" {
		return fmt.Errorf("missing required environment variable: %s", name)
	}
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown store: %s (file|sqlite)", c.Store)
	}
	if c.ContextBudget <= 0 {
		return fmt.Errorf("context budget must be positive, got %d", c.ContextBudget)
	}
	// The system prompt is always sent, so it must leave room for a turn.
	if n := session.CharEstimator(c.SystemPrompt); n >= c.ContextBudget {
		return fmt.Errorf("system prompt is %d characters, it must be shorter than the context budget (%d)", n, c.ContextBudget)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	return nil
}
