package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	perrors "github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/memory"
)

// DefaultPath is where init writes and where commands look by default.
const DefaultPath = "pollen.json"

type Config struct {
	// Endpoint settings
	Provider  string        `json:"provider" yaml:"provider"`
	Model     string        `json:"model" yaml:"model"`
	BaseURL   string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	APIKeyEnv string        `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
	MaxTokens int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	Chat    ChatConfig    `json:"chat" yaml:"chat"`
	Memory  memory.Config `json:"memory" yaml:"memory"`
	Voice   VoiceConfig   `json:"voice" yaml:"voice"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

type ChatConfig struct {
	MaxRounds       int    `json:"max_rounds" yaml:"max_rounds"`
	ReattachTools   bool   `json:"reattach_tools" yaml:"reattach_tools"`
	ReasoningEffort string `json:"reasoning_effort,omitempty" yaml:"reasoning_effort,omitempty"`
	SystemPrompt    string `json:"system_prompt" yaml:"system_prompt"`
}

type VoiceConfig struct {
	ListenCommand string `json:"listen_command" yaml:"listen_command"`
	SpeakCommand  string `json:"speak_command" yaml:"speak_command"`
	ExitWord      string `json:"exit_word" yaml:"exit_word"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus endpoint when non-empty, e.g. ":9464".
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider:  "gemini",
		Model:     "gemini-2.5-flash",
		APIKeyEnv: "GEMINI_API_KEY",
		Timeout:   120 * time.Second,
		Chat: ChatConfig{
			MaxRounds:     1,
			ReattachTools: true,
			SystemPrompt:  "You are a helpful assistant.",
		},
		Memory: memory.Config{
			Backend:   "json",
			Dir:       ".",
			SessionID: memory.DefaultSessionID,
		},
		Voice: VoiceConfig{
			ListenCommand: "pollen-listen",
			SpeakCommand:  "espeak --stdin",
			ExitWord:      "exit",
		},
	}
}

// Load reads a JSON or YAML file (by extension) over the defaults and then
// applies environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, perrors.New(perrors.KindConfig, "config: read "+path, err)
		}
	} else if err := decode(path, data, cfg); err != nil {
		return nil, perrors.New(perrors.KindConfig, "config: parse "+path, err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments it reads ".env".
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return perrors.New(perrors.KindConfig, "config: load "+f, err)
		}
	}
	return nil
}

// ApplyEnv overrides endpoint settings from POLLEN_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("POLLEN_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("POLLEN_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("POLLEN_BASE_URL"); v != "" {
		c.BaseURL = v
	}
}

func (c *Config) Validate() error {
	switch c.Provider {
	case "gemini", "openai", "openai-compatible", "anthropic":
	default:
		return perrors.Newf(perrors.KindConfig, "config", "unknown provider %q", c.Provider)
	}
	if c.Provider == "openai-compatible" && c.BaseURL == "" {
		return perrors.Newf(perrors.KindConfig, "config", "provider openai-compatible requires base_url")
	}
	if c.Chat.MaxRounds < 1 {
		return perrors.Newf(perrors.KindConfig, "config", "chat.max_rounds must be at least 1, got %d", c.Chat.MaxRounds)
	}
	if c.Timeout < 0 {
		return perrors.Newf(perrors.KindConfig, "config", "timeout must not be negative")
	}
	switch c.Chat.ReasoningEffort {
	case "", "low", "medium", "high":
	default:
		return perrors.Newf(perrors.KindConfig, "config", "chat.reasoning_effort must be low, medium or high")
	}
	if c.Memory.SessionID != "" {
		if err := memory.ValidateID(c.Memory.SessionID); err != nil {
			return perrors.New(perrors.KindConfig, "config", err)
		}
	}
	return nil
}

// KeyEnv returns the variable the API key is read from.
func (c *Config) KeyEnv() string {
	if c.APIKeyEnv != "" {
		return c.APIKeyEnv
	}
	switch c.Provider {
	case "openai", "openai-compatible":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	}
	return "GEMINI_API_KEY"
}

// APIKey reads the credential. Absence is a credential error, which
// commands treat as fatal before any network call.
func (c *Config) APIKey() (string, error) {
	name := c.KeyEnv()
	key := strings.TrimSpace(os.Getenv(name))
	if key == "" {
		return "", perrors.Newf(perrors.KindCredential, "config", "%s is missing (set it in the environment or a .env file)", name)
	}
	return key, nil
}

// Save writes the config as JSON or YAML depending on the extension.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}
