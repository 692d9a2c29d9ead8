package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	perrors "github.com/HexSleeves/pollen/internal/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Provider != "gemini" {
		t.Errorf("Provider = %q, want %q", cfg.Provider, "gemini")
	}
	if cfg.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q, want %q", cfg.Model, "gemini-2.5-flash")
	}
	if cfg.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 120*time.Second)
	}
	if cfg.Chat.MaxRounds != 1 {
		t.Errorf("Chat.MaxRounds = %d, want 1", cfg.Chat.MaxRounds)
	}
	if !cfg.Chat.ReattachTools {
		t.Error("Chat.ReattachTools should default to true")
	}
	if cfg.Memory.Backend != "json" || cfg.Memory.SessionID != "chat_memory" {
		t.Errorf("Memory = %+v", cfg.Memory)
	}
	if cfg.Voice.ExitWord != "exit" {
		t.Errorf("Voice.ExitWord = %q", cfg.Voice.ExitWord)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", cfg.Model)
	}
}

func TestLoad_JSONOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollen.json")
	data := `{"model": "gemini-2.0-flash", "chat": {"max_rounds": 3, "reattach_tools": false}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.Chat.MaxRounds != 3 || cfg.Chat.ReattachTools {
		t.Errorf("Chat = %+v", cfg.Chat)
	}
	// untouched fields keep defaults
	if cfg.Provider != "gemini" || cfg.Chat.SystemPrompt == "" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollen.yaml")
	data := `
provider: openai-compatible
base_url: http://localhost:11434/v1
timeout: 30s
memory:
  backend: redis
  redis_addr: localhost:6380
  redis_ttl: 1h
voice:
  exit_word: goodbye
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Provider != "openai-compatible" || cfg.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("endpoint = %s %s", cfg.Provider, cfg.BaseURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.Memory.Backend != "redis" || cfg.Memory.RedisTTL != time.Hour {
		t.Errorf("Memory = %+v", cfg.Memory)
	}
	if cfg.Voice.ExitWord != "goodbye" {
		t.Errorf("ExitWord = %q", cfg.Voice.ExitWord)
	}
	if cfg.KeyEnv() != "OPENAI_API_KEY" {
		t.Errorf("KeyEnv = %q", cfg.KeyEnv())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"bad json", "c.json", `{"model":`},
		{"unknown provider", "c.json", `{"provider":"acme"}`},
		{"zero rounds", "c.json", `{"chat":{"max_rounds":0}}`},
		{"compatible without url", "c.yaml", "provider: openai-compatible\n"},
		{"bad effort", "c.json", `{"chat":{"reasoning_effort":"extreme"}}`},
		{"bad session", "c.json", `{"memory":{"session_id":"../x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.data), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if perrors.KindOf(err) != perrors.KindConfig {
				t.Errorf("kind = %v, want config", perrors.KindOf(err))
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("POLLEN_MODEL", "gemini-2.5-pro")
	t.Setenv("POLLEN_BASE_URL", "http://proxy.local/v1")
	t.Setenv("POLLEN_PROVIDER", "openai")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "gemini-2.5-pro" || cfg.BaseURL != "http://proxy.local/v1" || cfg.Provider != "openai" {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestAPIKey(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("GEMINI_API_KEY", "")
	_, err := cfg.APIKey()
	if !perrors.IsCredential(err) {
		t.Fatalf("expected credential error, got %v", err)
	}

	t.Setenv("GEMINI_API_KEY", "  secret ")
	key, err := cfg.APIKey()
	if err != nil || key != "secret" {
		t.Fatalf("APIKey = %q, %v", key, err)
	}

	cfg.APIKeyEnv = "MY_KEY"
	t.Setenv("MY_KEY", "other")
	if key, _ := cfg.APIKey(); key != "other" {
		t.Errorf("custom env ignored: %q", key)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("POLLEN_TEST_DOTENV=from-file\nPOLLEN_TEST_PRESET=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("POLLEN_TEST_DOTENV", "")
	os.Unsetenv("POLLEN_TEST_DOTENV")
	t.Setenv("POLLEN_TEST_PRESET", "from-env")

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("POLLEN_TEST_DOTENV"); got != "from-file" {
		t.Errorf("POLLEN_TEST_DOTENV = %q", got)
	}
	if got := os.Getenv("POLLEN_TEST_PRESET"); got != "from-env" {
		t.Errorf("existing variable overridden: %q", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.json", "nested/out.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := DefaultConfig()
			cfg.Chat.MaxRounds = 2
			cfg.Memory.RedisTTL = 90 * time.Minute
			if err := cfg.Save(path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Chat.MaxRounds != 2 || loaded.Memory.RedisTTL != 90*time.Minute {
				t.Errorf("round trip lost data: %+v", loaded)
			}
		})
	}
}
