// Package memory persists conversations between sessions.
//
// Every backend stores a conversation as the JSON array of its messages in
// the chat-completions wire shape, so a file written by the JSON backend
// can be copied into any other backend unchanged.
package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/HexSleeves/pollen/internal/llm"
)

// DefaultSessionID names the conversation used when none is given.
const DefaultSessionID = "chat_memory"

// ErrNotFound is returned by Load for an unknown session.
var ErrNotFound = errors.New("memory: session not found")

// Store loads and saves whole conversations. Save overwrites; the last
// writer wins.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)
	Save(ctx context.Context, sessionID string, msgs []llm.Message) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend       string        `json:"backend" yaml:"backend"` // json, sqlite, redis, postgres
	Dir           string        `json:"dir,omitempty" yaml:"dir,omitempty"`
	SessionID     string        `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	SQLitePath    string        `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	RedisAddr     string        `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string        `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int           `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	RedisTTL      time.Duration `json:"redis_ttl,omitempty" yaml:"redis_ttl,omitempty"`
	PostgresDSN   string        `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
}

// Open builds the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "json":
		dir := cfg.Dir
		if dir == "" {
			dir = "."
		}
		return NewFileStore(dir), nil
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, "pollen.db")
		}
		return OpenSQLite(path)
	case "redis":
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		return NewRedisStore(addr, cfg.RedisPassword, cfg.RedisDB, WithTTL(cfg.RedisTTL)), nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("memory: postgres backend requires postgres_dsn")
		}
		return OpenPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("memory: unknown backend %q (supported: json, sqlite, redis, postgres)", cfg.Backend)
	}
}

var validID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateID rejects ids that are empty or unsafe as file names.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("memory: invalid session id %q", id)
	}
	return nil
}
