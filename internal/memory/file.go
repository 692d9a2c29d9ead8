package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HexSleeves/pollen/internal/llm"
)

// FileStore keeps each conversation in <dir>/<session>.json.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the file backing sessionID.
func (s *FileStore) Path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *FileStore) Load(_ context.Context, sessionID string) ([]llm.Message, error) {
	if err := ValidateID(sessionID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(sessionID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read memory: %w", err)
	}
	var msgs []llm.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parse memory %s: %w", s.Path(sessionID), err)
	}
	return msgs, nil
}

// Save writes through a temp file and rename so a crash never leaves a
// truncated conversation behind.
func (s *FileStore) Save(_ context.Context, sessionID string, msgs []llm.Message) error {
	if err := ValidateID(sessionID); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	if msgs == nil {
		msgs = []llm.Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+sessionID+".*.tmp")
	if err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write memory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(sessionID)); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	return nil
}

func (s *FileStore) List(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		id := strings.TrimSuffix(filepath.Base(m), ".json")
		if ValidateID(id) == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Delete(_ context.Context, sessionID string) error {
	if err := ValidateID(sessionID); err != nil {
		return err
	}
	err := os.Remove(s.Path(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) Close() error { return nil }
