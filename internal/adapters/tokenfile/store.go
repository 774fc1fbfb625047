package tokenfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bnema/planqk-cli/internal/domain"
	"github.com/bnema/planqk-cli/internal/ports"
)

const (
	storeDirMode = 0o700
	tokenFileMod = 0o600
)

type Store struct {
	mu sync.RWMutex
}

var _ ports.TokenStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Save(ctx context.Context, path string, file ports.TokenFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(file); err != nil {
		return err
	}

	cleaned, err := cleanPath(path)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(cleaned), storeDirMode); err != nil {
		return fmt.Errorf("create token file directory: %w", err)
	}

	if err := os.WriteFile(cleaned, data, tokenFileMod); err != nil {
		return fmt.Errorf("write token file %q: %w", cleaned, err)
	}
	if err := os.Chmod(cleaned, tokenFileMod); err != nil {
		return fmt.Errorf("chmod token file %q: %w", cleaned, err)
	}

	return nil
}

// Load reads a token file. A file missing either key is rejected with
// domain.ErrMalformedTokenFile.
func (s *Store) Load(ctx context.Context, path string) (ports.TokenFile, error) {
	if err := ctx.Err(); err != nil {
		return ports.TokenFile{}, err
	}

	cleaned, err := cleanPath(path)
	if err != nil {
		return ports.TokenFile{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(cleaned)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ports.TokenFile{}, fmt.Errorf("token file %q not found: %w", cleaned, err)
		}
		return ports.TokenFile{}, fmt.Errorf("read token file %q: %w", cleaned, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ports.TokenFile{}, fmt.Errorf("%w: %q: %v", domain.ErrMalformedTokenFile, cleaned, err)
	}

	var file ports.TokenFile
	for key, target := range map[string]*string{"url": &file.URL, "token": &file.Token} {
		value, ok := raw[key]
		if !ok {
			return ports.TokenFile{}, fmt.Errorf("%w: %q: missing %q", domain.ErrMalformedTokenFile, cleaned, key)
		}
		if err := json.Unmarshal(value, target); err != nil {
			return ports.TokenFile{}, fmt.Errorf("%w: %q: %q is not a string", domain.ErrMalformedTokenFile, cleaned, key)
		}
	}
	if err := validate(file); err != nil {
		return ports.TokenFile{}, fmt.Errorf("%w: %q", err, cleaned)
	}

	return file, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cleaned, err := cleanPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(cleaned)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete token file %q: %w", cleaned, err)
	}

	return nil
}

func validate(file ports.TokenFile) error {
	if strings.TrimSpace(file.URL) == "" {
		return fmt.Errorf("%w: url is empty", domain.ErrMalformedTokenFile)
	}
	if strings.TrimSpace(file.Token) == "" {
		return fmt.Errorf("%w: token is empty", domain.ErrMalformedTokenFile)
	}
	return nil
}

func cleanPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("%w: token file path is empty", domain.ErrInvalidArgument)
	}
	return filepath.Clean(trimmed), nil
}
