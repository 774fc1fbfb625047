// Package toml persists CLI settings in a TOML file read through viper.
package toml

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bnema/planqk-cli/internal/domain"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	KeyConfigPath      = "config.path"
	KeyAPIURL          = "api.url"
	KeyTokenFile       = "auth.token_file"
	KeyLoginListen     = "login.listen"
	KeyLoginAssetsDir  = "login.assets_dir"
	KeyRefreshInterval = "refresh.interval"

	DefaultAPIURL          = "https://platform.planqk.de"
	DefaultLoginListen     = "127.0.0.1:0"
	DefaultRefreshInterval = 900 * time.Second

	envPrefix       = "PLANQK"
	configDir       = ".planqk"
	configFile      = "config.toml"
	tokenFile       = "token.json"
	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

// Config is the resolved view of file values, environment overrides and defaults.
type Config struct {
	APIURL          string
	TokenFile       string
	LoginListen     string
	LoginAssetsDir  string
	RefreshInterval time.Duration
}

type Store struct {
	cfg  *viper.Viper
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// Keys lists the settings that can be changed with Set.
func Keys() []string {
	return []string{KeyAPIURL, KeyTokenFile, KeyLoginListen, KeyLoginAssetsDir, KeyRefreshInterval}
}

func NewStore(cfg *viper.Viper) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg.SetDefault(KeyConfigPath, filepath.Join(homeDir, configDir, configFile))
	cfg.SetDefault(KeyAPIURL, DefaultAPIURL)
	cfg.SetDefault(KeyTokenFile, filepath.Join(homeDir, configDir, tokenFile))
	cfg.SetDefault(KeyLoginListen, DefaultLoginListen)
	cfg.SetDefault(KeyLoginAssetsDir, "")
	cfg.SetDefault(KeyRefreshInterval, DefaultRefreshInterval)

	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	path := cfg.GetString(KeyConfigPath)
	if path == "" {
		return nil, fmt.Errorf("%w: config path is empty", domain.ErrConfiguration)
	}
	path, err = normalizePath(path)
	if err != nil {
		return nil, err
	}

	cfg.SetConfigFile(path)
	cfg.SetConfigType("toml")
	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return &Store{cfg: cfg, path: path, mu: lockForPath(path)}, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Load() (Config, error) {
	apiURL := strings.TrimSpace(s.cfg.GetString(KeyAPIURL))
	if err := validateValue(KeyAPIURL, apiURL); err != nil {
		return Config{}, err
	}

	interval := s.cfg.GetDuration(KeyRefreshInterval)
	if interval <= 0 {
		return Config{}, fmt.Errorf("%w: %s must be positive", domain.ErrConfiguration, KeyRefreshInterval)
	}

	return Config{
		APIURL:          apiURL,
		TokenFile:       expandHome(s.cfg.GetString(KeyTokenFile)),
		LoginListen:     s.cfg.GetString(KeyLoginListen),
		LoginAssetsDir:  expandHome(s.cfg.GetString(KeyLoginAssetsDir)),
		RefreshInterval: interval,
	}, nil
}

// Set validates and writes one key to the config file, leaving other keys untouched.
func (s *Store) Set(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !slices.Contains(Keys(), key) {
		return fmt.Errorf("%w: unknown config key %q (known: %s)", domain.ErrInvalidArgument, key, strings.Join(Keys(), ", "))
	}
	value = strings.TrimSpace(value)
	if err := validateValue(key, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := s.readSchema()
	if err != nil {
		return err
	}
	file.set(key, value)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.writeSchema(file); err != nil {
		return err
	}

	s.cfg.Set(key, value)
	return nil
}

func validateValue(key string, value string) error {
	switch key {
	case KeyTokenFile, KeyLoginListen:
		if value == "" {
			return fmt.Errorf("%w: %s must not be empty", domain.ErrInvalidArgument, key)
		}
	case KeyAPIURL:
		parsed, err := url.Parse(value)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("%w: %s must be an http(s) URL, got %q", domain.ErrConfiguration, key, value)
		}
	case KeyRefreshInterval:
		interval, err := time.ParseDuration(value)
		if err != nil || interval <= 0 {
			return fmt.Errorf("%w: %s must be a positive duration, got %q", domain.ErrInvalidArgument, key, value)
		}
	}
	return nil
}

func (s *Store) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{}, nil
		}
		return fileSchema{}, fmt.Errorf("read config file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode config file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (s *Store) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(s.path), configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}

	if err := tempFile.Chmod(configFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}

	cleanup = false
	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
