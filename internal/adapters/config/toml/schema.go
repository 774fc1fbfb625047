package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version int           `toml:"version"`
	API     apiSchema     `toml:"api,omitempty"`
	Auth    authSchema    `toml:"auth,omitempty"`
	Login   loginSchema   `toml:"login,omitempty"`
	Refresh refreshSchema `toml:"refresh,omitempty"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported config schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type apiSchema struct {
	URL string `toml:"url,omitempty"`
}

type authSchema struct {
	TokenFile string `toml:"token_file,omitempty"`
}

type loginSchema struct {
	Listen    string `toml:"listen,omitempty"`
	AssetsDir string `toml:"assets_dir,omitempty"`
}

type refreshSchema struct {
	Interval string `toml:"interval,omitempty"`
}

// set assigns one dotted key. The value has already been validated.
func (s *fileSchema) set(key string, value string) {
	switch key {
	case KeyAPIURL:
		s.API.URL = value
	case KeyTokenFile:
		s.Auth.TokenFile = value
	case KeyLoginListen:
		s.Login.Listen = value
	case KeyLoginAssetsDir:
		s.Login.AssetsDir = value
	case KeyRefreshInterval:
		s.Refresh.Interval = value
	}
}
