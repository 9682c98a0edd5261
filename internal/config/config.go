package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "hostflow.yml"

// Config models hostflow.yml.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url" json:"base_url"`
		Token   string        `yaml:"token" json:"-"`
		Timeout time.Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"api" json:"api"`
	Media struct {
		MaxWidth  int `yaml:"max_width" json:"max_width"`
		MaxHeight int `yaml:"max_height" json:"max_height"`
		Quality   int `yaml:"quality" json:"quality"`
	} `yaml:"media" json:"media"`
	Phone struct {
		DefaultCode string `yaml:"default_code" json:"default_code"`
	} `yaml:"phone" json:"phone"`
	Server struct {
		Addr           string `yaml:"addr" json:"addr"`
		JWTSecret      string `yaml:"jwt_secret" json:"-"`
		MaxUploadBytes int64  `yaml:"max_upload_bytes" json:"max_upload_bytes"`
		Workspace      string `yaml:"workspace" json:"workspace"`
	} `yaml:"server" json:"server"`
}

// Load reads and validates the config at path. A missing file yields Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = FileName
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config.api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config.api.timeout must not be negative")
	}
	if c.Media.MaxWidth <= 0 || c.Media.MaxHeight <= 0 {
		return fmt.Errorf("config.media.max_width and max_height must be positive")
	}
	if c.Media.Quality < 1 || c.Media.Quality > 100 {
		return fmt.Errorf("config.media.quality must be between 1 and 100")
	}
	if !strings.HasPrefix(c.Phone.DefaultCode, "+") || len(c.Phone.DefaultCode) < 2 {
		return fmt.Errorf("config.phone.default_code must look like +91")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("config.server.max_upload_bytes must be positive")
	}
	return nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses raw YAML over the defaults and validates the result.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `api:
  base_url: http://127.0.0.1:8080
  timeout: 30s

media:
  max_width: 1920
  max_height: 1080
  quality: 80

phone:
  default_code: "+91"

server:
  addr: 127.0.0.1:8080
  jwt_secret: hostflow-dev-secret
  max_upload_bytes: 10485760
  workspace: .
`
