package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models caseline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		// AllowLegacyHeader accepts a bare X-Actor-Id header in place of a
		// token. Meant for local tooling only.
		AllowLegacyHeader bool `yaml:"allow_legacy_header"`
	} `yaml:"auth"`
	Attachments struct {
		Dir string `yaml:"dir"`
	} `yaml:"attachments"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook is one outbound delivery target for activity records.
type Webhook struct {
	Name     string   `yaml:"name"`
	URL      string   `yaml:"url"`
	Types    []string `yaml:"types"`
	Secret   string   `yaml:"secret"`
	Timeout  string   `yaml:"timeout"`
	Disabled bool     `yaml:"disabled"`
}

// Wants reports whether the hook subscribes to the given activity type.
// An empty Types list means every type.
func (w Webhook) Wants(activityType string) bool {
	if len(w.Types) == 0 {
		return true
	}
	for _, t := range w.Types {
		if t == activityType {
			return true
		}
	}
	return false
}

// TimeoutDuration parses the webhook timeout, defaulting to 10s.
func (w Webhook) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(w.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it with cl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
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
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath == "" {
		return fmt.Errorf("config.server.base_path is required")
	}
	seen := map[string]bool{}
	for _, wh := range c.Webhooks {
		if wh.Name == "" {
			return fmt.Errorf("config.webhooks entry missing name")
		}
		if seen[wh.Name] {
			return fmt.Errorf("config.webhooks name %s duplicated", wh.Name)
		}
		seen[wh.Name] = true
		u, err := url.Parse(wh.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %s has invalid url %q", wh.Name, wh.URL)
		}
		if wh.Timeout != "" {
			if _, err := time.ParseDuration(wh.Timeout); err != nil {
				return fmt.Errorf("webhook %s has invalid timeout %q", wh.Name, wh.Timeout)
			}
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "caseline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8944
  base_path: /v1

auth:
  jwt_secret: ""
  allow_legacy_header: true

attachments:
  dir: .caseline/files

webhooks: []
`
