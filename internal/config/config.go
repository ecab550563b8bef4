package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	EligibilityInteractionLog = "interaction_log"
	EligibilityCatalogStatus  = "catalog_status"
)

// Config models pageone.yml.
type Config struct {
	App struct {
		Name string `yaml:"name"`
	} `yaml:"app"`
	Triage struct {
		// Eligibility picks how a triaged snippet drops out of discovery:
		// interaction_log hides it from the acting producer only,
		// catalog_status flips the snippet status and hides it from everyone.
		// The chosen model is applied end-to-end; the two are never mixed.
		Eligibility string   `yaml:"eligibility"`
		Genres      []string `yaml:"genres"`
	} `yaml:"triage"`
	Startup struct {
		RetryAttempts int `yaml:"retry_attempts"`
	} `yaml:"startup"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with pageone config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("config.app.name is required")
	}
	switch c.Triage.Eligibility {
	case EligibilityInteractionLog, EligibilityCatalogStatus:
	default:
		return fmt.Errorf("config.triage.eligibility must be %q or %q", EligibilityInteractionLog, EligibilityCatalogStatus)
	}
	for i, g := range c.Triage.Genres {
		if g == "" {
			return fmt.Errorf("config.triage.genres[%d] is empty", i)
		}
	}
	if c.Startup.RetryAttempts < 0 {
		return fmt.Errorf("config.startup.retry_attempts must not be negative")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			if evt == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// KnownGenre reports whether genre is in the catalog. An empty catalog
// accepts everything.
func (c *Config) KnownGenre(genre string) bool {
	if len(c.Triage.Genres) == 0 {
		return true
	}
	for _, g := range c.Triage.Genres {
		if g == genre {
			return true
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "pageone.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(name string) string {
	return fmt.Sprintf(defaultTemplate, name)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default(name string) *Config {
	var cfg Config
	cfg.App.Name = name
	cfg.Triage.Eligibility = EligibilityInteractionLog
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, name))).Decode(&cfg)
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

const defaultTemplate = `app:
  name: %s

triage:
  eligibility: interaction_log

  genres:
    - drama
    - comedy
    - thriller
    - horror
    - sci-fi
    - fantasy
    - romance
    - documentary
    - action
    - western

startup:
  retry_attempts: 3
`
