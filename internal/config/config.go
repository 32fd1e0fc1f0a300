package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models clubline.yml.
type Config struct {
	Club struct {
		Subdomain string `yaml:"subdomain"`
		Name      string `yaml:"name"`
	} `yaml:"club"`
	Workflow struct {
		// Message appended to subtasks cancelled by a task cancellation cascade.
		CascadeCancelMessage string `yaml:"cascade_cancel_message"`
		// Default reason when a plan application is cancelled without one.
		ApplicationCancelMessage string `yaml:"application_cancel_message"`
		// Note attached to inspector self-approvals.
		AutoValidatedMessage string `yaml:"auto_validated_message"`
	} `yaml:"workflow"`
	Server struct {
		Listen                 string `yaml:"listen"`
		BasePath               string `yaml:"base_path"`
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Club.Subdomain == "" {
		return fmt.Errorf("config.club.subdomain is required")
	}
	if c.Workflow.CascadeCancelMessage == "" {
		return fmt.Errorf("config.workflow.cascade_cancel_message is required")
	}
	if c.Workflow.ApplicationCancelMessage == "" {
		return fmt.Errorf("config.workflow.application_cancel_message is required")
	}
	if c.Workflow.AutoValidatedMessage == "" {
		return fmt.Errorf("config.workflow.auto_validated_message is required")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "clubline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run cl club init first", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace, subdomain string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(subdomain), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config for a club subdomain.
func Default(subdomain string) *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(fmt.Sprintf(defaultTemplate, subdomain, subdomain)), &cfg)
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

// GenerateDefault returns default config YAML.
func GenerateDefault(subdomain string) string {
	return fmt.Sprintf(defaultTemplate, subdomain, subdomain)
}

const defaultTemplate = `club:
  subdomain: %s
  name: %s

workflow:
  cascade_cancel_message: "Cancelled due to task cancellation"
  application_cancel_message: "Maintenance plan application cancelled"
  auto_validated_message: "auto-validated"

server:
  listen: ":8080"
  base_path: /v0
  jwt_secret: ""
  allow_legacy_actor_header: false
`
