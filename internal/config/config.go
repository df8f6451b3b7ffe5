package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models crmline.yml.
type Config struct {
	Organization struct {
		Name     string `yaml:"name"`
		Currency string `yaml:"currency"`
	} `yaml:"organization"`
	SLA struct {
		ResponseHours   int `yaml:"response_hours"`
		ResolutionHours int `yaml:"resolution_hours"`
	} `yaml:"sla"`
	Automation struct {
		AutoCloseResolvedDays  int `yaml:"auto_close_resolved_days"`
		FollowUpDays           int `yaml:"follow_up_days"`
		CampaignMinLeads       int `yaml:"campaign_min_leads"`
		CampaignMinConversions int `yaml:"campaign_min_conversions"`

		// IntervalMinutes runs every job on a timer while serving; 0 disables.
		IntervalMinutes int `yaml:"interval_minutes"`
	} `yaml:"automation"`
	Numbering struct {
		Invoice string `yaml:"invoice"`
		Ticket  string `yaml:"ticket"`
		Width   int    `yaml:"width"`
	} `yaml:"numbering"`
	Phone struct {
		DefaultRegion string `yaml:"default_region"`
	} `yaml:"phone"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
	Delivery DeliveryConfig  `yaml:"delivery"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Logging  LoggingConfig   `yaml:"logging"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// DeliveryConfig selects how outbound email and social publishes are sent.
type DeliveryConfig struct {
	Mode           string `yaml:"mode"`
	URL            string `yaml:"url"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// WebhookConfig subscribes a URL to the event stream.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with crm config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config when the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
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
	if c.SLA.ResponseHours <= 0 || c.SLA.ResolutionHours <= 0 {
		return fmt.Errorf("config.sla hours must be positive")
	}
	if c.SLA.ResolutionHours < c.SLA.ResponseHours {
		return fmt.Errorf("config.sla.resolution_hours must be >= response_hours")
	}
	if c.Automation.AutoCloseResolvedDays <= 0 {
		return fmt.Errorf("config.automation.auto_close_resolved_days must be positive")
	}
	if c.Automation.FollowUpDays <= 0 {
		return fmt.Errorf("config.automation.follow_up_days must be positive")
	}
	if c.Automation.IntervalMinutes < 0 {
		return fmt.Errorf("config.automation.interval_minutes must not be negative")
	}
	if c.Numbering.Invoice == "" || c.Numbering.Ticket == "" {
		return fmt.Errorf("config.numbering prefixes are required")
	}
	if c.Numbering.Width < 1 || c.Numbering.Width > 12 {
		return fmt.Errorf("config.numbering.width must be between 1 and 12")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["admin"]; !ok {
			return fmt.Errorf("config.rbac.roles must include admin")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	switch c.Delivery.Mode {
	case "", "log":
	case "webhook":
		if c.Delivery.URL == "" {
			return fmt.Errorf("config.delivery.url is required for webhook mode")
		}
	default:
		return fmt.Errorf("config.delivery.mode must be log or webhook")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// RolePermissions flattens the role table for auth.Service.
func (c *Config) RolePermissions() map[string][]string {
	out := make(map[string][]string, len(c.RBAC.Roles))
	for id, role := range c.RBAC.Roles {
		out[id] = append([]string(nil), role.Permissions...)
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crmline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted
// sections keep their defaults.
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `organization:
  name: My Company
  currency: USD

sla:
  response_hours: 24
  resolution_hours: 72

automation:
  auto_close_resolved_days: 3
  follow_up_days: 7
  campaign_min_leads: 5
  campaign_min_conversions: 1
  interval_minutes: 0

numbering:
  invoice: INV
  ticket: TKT
  width: 4

phone:
  default_region: US

rbac:
  roles:
    admin:
      description: "Full access"
      permissions: ["*"]
    manager:
      description: "Approves spend and runs automation"
      permissions: [expense.approve, automation.run, report.read, event.read]
    user:
      description: "Day-to-day CRM work"
      permissions: [event.read]

delivery:
  mode: log
  timeout_seconds: 5

logging:
  level: info
  format: json
`
