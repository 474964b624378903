// Package config loads server settings and tenant definitions from a YAML
// file. Flags in cmd/server override the server section; the tenants
// section seeds the tenant store on startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arvo/fiscal-engine/fiscal"
)

// Config models fiscal-engine.yml.
type Config struct {
	Server struct {
		Port         int    `yaml:"port"`
		DBPath       string `yaml:"db_path"`
		Workers      int    `yaml:"workers"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"server"`

	Tenants []TenantYAML `yaml:"tenants"`
}

// Defaults applied when neither the config file nor a flag sets a value.
const (
	DefaultPort    = 8080
	DefaultDBPath  = "fiscal.db"
	DefaultWorkers = 4

	DefaultPollInterval = 30 * time.Second
)

// ServerSettings is the resolved server section: file values where present,
// engine defaults everywhere else.
type ServerSettings struct {
	Port         int
	DBPath       string
	Workers      int
	PollInterval time.Duration
}

// ServerSettings fills unset fields with the engine defaults. PollInterval
// is validated at parse time, so a non-empty value always parses here.
func (c *Config) ServerSettings() ServerSettings {
	s := ServerSettings{
		Port:         c.Server.Port,
		DBPath:       c.Server.DBPath,
		Workers:      c.Server.Workers,
		PollInterval: DefaultPollInterval,
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.DBPath == "" {
		s.DBPath = DefaultDBPath
	}
	if s.Workers == 0 {
		s.Workers = DefaultWorkers
	}
	if c.Server.PollInterval != "" {
		if d, err := time.ParseDuration(c.Server.PollInterval); err == nil {
			s.PollInterval = d
		}
	}
	return s
}

// TenantYAML is the on-disk shape of a tenant configuration.
type TenantYAML struct {
	ID              string `yaml:"id"`
	Name            string `yaml:"name"`
	Mode            string `yaml:"mode"` // simulated | live
	Endpoint        string `yaml:"endpoint"`
	APIKey          string `yaml:"api_key"`
	CertRef         string `yaml:"cert_ref"`
	Series          string `yaml:"series"`
	MaxAttempts     int    `yaml:"max_attempts"`
	DefaultCurrency string `yaml:"default_currency"`
}

// Load reads the config file. A missing file is not an error: the server
// runs with defaults and an empty tenant set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Server.PollInterval != "" {
		if _, err := time.ParseDuration(cfg.Server.PollInterval); err != nil {
			return nil, fmt.Errorf("server.poll_interval: %w", err)
		}
	}
	for i, t := range cfg.Tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("tenants[%d]: id is required", i)
		}
		switch t.Mode {
		case "", string(fiscal.ModeSimulated), string(fiscal.ModeLive):
		default:
			return nil, fmt.Errorf("tenants[%d]: mode %q must be simulated or live", i, t.Mode)
		}
		if t.Mode == string(fiscal.ModeLive) && t.Endpoint == "" {
			return nil, fmt.Errorf("tenants[%d]: live mode requires an endpoint", i)
		}
	}
	return &cfg, nil
}

// TenantConfig converts the YAML shape to the domain type.
func (t TenantYAML) TenantConfig() fiscal.TenantConfig {
	mode := fiscal.AuthorityMode(t.Mode)
	if mode == "" {
		mode = fiscal.ModeSimulated
	}
	currency := t.DefaultCurrency
	if currency == "" {
		currency = "EUR"
	}
	return fiscal.TenantConfig{
		ID:              fiscal.TenantID(t.ID),
		Name:            t.Name,
		Mode:            mode,
		Endpoint:        t.Endpoint,
		APIKey:          t.APIKey,
		CertRef:         t.CertRef,
		Series:          t.Series,
		MaxAttempts:     t.MaxAttempts,
		DefaultCurrency: currency,
	}
}
