package main

import (
	"path/filepath"
	"time"

	"github.com/gravitational/trace"
	"github.com/pelletier/go-toml"

	"github.com/healthbridge/abdm-broker/lib/logger"
)

// Config is the top-level broker configuration.
type Config struct {
	Broker  BrokerConfig  `toml:"broker"`
	Gateway GatewayConfig `toml:"gateway"`
	HTTP    HTTPConfig    `toml:"http"`
	Log     logger.Config `toml:"log"`
}

// BrokerConfig tunes the credential and key lifecycles. Intervals are
// explicit configuration so tests and deployments can compress time.
type BrokerConfig struct {
	// DataDir holds the credential record and the public key copy.
	DataDir string `toml:"data_dir"`
	// RefreshBufferSeconds is the safety margin before token expiry.
	RefreshBufferSeconds int64 `toml:"refresh_buffer_seconds"`
	// RefreshIntervalMinutes is the proactive token refresh period.
	RefreshIntervalMinutes int64 `toml:"refresh_interval_minutes"`
	// KeyHorizonDays is the validity horizon of a fetched public key.
	KeyHorizonDays int64 `toml:"key_horizon_days"`
	// KeyCheckIntervalHours is the period of the key expiry-proximity check.
	KeyCheckIntervalHours int64 `toml:"key_check_interval_hours"`
}

// GatewayConfig points at the upstream identity gateway.
type GatewayConfig struct {
	SessionURL     string `toml:"session_url"`
	CertificateURL string `toml:"certificate_url"`
	CMID           string `toml:"cm_id"`
}

// HTTPConfig configures the broker's own API listener.
type HTTPConfig struct {
	Listen string `toml:"listen"`
}

const exampleConfig = `# example abdm-broker configuration TOML file
[broker]
data_dir = "/var/lib/abdm-broker"  # Directory for the credential record and key copy
refresh_buffer_seconds = 120       # Renew the token this long before expiry
refresh_interval_minutes = 15      # Proactive token refresh period
key_horizon_days = 180             # Public key validity horizon
key_check_interval_hours = 24      # Key expiry-proximity check period

[gateway]
session_url = "https://dev.abdm.gov.in/gateway/v0.5/sessions"
certificate_url = "https://abhasbx.abdm.gov.in/abha/api/v3/profile/public/certificate"
cm_id = "sbx" # Consent manager id sent in the X-CM-ID header

[http]
listen = ":8002" # Broker API listen address

[log]
output = "stderr" # Logger output. Could be "stdout", "stderr" or a file path.
severity = "INFO" # Logger severity. Could be "INFO", "ERROR", "DEBUG" or "WARN".
`

// LoadConfig reads a TOML config file and validates it.
func LoadConfig(filepath string) (*Config, error) {
	t, err := toml.LoadFile(filepath)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	conf := &Config{}
	if err := t.Unmarshal(conf); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return conf, nil
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Broker.DataDir == "" {
		c.Broker.DataDir = "/var/lib/abdm-broker"
	}
	if c.Broker.RefreshBufferSeconds == 0 {
		c.Broker.RefreshBufferSeconds = 120
	}
	if c.Broker.RefreshBufferSeconds < 0 {
		return trace.BadParameter("broker.refresh_buffer_seconds must not be negative")
	}
	if c.Broker.RefreshIntervalMinutes == 0 {
		c.Broker.RefreshIntervalMinutes = 15
	}
	if c.Broker.KeyHorizonDays == 0 {
		c.Broker.KeyHorizonDays = 180
	}
	if c.Broker.KeyCheckIntervalHours == 0 {
		c.Broker.KeyCheckIntervalHours = 24
	}
	if c.Gateway.SessionURL == "" {
		c.Gateway.SessionURL = "https://dev.abdm.gov.in/gateway/v0.5/sessions"
	}
	if c.Gateway.CertificateURL == "" {
		c.Gateway.CertificateURL = "https://abhasbx.abdm.gov.in/abha/api/v3/profile/public/certificate"
	}
	if c.Gateway.CMID == "" {
		c.Gateway.CMID = "sbx"
	}
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8002"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stderr"
	}
	if c.Log.Severity == "" {
		c.Log.Severity = "info"
	}
	return nil
}

func (c *Config) tokenFile() string {
	return filepath.Join(c.Broker.DataDir, "credential.json")
}

func (c *Config) keyFile() string {
	return filepath.Join(c.Broker.DataDir, "public_key.pem")
}

func (c *Config) refreshBuffer() time.Duration {
	return time.Duration(c.Broker.RefreshBufferSeconds) * time.Second
}

func (c *Config) refreshInterval() time.Duration {
	return time.Duration(c.Broker.RefreshIntervalMinutes) * time.Minute
}

func (c *Config) keyHorizon() time.Duration {
	return time.Duration(c.Broker.KeyHorizonDays) * 24 * time.Hour
}

func (c *Config) keyCheckInterval() time.Duration {
	return time.Duration(c.Broker.KeyCheckIntervalHours) * time.Hour
}
