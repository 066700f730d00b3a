// Package config loads gateway configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trade-desk-gateway/internal/logger"
)

// Config is the full gateway configuration.
type Config struct {
	// NotificationAPI is the notification REST base URL.
	NotificationAPI string `yaml:"notification_api"`
	// NotificationWS is the notification push endpoint (wss URL).
	NotificationWS string `yaml:"notification_ws"`
	// RPCEndpoint is the Solana RPC HTTP endpoint.
	RPCEndpoint string `yaml:"rpc_endpoint"`
	// ChartAPI is the OHLC data source base URL.
	ChartAPI string `yaml:"chart_api"`
	// DBHealthURL is the offchain data health endpoint.
	DBHealthURL string `yaml:"db_health_url"`

	// PostgresDSN enables the durable notification archive when set.
	PostgresDSN string `yaml:"postgres_dsn"`
	// ClickhouseDSN enables the candle archive when set.
	ClickhouseDSN string `yaml:"clickhouse_dsn"`

	// ListenAddr is the HTTP API listen address.
	ListenAddr string `yaml:"listen_addr"`
	// MetricsAddr is the Prometheus metrics listen address.
	MetricsAddr string `yaml:"metrics_addr"`

	Log logger.Config `yaml:"log"`
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	env string
	set func(*Config, string)
}{
	{"NOTIFICATION_API", func(c *Config, v string) { c.NotificationAPI = v }},
	{"NOTIFICATION_WS", func(c *Config, v string) { c.NotificationWS = v }},
	{"SOLANA_RPC_ENDPOINT", func(c *Config, v string) { c.RPCEndpoint = v }},
	{"CHART_API", func(c *Config, v string) { c.ChartAPI = v }},
	{"DB_HEALTH_URL", func(c *Config, v string) { c.DBHealthURL = v }},
	{"POSTGRES_DSN", func(c *Config, v string) { c.PostgresDSN = v }},
	{"CLICKHOUSE_DSN", func(c *Config, v string) { c.ClickhouseDSN = v }},
	{"LISTEN_ADDR", func(c *Config, v string) { c.ListenAddr = v }},
	{"METRICS_ADDR", func(c *Config, v string) { c.MetricsAddr = v }},
	{"LOG_LEVEL", func(c *Config, v string) { c.Log.Level = v }},
	{"LOG_FILE", func(c *Config, v string) { c.Log.File = v }},
}

// Load reads path (if non-empty and existing), applies environment overrides,
// fills defaults, and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	for _, o := range envOverrides {
		if v := os.Getenv(o.env); v != "" {
			o.set(cfg, v)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.NotificationAPI == "" {
		return fmt.Errorf("notification_api is required")
	}
	if c.NotificationWS == "" {
		return fmt.Errorf("notification_ws is required")
	}
	if c.RPCEndpoint == "" {
		return fmt.Errorf("rpc_endpoint is required")
	}
	return nil
}
