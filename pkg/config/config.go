// Package config loads the application configuration from viper into typed
// structs shared by the proxy pool and the request executor.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ProxyPlatform describes one named remote proxy vendor. GetProxyLink is an
// endpoint that answers a bare host:port per GET.
type ProxyPlatform struct {
	Name         string `mapstructure:"name"`
	GetProxyLink string `mapstructure:"get_proxy_link"`
	Priority     int    `mapstructure:"priority"`
	DisplayName  string `mapstructure:"zh_name"`
}

// ProxyConfig selects which platforms feed the pool. DebugProxy, when set,
// supersedes platform selection with a single fixed address.
type ProxyConfig struct {
	Enable     bool            `mapstructure:"enable"`
	Use        string          `mapstructure:"use"`
	DebugProxy string          `mapstructure:"debug_proxy"`
	Platforms  []ProxyPlatform `mapstructure:"proxy_platforms"`
}

type AppConfig struct {
	MaxRetries         int           `mapstructure:"max_retries"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	FakeHeadersEnabled bool          `mapstructure:"fake_headers_enabled"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	// Transport is an optional outline-sdk config string. When set it
	// replaces the pool-provided proxy as the egress path.
	Transport string      `mapstructure:"transport"`
	Proxy     ProxyConfig `mapstructure:"proxy_config"`
}

// FromViper applies defaults and unmarshals the configuration.
func FromViper(v *viper.Viper) (*AppConfig, error) {
	v.SetDefault("max_retries", 3)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("fake_headers_enabled", true)

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0, got %d", cfg.MaxRetries)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be positive, got %v", cfg.RequestTimeout)
	}

	return &cfg, nil
}
