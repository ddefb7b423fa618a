package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ClientConfig drives the shop CLI. It is loaded on its own so the CLI needs none of the
// server's database or JWT settings.
type ClientConfig struct {
	BaseURL string        `envconfig:"SWEETSHOP_CLIENT_BASE_URL" default:"http://localhost:8080"`
	Token   string        `envconfig:"SWEETSHOP_CLIENT_TOKEN"`
	CartDir string        `envconfig:"SWEETSHOP_CLIENT_CART_DIR"`
	Timeout time.Duration `envconfig:"SWEETSHOP_CLIENT_TIMEOUT" default:"10s"`
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	return &cfg, nil
}
