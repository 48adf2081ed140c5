package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_BASE_URL is the HTTP root of a running server, e.g. http://localhost:3001.
	// The suites are skipped when it is empty.
	BaseURL    string `envconfig:"E2E_BASE_URL"`
	HealthAddr string `envconfig:"E2E_HEALTH_ADDR" default:"localhost:3002"`
	// E2E_DEBUG_JSON dumps full request/response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
