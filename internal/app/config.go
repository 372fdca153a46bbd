package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete gateway configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr       string `default:"0.0.0.0:8090" usage:"gateway listen address"`
	ERPBaseURL string `usage:"base URL of the ERP REST API, e.g. http://erp:8080/api (POS_ERP_BASE_URL or ERP_URL)" flag:"erp-base-url"`
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	Graceful   GracefulConfig
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers for browser
// terminals.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML
// config files, then applies platform-style defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos-gateway/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.ERPBaseURL == "" {
		return nil, errors.New("ERP base URL is required: set POS_ERP_BASE_URL or ERP_URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables with
// standard names (ERP_URL, PORT) to the POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.ERPBaseURL == "" {
		if v := os.Getenv("ERP_URL"); v != "" {
			c.ERPBaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8090" {
		c.Addr = "0.0.0.0:" + port
	}
}
