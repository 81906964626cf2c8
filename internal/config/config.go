package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type ClientEnvironment struct {

	// general settings
	Environment string `env:"ENVIRONMENT,default=dev"`
	LogLevel    string `env:"LOG_LEVEL,default=debug"`

	// remote signing server settings
	SigningServerURL  string        `env:"SIGNING_SERVER_URL,required=true"`
	SigningAPITimeout time.Duration `env:"SIGNING_API_TIMEOUT,default=60s"`

	// bearer token for the remote API: either the token itself or a file path
	APIToken     string `env:"API_TOKEN"`
	APITokenFile string `env:"API_TOKEN_FILE"`

	// client-side rate limiting of remote API calls (0 disables)
	RateLimitRPS   int32 `env:"RATE_LIMIT_RPS,default=10"`
	RateLimitBurst int32 `env:"RATE_LIMIT_BURST,default=20"`

	// local signing agent settings
	AgentURL     string        `env:"AGENT_URL,default=http://127.0.0.1:53952"`
	AgentTimeout time.Duration `env:"AGENT_TIMEOUT,default=120s"`

	// batch loading settings
	MaxConcurrentRenders int `env:"MAX_CONCURRENT_RENDERS,default=4"`
	MaxPDFBytes          int `env:"MAX_PDF_BYTES,default=20971520"`

	// optional signing audit log (disabled when unset)
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DBMaxConnections  int32         `env:"DB_MAX_CONNECTIONS,default=2"`
	DBMaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
}

// StubEnvironment configures the development stub server (cmd/signing-stub).
type StubEnvironment struct {
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	MaxRequestBytes       int64         `env:"MAX_REQUEST_BYTES,default=1048576"`

	// number of invoices the stub returns per accepted batch
	StubInvoiceCount int `env:"STUB_INVOICE_COUNT,default=3"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

// NewClientConfig loads environment variables and returns a ClientEnvironment struct that contains the values
func NewClientConfig() (*ClientEnvironment, error) {
	var cfg ClientEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateClientConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewStubConfig loads environment variables for the stub server.
func NewStubConfig() (*StubEnvironment, error) {
	var cfg StubEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return nil, fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}
	if cfg.StubInvoiceCount < 1 {
		return nil, fmt.Errorf("STUB_INVOICE_COUNT must be at least 1")
	}
	return &cfg, nil
}

// validateClientConfig checks for required env variables
func validateClientConfig(cfg *ClientEnvironment) error {
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	if cfg.MaxConcurrentRenders < 1 {
		return fmt.Errorf("MAX_CONCURRENT_RENDERS must be at least 1")
	}

	if cfg.MaxPDFBytes < 1 {
		return fmt.Errorf("MAX_PDF_BYTES must be at least 1")
	}

	if cfg.DatabaseURL != "" && cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}

	return nil
}
