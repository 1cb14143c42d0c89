package relay

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alovak/everypay-relay/internal/everypay"
	"github.com/alovak/everypay-relay/internal/middleware"
	"github.com/alovak/everypay-relay/internal/webhook"
	"github.com/spf13/viper"
)

const (
	callbackPath = "/payment-callback"
	resultPath   = "/payment-result"
)

// Config is a configuration for the relay application.
// It is built once at startup and passed to every component.
type Config struct {
	HTTPAddr string

	// EveryPay processor
	EveryPayURL string
	APIUsername string
	APISecret   string
	AccountName string
	// UpstreamTimeout bounds every call to the processor.
	UpstreamTimeout time.Duration

	// BackendURL is this service's public base URL, used to build the callback URL.
	BackendURL string
	// FrontendURL is where shoppers land after the callback redirect.
	FrontendURL string

	WebhookSecret string
	WebhookScheme webhook.Scheme

	CORSMode           middleware.CORSMode
	CORSAllowedOrigins []string

	// RepoBackend is "mem" or "pg".
	RepoBackend string
	DBDSN       string

	LogLevel string
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        "localhost:3000",
		EveryPayURL:     "https://igw-demo.every-pay.com/api/v4",
		UpstreamTimeout: 10 * time.Second,
		BackendURL:      "http://localhost:3000",
		FrontendURL:     "http://localhost:5173",
		WebhookScheme:   webhook.SchemeConcat,
		CORSMode:        middleware.CORSStrict,
		RepoBackend:     "mem",
		LogLevel:        "info",
	}
}

// LoadConfig reads the configuration from the environment on top of DefaultConfig.
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	def := DefaultConfig()

	v.SetDefault("HTTP_ADDR", "")
	v.SetDefault("PORT", "")
	v.SetDefault("EVERYPAY_API_URL", def.EveryPayURL)
	v.SetDefault("EVERYPAY_API_USERNAME", "")
	v.SetDefault("EVERYPAY_API_SECRET", "")
	v.SetDefault("EVERYPAY_ACCOUNT_NAME", "")
	v.SetDefault("UPSTREAM_TIMEOUT", def.UpstreamTimeout)
	v.SetDefault("BACKEND_URL", def.BackendURL)
	v.SetDefault("FRONTEND_URL", def.FrontendURL)
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("WEBHOOK_SIGNATURE_SCHEME", string(def.WebhookScheme))
	v.SetDefault("CORS_MODE", string(def.CORSMode))
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("REPO_BACKEND", def.RepoBackend)
	v.SetDefault("DB_DSN", "")
	v.SetDefault("LOG_LEVEL", def.LogLevel)
	v.AutomaticEnv()

	scheme, err := webhook.ParseScheme(v.GetString("WEBHOOK_SIGNATURE_SCHEME"))
	if err != nil {
		return nil, err
	}
	corsMode, err := middleware.ParseCORSMode(v.GetString("CORS_MODE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:           def.HTTPAddr,
		EveryPayURL:        strings.TrimRight(v.GetString("EVERYPAY_API_URL"), "/"),
		APIUsername:        v.GetString("EVERYPAY_API_USERNAME"),
		APISecret:          v.GetString("EVERYPAY_API_SECRET"),
		AccountName:        v.GetString("EVERYPAY_ACCOUNT_NAME"),
		UpstreamTimeout:    v.GetDuration("UPSTREAM_TIMEOUT"),
		BackendURL:         strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
		FrontendURL:        strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		WebhookSecret:      v.GetString("WEBHOOK_SECRET"),
		WebhookScheme:      scheme,
		CORSMode:           corsMode,
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		RepoBackend:        strings.ToLower(v.GetString("REPO_BACKEND")),
		DBDSN:              v.GetString("DB_DSN"),
		LogLevel:           strings.ToLower(v.GetString("LOG_LEVEL")),
	}

	switch {
	case v.GetString("HTTP_ADDR") != "":
		cfg.HTTPAddr = v.GetString("HTTP_ADDR")
	case v.GetString("PORT") != "":
		cfg.HTTPAddr = ":" + v.GetString("PORT")
	}

	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	required := []struct{ name, value string }{
		{"EVERYPAY_API_URL", c.EveryPayURL},
		{"EVERYPAY_API_USERNAME", c.APIUsername},
		{"EVERYPAY_API_SECRET", c.APISecret},
		{"EVERYPAY_ACCOUNT_NAME", c.AccountName},
		{"BACKEND_URL", c.BackendURL},
		{"FRONTEND_URL", c.FrontendURL},
		{"WEBHOOK_SECRET", c.WebhookSecret},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must be positive"))
	}
	if c.CORSMode == middleware.CORSStrict && len(c.CORSAllowedOrigins) == 0 {
		errs = append(errs, fmt.Errorf("CORS_ALLOWED_ORIGINS is required in strict CORS mode"))
	}
	switch c.RepoBackend {
	case "mem":
	case "pg":
		if c.DBDSN == "" {
			errs = append(errs, fmt.Errorf("DB_DSN is required for pg backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported REPO_BACKEND=%s", c.RepoBackend))
	}
	return errors.Join(errs...)
}

// CallbackURL is handed to the processor as customer_url.
func (c *Config) CallbackURL() string {
	return c.BackendURL + callbackPath
}

// ResultURL is the frontend page that renders the payment outcome.
func (c *Config) ResultURL() string {
	return c.FrontendURL + resultPath
}

func (c *Config) everyPay() everypay.Config {
	return everypay.Config{
		BaseURL:     c.EveryPayURL,
		APIUsername: c.APIUsername,
		APISecret:   c.APISecret,
		AccountName: c.AccountName,
		CustomerURL: c.CallbackURL(),
		Timeout:     c.UpstreamTimeout,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
