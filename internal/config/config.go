package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`

	InferenceBaseURL string        `mapstructure:"INFERENCE_BASE_URL"`
	InferenceAPIKey  string        `mapstructure:"INFERENCE_API_KEY"`
	InferenceModel   string        `mapstructure:"INFERENCE_MODEL"`
	InferenceTimeout time.Duration `mapstructure:"INFERENCE_TIMEOUT"`

	AssessMinConfidence float64 `mapstructure:"ASSESS_MIN_CONFIDENCE"`
	AssessMaxDiagnoses  int     `mapstructure:"ASSESS_MAX_DIAGNOSES"`

	AuditMode      string `mapstructure:"AUDIT_MODE"`
	AuditQueueSize int    `mapstructure:"AUDIT_QUEUE_SIZE"`
	AuditWorkers   int    `mapstructure:"AUDIT_WORKERS"`

	CulturalKBPath   string        `mapstructure:"CULTURAL_KB_PATH"`
	CrisisPagerEmail string        `mapstructure:"CRISIS_PAGER_EMAIL"`
	CrisisPagerSMS   string        `mapstructure:"CRISIS_PAGER_SMS"`
	RuleCacheTTL     time.Duration `mapstructure:"RULE_CACHE_TTL"`
}

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"

	AuditAsync = "async"
	AuditSync  = "sync"

	AuthDevelopment = "development"
	AuthExternal    = "external"
	AuthHMAC        = "hmac"
)

var defaults = map[string]any{
	"PORT":                  "8000",
	"ENV":                   "development",
	"AUTH_MODE":             "", // inferred, see ResolvedAuthMode
	"STORE_DRIVER":          StorePostgres,
	"SQLITE_PATH":           "assessment.db",
	"DB_MAX_CONNS":          20,
	"DB_MIN_CONNS":          5,
	"CORS_ORIGINS":          "http://localhost:3000",
	"REQUEST_TIMEOUT":       "30s",
	"BODY_LIMIT":            "256K",
	"RATE_LIMIT_RPS":        2,
	"RATE_LIMIT_BURST":      10,
	"INFERENCE_BASE_URL":    "https://api.openai.com/v1",
	"INFERENCE_MODEL":       "gpt-4o-mini",
	"INFERENCE_TIMEOUT":     "15s",
	"ASSESS_MIN_CONFIDENCE": 0.30,
	"ASSESS_MAX_DIAGNOSES":  5,
	"AUDIT_MODE":            AuditAsync,
	"AUDIT_QUEUE_SIZE":      1024,
	"AUDIT_WORKERS":         2,
	"RULE_CACHE_TTL":        "5m",
}

var envKeys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL", "AUTH_SIGNING_KEY",
	"STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"CORS_ORIGINS", "REQUEST_TIMEOUT", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"INFERENCE_BASE_URL", "INFERENCE_API_KEY", "INFERENCE_MODEL", "INFERENCE_TIMEOUT",
	"ASSESS_MIN_CONFIDENCE", "ASSESS_MAX_DIAGNOSES",
	"AUDIT_MODE", "AUDIT_QUEUE_SIZE", "AUDIT_WORKERS",
	"CULTURAL_KB_PATH", "CRISIS_PAGER_EMAIL", "CRISIS_PAGER_SMS", "RULE_CACHE_TTL",
}

// Load reads configuration from the environment and an optional .env file.
// Call Validate before using the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)
	cfg.AuditMode = strings.ToLower(cfg.AuditMode)

	if cfg.IsDev() {
		log.Println("WARNING: ENV=development: DevAuthMiddleware grants every request admin access.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER before handling real data.")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set. Otherwise:
//   - ENV=development      -> "development" (every request is an admin)
//   - AUTH_SIGNING_KEY set -> "hmac" (shared-secret HS256 tokens)
//   - otherwise            -> "external" (issuer JWKS)
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthDevelopment
	}
	if c.AuthSigningKey != "" {
		return AuthHMAC
	}
	return AuthExternal
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE \"development\" is not allowed when ENV=production")
		}
	case AuthExternal:
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_JWKS_URL must be set when AUTH_MODE is \"external\" (current ENV=%q)", c.Env)
		}
	case AuthHMAC:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes when AUTH_MODE is \"hmac\"")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\", \"external\", or \"hmac\", got %q", mode)
	}

	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", StorePostgres)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", StoreSQLite)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreSQLite, c.StoreDriver)
	}

	switch c.AuditMode {
	case AuditAsync:
		if c.AuditQueueSize <= 0 || c.AuditWorkers <= 0 {
			return fmt.Errorf("AUDIT_QUEUE_SIZE and AUDIT_WORKERS must be positive in async mode")
		}
	case AuditSync:
	default:
		return fmt.Errorf("AUDIT_MODE must be %q or %q, got %q", AuditAsync, AuditSync, c.AuditMode)
	}

	if c.InferenceModel == "" {
		return fmt.Errorf("INFERENCE_MODEL is required")
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive, got %s", c.InferenceTimeout)
	}
	if c.AssessMinConfidence < 0 || c.AssessMinConfidence > 1 {
		return fmt.Errorf("ASSESS_MIN_CONFIDENCE must be within [0,1], got %v", c.AssessMinConfidence)
	}
	if c.AssessMaxDiagnoses <= 0 {
		return fmt.Errorf("ASSESS_MAX_DIAGNOSES must be positive, got %d", c.AssessMaxDiagnoses)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.RuleCacheTTL < 0 {
		return fmt.Errorf("RULE_CACHE_TTL must not be negative")
	}
	return nil
}
