package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds the project config values
type Config struct {
	URL               string        `yaml:"db_uri"`
	DatabaseName      string        `yaml:"db_name"`
	BaseURL           string        `yaml:"base_url"`
	Port              string        `yaml:"port"`
	Env               string        `yaml:"env"`
	DBDriver          string        `yaml:"db_driver"`
	SQLitePath        string        `yaml:"sqlite_path"`
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	NATSURL           string        `yaml:"nats_url"`
	RedisURL          string        `yaml:"redis_url"`
	WorkflowCacheTTL  time.Duration `yaml:"workflow_cache_ttl"`
	SendGridAPIKey    string        `yaml:"sendgrid_api_key"`
	AlertEmail        string        `yaml:"alert_email"`
	AlertFromEmail    string        `yaml:"alert_from_email"`
	PendingAlertAfter time.Duration `yaml:"pending_alert_after"`
	RulesFile         string        `yaml:"rules_file"`
	SeedReferenceData bool          `yaml:"seed_reference_data"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	AdminUsername     string        `yaml:"admin_username"`
	AdminPassword     string        `yaml:"admin_password"`
}

// Database drivers
const (
	DriverMongo  = "mongo"
	DriverSQLite = "sqlite"
)

// New sets up all config related services. A broken CONFIG_FILE is logged
// and the environment alone is used.
func New() *Config {
	conf, err := Load()
	if err != nil {
		zap.S().Errorw("failed to load config file, using environment only", "error", err)
		conf = defaults()
		applyEnv(conf)
	}
	return conf
}

// Load builds the config from defaults, the optional CONFIG_FILE yaml overlay
// and the environment, in that order of precedence (environment wins), and
// replaces the global zap logger to match Env.
func Load() (*Config, error) {
	conf := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, conf); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(conf)

	logger, err := setLogger(conf.Env)
	if err != nil {
		return nil, err
	}
	_ = zap.ReplaceGlobals(logger)

	return conf, conf.Validate()
}

// Validate reports settings that cannot work together
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMongo:
		if c.URL == "" {
			return fmt.Errorf("DB_URI is required for the %s driver", DriverMongo)
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	return nil
}

func defaults() *Config {
	return &Config{
		Port:              "8080",
		Env:               "local",
		DBDriver:          DriverMongo,
		DatabaseName:      "camp-cad",
		SQLitePath:        "camp-cad.db",
		TokenTTL:          12 * time.Hour,
		WorkflowCacheTTL:  10 * time.Minute,
		PendingAlertAfter: 5 * time.Minute,
		RequestTimeout:    30 * time.Second,
		AdminUsername:     "admin",
	}
}

func applyEnv(c *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			} else {
				zap.S().Warnw("ignoring invalid duration", "key", key, "value", v)
			}
		}
	}

	str("DB_URI", &c.URL)
	str("DB_NAME", &c.DatabaseName)
	str("BASE_URL", &c.BaseURL)
	str("PORT", &c.Port)
	str("ENV", &c.Env)
	str("DB_DRIVER", &c.DBDriver)
	str("SQLITE_PATH", &c.SQLitePath)
	str("JWT_SECRET", &c.JWTSecret)
	str("NATS_URL", &c.NATSURL)
	str("REDIS_URL", &c.RedisURL)
	str("SENDGRID_API_KEY", &c.SendGridAPIKey)
	str("ALERT_EMAIL", &c.AlertEmail)
	str("ALERT_FROM_EMAIL", &c.AlertFromEmail)
	str("RULES_FILE", &c.RulesFile)
	str("ADMIN_USERNAME", &c.AdminUsername)
	str("ADMIN_PASSWORD", &c.AdminPassword)
	dur("TOKEN_TTL", &c.TokenTTL)
	dur("WORKFLOW_CACHE_TTL", &c.WorkflowCacheTTL)
	dur("PENDING_ALERT_AFTER", &c.PendingAlertAfter)
	dur("REQUEST_TIMEOUT", &c.RequestTimeout)

	if v, ok := os.LookupEnv("SEED_REFERENCE_DATA"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SeedReferenceData = b
		}
	}
}
