package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so Server.Addr is
// read from SURVEY_SERVER_ADDR.
const EnvPrefix = "SURVEY"

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Survey     SurveyConfig
	Encryption EncryptionConfig
	Research   ResearchConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

type ServerConfig struct {
	Addr           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string
}

// DatabaseConfig selects the store. Driver is one of memory, sqlite or postgres.
type DatabaseConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
	// MigrationsDir overrides the embedded migrations when it exists.
	MigrationsDir string
}

// RedisConfig enables the shared submission lock when Addr is set. Without
// it submissions are serialized in process only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

type SurveyConfig struct {
	TargetYear       int
	RequireLikedList bool
	// Scoring is the default method when a request names no instrument: sum or promis.
	Scoring        string
	RequireConsent bool
	ReceiptSecret  string
	ReceiptTTL     time.Duration
}

type EncryptionConfig struct {
	Enabled       bool
	PublicKey     string
	PublicKeyPath string
	EvenChunks    bool
}

// ResearchConfig holds the bcrypt hash of the researcher shared secret.
// An empty hash disables the research endpoints.
type ResearchConfig struct {
	SecretHash string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"server.addr":              ":8080",
	"server.env":               "development",
	"server.readtimeout":       15 * time.Second,
	"server.writetimeout":      30 * time.Second,
	"server.maxuploadbytes":    int64(64 << 20),
	"server.allowedorigins":    []string{},
	"database.driver":          "sqlite",
	"database.sqlitepath":      "data/survey.db",
	"database.postgresdsn":     "",
	"database.migrationsdir":   "",
	"redis.addr":               "",
	"redis.password":           "",
	"redis.db":                 0,
	"redis.lockttl":            10 * time.Second,
	"survey.targetyear":        2025,
	"survey.requirelikedlist":  false,
	"survey.scoring":           "sum",
	"survey.requireconsent":    true,
	"survey.receiptsecret":     "",
	"survey.receiptttl":        24 * time.Hour,
	"encryption.enabled":       false,
	"encryption.publickey":     "",
	"encryption.publickeypath": "",
	"encryption.evenchunks":    false,
	"research.secrethash":      "",
	"ratelimit.rps":            5.0,
	"ratelimit.burst":          10,
	"log.level":                "info",
	"log.format":               "text",
}

// Load reads configuration from defaults, an optional config file and
// SURVEY_* environment variables, in increasing order of precedence.
func Load(file string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Encryption.PublicKey == "" && cfg.Encryption.PublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.Encryption.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		cfg.Encryption.PublicKey = string(pem)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("database.postgresdsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.Driver == "sqlite" && c.Database.SQLitePath == "" {
		errs = append(errs, errors.New("database.sqlitepath is required for the sqlite driver"))
	}
	switch c.Survey.Scoring {
	case "", "sum", "promis":
	default:
		errs = append(errs, fmt.Errorf("unknown scoring method %q", c.Survey.Scoring))
	}
	if c.Survey.RequireConsent && len(c.Survey.ReceiptSecret) < 16 {
		errs = append(errs, errors.New("survey.receiptsecret must be at least 16 bytes when consent is required"))
	}
	if c.Survey.TargetYear < 2000 || c.Survey.TargetYear > 9999 {
		errs = append(errs, fmt.Errorf("survey.targetyear %d is out of range", c.Survey.TargetYear))
	}
	if c.Encryption.Enabled && c.Encryption.PublicKey == "" {
		errs = append(errs, errors.New("encryption is enabled but no public key is configured"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.maxuploadbytes must be positive"))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("ratelimit values must not be negative"))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }
