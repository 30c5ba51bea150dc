package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort string `mapstructure:"HTTP_PORT"`
	GRPCPort string `mapstructure:"GRPC_PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StorageBackend string        `mapstructure:"STORAGE_BACKEND"`
	DBHost         string        `mapstructure:"DB_HOST"`
	DBPort         string        `mapstructure:"DB_PORT"`
	DBUser         string        `mapstructure:"DB_USER"`
	DBPassword     string        `mapstructure:"DB_PASSWORD"`
	DBName         string        `mapstructure:"DB_NAME"`
	DBLockTimeout  time.Duration `mapstructure:"DB_LOCK_TIMEOUT"`
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`

	AccessSecret   string `mapstructure:"ACCESS_SECRET"`
	ModeratorKey   string `mapstructure:"MODERATOR_API_KEY"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	EvidenceDir        string        `mapstructure:"EVIDENCE_DIR"`
	MaxProofAttempts   int           `mapstructure:"MAX_PROOF_ATTEMPTS"`
	ProofRateLimit     int           `mapstructure:"PROOF_RATE_LIMIT"`
	ProofRateWindow    time.Duration `mapstructure:"PROOF_RATE_WINDOW"`
	ResetPenalty       float64       `mapstructure:"REVIVAL_RESET_PENALTY"`
	ChallengePenalty   float64       `mapstructure:"REVIVAL_CHALLENGE_PENALTY"`
	ExpiryWarningHours int           `mapstructure:"EXPIRY_WARNING_HOURS"`
	DailyRunAt         string        `mapstructure:"DAILY_RUN_AT"`
	Timezone           string        `mapstructure:"TIMEZONE"`
	SchedulerEnabled   bool          `mapstructure:"SCHEDULER_ENABLED"`
	NotifyWebhookURL   string        `mapstructure:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookToken string        `mapstructure:"NOTIFY_WEBHOOK_TOKEN"`
	SeedDemo           bool          `mapstructure:"SEED_DEMO"`
}

var defaults = map[string]any{
	"HTTP_PORT":                 ":8080",
	"GRPC_PORT":                 ":50051",
	"LOG_LEVEL":                 "info",
	"STORAGE_BACKEND":           "postgres",
	"DB_PORT":                   "5432",
	"DB_LOCK_TIMEOUT":           "3s",
	"EVIDENCE_DIR":              "./data/evidence",
	"MAX_PROOF_ATTEMPTS":        3,
	"PROOF_RATE_LIMIT":          10,
	"PROOF_RATE_WINDOW":         "1h",
	"REVIVAL_RESET_PENALTY":     0.5,
	"REVIVAL_CHALLENGE_PENALTY": 0.8,
	"EXPIRY_WARNING_HOURS":      3,
	"DAILY_RUN_AT":              "00:05",
	"TIMEZONE":                  "Local",
	"SCHEDULER_ENABLED":         true,
	"ALLOWED_ORIGINS":           "*",
}

var keys = []string{
	"HTTP_PORT", "GRPC_PORT", "LOG_LEVEL",
	"STORAGE_BACKEND", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_LOCK_TIMEOUT", "REDIS_ADDR",
	"ACCESS_SECRET", "MODERATOR_API_KEY", "ALLOWED_ORIGINS",
	"EVIDENCE_DIR", "MAX_PROOF_ATTEMPTS", "PROOF_RATE_LIMIT", "PROOF_RATE_WINDOW",
	"REVIVAL_RESET_PENALTY", "REVIVAL_CHALLENGE_PENALTY", "EXPIRY_WARNING_HOURS",
	"DAILY_RUN_AT", "TIMEZONE", "SCHEDULER_ENABLED",
	"NOTIFY_WEBHOOK_URL", "NOTIFY_WEBHOOK_TOKEN", "SEED_DEMO",
}

// LoadConfig reads app.env from path, if present, with the environment on top.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()
	// bind explicitly so keys resolve without a config file
	for _, k := range keys {
		if err = v.BindEnv(k); err != nil {
			return
		}
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}
	err = config.Validate()
	return
}

func (c Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case "postgres":
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			errs = append(errs, errors.New("DB_HOST, DB_USER and DB_NAME are required for the postgres backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND must be postgres or memory, got %q", c.StorageBackend))
	}
	if c.AccessSecret == "" {
		errs = append(errs, errors.New("ACCESS_SECRET is required"))
	}
	if c.MaxProofAttempts < 1 {
		errs = append(errs, errors.New("MAX_PROOF_ATTEMPTS must be at least 1"))
	}
	if c.ResetPenalty <= 0 || c.ResetPenalty > 1 || c.ChallengePenalty <= 0 || c.ChallengePenalty > 1 {
		errs = append(errs, errors.New("revival penalties must be in (0, 1]"))
	}
	if _, err := c.DailyRunOffset(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DailyRunOffset parses DAILY_RUN_AT ("HH:MM") into an offset from midnight.
func (c Config) DailyRunOffset() (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(c.DailyRunAt))
	if err != nil {
		return 0, fmt.Errorf("DAILY_RUN_AT must be HH:MM: %w", err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
