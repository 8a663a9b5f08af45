// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultBatchSize         = 50
	DefaultJobInterval       = 60000
	DefaultCodeforcesTimeout = 30000
	DefaultCodeforcesBaseURL = "https://codeforces.com/api"
)

// Job names. Each maps to one scheduled controller.
const (
	JobVerifyUnknownHandles       = "verify-unknown-handles"
	JobPollRatings                = "poll-ratings"
	JobReapInvalidHandles         = "reap-invalid-handles"
	JobDeliverRatingChangeEmails  = "deliver-rating-change-emails"
	JobDeliverInvalidHandleEmails = "deliver-invalid-handle-emails"
)

// JobNames lists every job in registration order.
var JobNames = []string{
	JobVerifyUnknownHandles,
	JobPollRatings,
	JobReapInvalidHandles,
	JobDeliverRatingChangeEmails,
	JobDeliverInvalidHandleEmails,
}

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	if root := findProjectRoot(); root != "" {
		v.AddConfigPath(filepath.Join(root, "configs"))
	}

	// database.postgres.password <- DATABASE_POSTGRES_PASSWORD
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	env := strings.ToLower(os.Getenv("APP_ENVIRONMENT"))
	if env != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		_ = v.MergeInConfig() // optional
	}

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // test/e2e
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets that are only ever delivered through the environment.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Auth.Token, "AUTH_TOKEN")
	setIfEmpty(&cfg.Webhook.SigningKey, "MAILGUN_WEBHOOK_KEY")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Postgres.DSN, "DATABASE_URL")
	setIfEmpty(&cfg.Database.Redis.Password, "REDIS_PASSWORD")
	setIfEmpty(&cfg.Mail.SMTP.Password, "SMTP_PASSWORD")
	setIfEmpty(&cfg.Alerts.SNSTopicARN, "ALERTS_SNS_TOPIC_ARN")
	if env := os.Getenv("APP_ENVIRONMENT"); env != "" && cfg.App.Environment == "" {
		cfg.App.Environment = env
	}
}

func setIfEmpty(dst *string, envKey string) {
	if *dst != "" {
		return
	}
	if val := os.Getenv(envKey); val != "" {
		*dst = val
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "rating-notifier"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = EnvironmentDev
	}
	cfg.App.Environment = strings.ToUpper(cfg.App.Environment)

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Codeforces.BaseURL == "" {
		cfg.Codeforces.BaseURL = DefaultCodeforcesBaseURL
	}
	if cfg.Codeforces.Timeout == 0 {
		cfg.Codeforces.Timeout = DefaultCodeforcesTimeout
	}

	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "ses"
	}
	if cfg.Mail.FromDev == "" {
		cfg.Mail.FromDev = "Codeforces Rating Notifier DEV <notifications@cfratingnotifier.com>"
	}
	if cfg.Mail.FromProd == "" {
		cfg.Mail.FromProd = "Codeforces Rating Notifier <notifications@cfratingnotifier.com>"
	}
	if cfg.Mail.SES.RatingChangeTemplate == "" {
		cfg.Mail.SES.RatingChangeTemplate = "rating-change"
	}
	if cfg.Mail.SES.InvalidHandleTemplate == "" {
		cfg.Mail.SES.InvalidHandleTemplate = "invalid-handle"
	}
	if cfg.Mail.SMTP.Port == 0 {
		cfg.Mail.SMTP.Port = 587
	}

	if cfg.HTTP.Address == "" {
		cfg.HTTP.Address = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Jobs == nil {
		cfg.Jobs = make(map[string]JobConfig, len(JobNames))
	}
	for _, name := range JobNames {
		if _, ok := cfg.Jobs[name]; !ok {
			cfg.Jobs[name] = JobConfig{Enabled: true}
		}
	}
	for key, job := range cfg.Jobs {
		if job.Interval == 0 {
			job.Interval = DefaultJobInterval
		}
		if job.BatchSize == 0 {
			job.BatchSize = DefaultBatchSize
		}
		if job.LockTTL == 0 {
			job.LockTTL = job.Interval * 5
		}
		cfg.Jobs[key] = job
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.App.Environment != EnvironmentDev && cfg.App.Environment != EnvironmentProd {
		return fmt.Errorf("app.environment must be %s or %s, got %q", EnvironmentDev, EnvironmentProd, cfg.App.Environment)
	}

	if cfg.Database.Postgres.DSN == "" {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	switch cfg.Mail.Provider {
	case "ses":
	case "smtp":
		if cfg.Mail.SMTP.Host == "" {
			return fmt.Errorf("mail.smtp.host is required when mail.provider is smtp")
		}
	default:
		return fmt.Errorf("mail.provider must be ses or smtp, got %q", cfg.Mail.Provider)
	}

	for name, job := range cfg.Jobs {
		if job.BatchSize < 0 {
			return fmt.Errorf("jobs.%s.batch_size must be positive", name)
		}
		if job.Interval < 0 {
			return fmt.Errorf("jobs.%s.interval must be positive", name)
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetJobConfig retrieves job-specific configuration with fallback to defaults
func GetJobConfig(cfg *Config, jobName string) JobConfig {
	if job, exists := cfg.Jobs[jobName]; exists {
		return job
	}
	return JobConfig{
		Enabled:   true,
		Interval:  DefaultJobInterval,
		BatchSize: DefaultBatchSize,
		LockTTL:   DefaultJobInterval * 5,
	}
}

// IsJobEnabled checks if a specific job is enabled
func IsJobEnabled(cfg *Config, jobName string) bool {
	if job, exists := cfg.Jobs[jobName]; exists {
		return job.Enabled
	}
	return true
}
