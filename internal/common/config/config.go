// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
)

const (
	EnvironmentDev  = "DEV"
	EnvironmentProd = "PROD"
)

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig            `mapstructure:"app"`
	Database   DatabaseConfig       `mapstructure:"database"`
	Codeforces CodeforcesConfig     `mapstructure:"codeforces"`
	Mail       MailConfig           `mapstructure:"mail"`
	Webhook    WebhookConfig        `mapstructure:"webhook"`
	Auth       AuthConfig           `mapstructure:"auth"`
	Alerts     AlertsConfig         `mapstructure:"alerts"`
	HTTP       HTTPConfig           `mapstructure:"http"`
	Jobs       map[string]JobConfig `mapstructure:"jobs"`
	Logging    LoggingConfig        `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // DEV or PROD
}

// IsProd reports whether the deployment sends from the production identity.
func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Environment, EnvironmentProd)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	DSN            string `mapstructure:"dsn"` // takes precedence over the discrete fields
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	if p.DSN != "" {
		return p.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CodeforcesConfig points the rating source client at the public API.
type CodeforcesConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	Provider string `mapstructure:"provider"` // ses or smtp
	Domain   string `mapstructure:"domain"`
	FromDev  string `mapstructure:"from_dev"`
	FromProd string `mapstructure:"from_prod"`

	SES struct {
		Region                string `mapstructure:"region"`
		RatingChangeTemplate  string `mapstructure:"rating_change_template"`
		InvalidHandleTemplate string `mapstructure:"invalid_handle_template"`
		ConfigurationSet      string `mapstructure:"configuration_set"`
	} `mapstructure:"ses"`

	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
	} `mapstructure:"smtp"`
}

// From returns the sender identity for the given environment.
func (m MailConfig) From(app AppConfig) string {
	if app.IsProd() {
		return m.FromProd
	}
	return m.FromDev
}

// WebhookConfig holds the inbound mail webhook signing key.
type WebhookConfig struct {
	SigningKey string `mapstructure:"signing_key"`
}

// AuthConfig holds the shared token accepted by the debug endpoint and the webhook.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// AlertsConfig routes unattributable rating-source failures to operators.
type AlertsConfig struct {
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
	Region      string `mapstructure:"region"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Address string `mapstructure:"address"`
}

// JobConfig holds the scheduling settings applicable to every job.
type JobConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	Interval  int  `mapstructure:"interval"` // milliseconds
	BatchSize int  `mapstructure:"batch_size"`
	LockTTL   int  `mapstructure:"lock_ttl"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
