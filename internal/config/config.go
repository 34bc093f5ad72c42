// Package config loads and validates question-sync configuration via Viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Fetcher modes.
const (
	FetcherHeadless = "headless"
	FetcherStatic   = "static"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Fetcher FetcherConfig `mapstructure:"fetcher"`
	Extract ExtractConfig `mapstructure:"extract"`
	DB      DBConfig      `mapstructure:"db"`
	Notion  NotionConfig  `mapstructure:"notion"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// SourceConfig describes the site questions are scraped from.
type SourceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	PacingDelay time.Duration `mapstructure:"pacing_delay"`
}

// FetcherConfig selects and tunes the page fetcher.
type FetcherConfig struct {
	Mode              string        `mapstructure:"mode"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	InsecureTLS       bool          `mapstructure:"insecure_tls"`
	ChromePath        string        `mapstructure:"chrome_path"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
}

// ExtractConfig overrides the page selectors.
type ExtractConfig struct {
	TitleSelector   string `mapstructure:"title_selector"`
	ContentSelector string `mapstructure:"content_selector"`
	LinksMarker     string `mapstructure:"links_marker"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// NotionConfig holds workspace credentials and publish limits.
type NotionConfig struct {
	Token             string  `mapstructure:"token"`
	DatabaseID        string  `mapstructure:"database_id"`
	TitleProperty     string  `mapstructure:"title_property"`
	IDProperty        string  `mapstructure:"id_property"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// Enabled reports whether both credentials are present.
func (n NotionConfig) Enabled() bool {
	return strings.TrimSpace(n.Token) != "" && strings.TrimSpace(n.DatabaseID) != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the ops HTTP listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig controls OpenTelemetry export. Spans are always recorded in-process.
type TracingConfig struct {
	GCPProjectID string `mapstructure:"gcp_project_id"`
}

// legacyEnv maps keys to the unprefixed variable names used by existing deployments.
var legacyEnv = map[string]string{
	"source.base_url":    "CRAWLING_SITE",
	"db.host":            "DB_HOST",
	"db.port":            "DB_PORT",
	"db.user":            "DB_USER",
	"db.password":        "DB_PASSWORD",
	"db.name":            "DB_NAME",
	"notion.token":       "NOTION_TOKEN",
	"notion.database_id": "NOTION_DATABASE_ID",
}

// Load builds a Config from .env files, an optional config file and the environment.
func Load(path string) (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("QSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := "QSYNC_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadEnvFiles loads ENV_FILE when set, otherwise .env.local then .env. Missing files are ignored
// and variables already in the environment win.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.pacing_delay", time.Second)
	v.SetDefault("fetcher.mode", FetcherHeadless)
	v.SetDefault("fetcher.settle_delay", 2*time.Second)
	v.SetDefault("fetcher.navigation_timeout", 45*time.Second)
	v.SetDefault("fetcher.user_agent", "question-sync/1.0")
	v.SetDefault("fetcher.insecure_tls", true)
	v.SetDefault("fetcher.max_attempts", 2)
	v.SetDefault("fetcher.retry_base_delay", time.Second)
	v.SetDefault("extract.title_selector", "h2.ut08sa0")
	v.SetDefault("extract.content_selector", ".wmde-markdown")
	v.SetDefault("extract.links_marker", "추가 학습 자료")
	v.SetDefault("db.driver", DriverPostgres)
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "admin")
	v.SetDefault("db.name", "nutrient_analysis")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.table", "maeil_mail_questions")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("notion.title_property", "Name")
	v.SetDefault("notion.id_property", "ID")
	v.SetDefault("notion.max_concurrent", 3)
	v.SetDefault("notion.requests_per_second", 3.0)
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.gcp_project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Fetcher.Mode {
	case FetcherHeadless, FetcherStatic:
	default:
		return fmt.Errorf("fetcher.mode must be %q or %q, got %q", FetcherHeadless, FetcherStatic, c.Fetcher.Mode)
	}
	if c.Source.PacingDelay < 0 {
		return fmt.Errorf("source.pacing_delay must be >= 0")
	}
	if c.Fetcher.SettleDelay < 0 {
		return fmt.Errorf("fetcher.settle_delay must be >= 0")
	}
	if c.Fetcher.NavigationTimeout <= 0 {
		return fmt.Errorf("fetcher.navigation_timeout must be > 0")
	}
	if c.Fetcher.MaxAttempts < 0 {
		return fmt.Errorf("fetcher.max_attempts must be >= 0")
	}
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.Port <= 0 {
			return fmt.Errorf("db.port must be > 0")
		}
		if strings.TrimSpace(c.DB.Name) == "" {
			return fmt.Errorf("db.name must be set")
		}
		if c.DB.MaxConns <= 0 {
			return fmt.Errorf("db.max_conns must be > 0")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.DB.Driver)
	}
	if c.Notion.MaxConcurrent <= 0 {
		return fmt.Errorf("notion.max_concurrent must be > 0")
	}
	if c.Notion.RequestsPerSecond < 0 {
		return fmt.Errorf("notion.requests_per_second must be >= 0")
	}
	return nil
}

// RequireSource reports an error when no base URL is configured; only scraping needs one.
func (c Config) RequireSource() error {
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		return fmt.Errorf("source.base_url (or CRAWLING_SITE) must be set to scrape")
	}
	return nil
}
