package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Internal   InternalConfig   `mapstructure:"internal"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	GroupID        string   `mapstructure:"group_id"`
	DispatchTopic  string   `mapstructure:"dispatch_topic"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

// RateLimitConfig selects the team limiter backend: memory | redis | redis_gcra.
type RateLimitConfig struct {
	Backend         string        `mapstructure:"backend"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
	AllowMethods []string `mapstructure:"allow_methods"`
	AllowHeaders []string `mapstructure:"allow_headers"`
	MaxAge       int      `mapstructure:"max_age"`
}

type GatewayConfig struct {
	Products        ProductsConfig `mapstructure:"products"`
	MaxLoggedBody   int            `mapstructure:"max_logged_body"`
	MaxRequestBody  string         `mapstructure:"max_request_body"` // echo BodyLimit syntax, e.g. "1M"
	RecorderTimeout time.Duration  `mapstructure:"recorder_timeout"`

	AuthAttemptsPerMinute int           `mapstructure:"auth_attempts_per_minute"`
	AuthCacheTTL          time.Duration `mapstructure:"auth_cache_ttl"`
	AuthCacheSize         int           `mapstructure:"auth_cache_size"`
}

type ProductsConfig struct {
	SaveJournalEntry string `mapstructure:"save_journal_entry"`
}

type WebhookConfig struct {
	TimeoutMs        int     `mapstructure:"timeout_ms"`
	MaxAttempts      int     `mapstructure:"max_attempts"`
	AlertThreshold   float64 `mapstructure:"alert_threshold"`
	UserAgent        string  `mapstructure:"user_agent"`
	BreakerThreshold int     `mapstructure:"breaker_threshold"`
}

type DispatcherConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	Interval   time.Duration `mapstructure:"interval"`
	ClaimLease time.Duration `mapstructure:"claim_lease"`
}

type InternalConfig struct {
	APISecret string `mapstructure:"api_secret"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (JGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (JGW_MYSQL_DSN, JGW_WEBHOOK_TIMEOUT_MS, ...)
	v.SetEnvPrefix("JGW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("internal.api_secret", "JGW_INTERNAL_API_SECRET", "INTERNAL_API_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
