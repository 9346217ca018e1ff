package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Cron   CronConfig   `mapstructure:"cron"`

	Providers  ProvidersConfig       `mapstructure:"providers"`
	StatusSync StatusSyncConfig      `mapstructure:"status_sync"`
	BulkCheck  BulkCheckConfig       `mapstructure:"bulk_check"`
	Probe      DelegationProbeConfig `mapstructure:"delegation_probe"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CronConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	StatusSync string `mapstructure:"status_sync"`
}

// ProviderConfig holds one panel's endpoint. Status checks get a short
// timeout because they are polled repeatedly; order placement (handled
// elsewhere) would use a longer one.
type ProviderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	StatusTimeout time.Duration `mapstructure:"status_timeout"`
}

type ProvidersConfig struct {
	Smmstone  ProviderConfig `mapstructure:"smmstone"`
	Panelzone ProviderConfig `mapstructure:"panelzone"`
	Boostline ProviderConfig `mapstructure:"boostline"`
	Primesmm  ProviderConfig `mapstructure:"primesmm"`
}

type StatusSyncConfig struct {
	// MinInterval is the per-order recheck floor; forced rechecks pass 0
	// explicitly to disable the recency check.
	MinInterval time.Duration `mapstructure:"min_interval"`
	WindowSize  int           `mapstructure:"window_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BatchLimit  int           `mapstructure:"batch_limit"`
}

type BulkCheckConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
	// MinOrders is the eligible-set size at which delegation is preferred
	// over in-process polling.
	MinOrders int `mapstructure:"min_orders"`
}

type DelegationProbeConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.status_sync", "@every 5m")

	v.SetDefault("providers.smmstone.base_url", "https://smmstone.example.com")
	v.SetDefault("providers.smmstone.status_timeout", "10s")
	v.SetDefault("providers.panelzone.base_url", "https://panelzone.example.com")
	v.SetDefault("providers.panelzone.status_timeout", "10s")
	v.SetDefault("providers.boostline.base_url", "https://boostline.example.com")
	v.SetDefault("providers.boostline.status_timeout", "10s")
	v.SetDefault("providers.primesmm.base_url", "https://primesmm.example.com")
	v.SetDefault("providers.primesmm.status_timeout", "10s")

	v.SetDefault("status_sync.min_interval", "5m")
	v.SetDefault("status_sync.window_size", 5)
	v.SetDefault("status_sync.max_attempts", 3)
	v.SetDefault("status_sync.batch_limit", 500)

	v.SetDefault("bulk_check.base_url", "")
	v.SetDefault("bulk_check.timeout", "30s")
	v.SetDefault("bulk_check.batch_size", 50)
	v.SetDefault("bulk_check.min_orders", 20)

	v.SetDefault("delegation_probe.interval", "1m")
	v.SetDefault("delegation_probe.timeout", "5s")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
