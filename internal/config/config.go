package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"basis-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Venues   VenuesConfig   `mapstructure:"venues"`
	Backoff  BackoffConfig  `mapstructure:"backoff"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Refresh  RefreshConfig  `mapstructure:"refresh"`
	Health   HealthConfig   `mapstructure:"health"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN
// disables persistence: the alert gate then keeps its state in memory
// only.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// VenueConfig is one websocket endpoint plus its subscription topics.
type VenueConfig struct {
	URL    string   `mapstructure:"url"`
	Topics []string `mapstructure:"topics"`
}

// VenuesConfig covers both streaming legs.
type VenuesConfig struct {
	Spot              VenueConfig   `mapstructure:"spot"`
	Linear            VenueConfig   `mapstructure:"linear"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// BackoffConfig governs reconnect delays.
type BackoffConfig struct {
	Base     time.Duration `mapstructure:"base"`
	Factor   float64       `mapstructure:"factor"`
	Cap      time.Duration `mapstructure:"cap"`
	MaxSleep time.Duration `mapstructure:"max_sleep"`
}

// AlertingConfig defines thresholds, admission filters, and routing.
type AlertingConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	ThresholdPct   float64        `mapstructure:"threshold_pct"`
	MinPrice       float64        `mapstructure:"min_price"`
	MinVolumeUSD   float64        `mapstructure:"min_volume_usd"`
	Allow          []string       `mapstructure:"allow"`
	Deny           []string       `mapstructure:"deny"`
	Cooldown       time.Duration  `mapstructure:"cooldown"`
	SuppressEpsPct float64        `mapstructure:"suppress_eps_pct"`
	SuppressWindow time.Duration  `mapstructure:"suppress_window"`
	LocalCooldown  time.Duration  `mapstructure:"local_cooldown"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the outbound Telegram channel.
type TelegramConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      string        `mapstructure:"chat_id"`
	APIBase     string        `mapstructure:"api_base"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// RefreshConfig drives the periodic REST volume refresh and the
// candidate scan.
type RefreshConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	RESTBaseURL  string        `mapstructure:"rest_base_url"`
	Categories   []string      `mapstructure:"categories"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	ScanTop      int           `mapstructure:"scan_top"`
}

// HealthConfig configures the status HTTP endpoint. An empty address
// disables it.
type HealthConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BASISWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "basiswatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("venues.spot.url", "wss://stream.bybit.com/v5/public/spot")
	v.SetDefault("venues.spot.topics", []string{"tickers.BTCUSDT"})
	v.SetDefault("venues.linear.url", "wss://stream.bybit.com/v5/public/linear")
	v.SetDefault("venues.linear.topics", []string{"tickers.BTCUSDT"})
	v.SetDefault("venues.handshake_timeout", "10s")
	v.SetDefault("venues.heartbeat_interval", "20s")

	v.SetDefault("backoff.base", "1s")
	v.SetDefault("backoff.factor", 2.0)
	v.SetDefault("backoff.cap", "30s")
	v.SetDefault("backoff.max_sleep", "60s")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.threshold_pct", 0.5)
	v.SetDefault("alerting.min_price", 0.0)
	v.SetDefault("alerting.min_volume_usd", 0.0)
	v.SetDefault("alerting.cooldown", "5m")
	v.SetDefault("alerting.suppress_eps_pct", 0.2)
	v.SetDefault("alerting.suppress_window", "15m")
	v.SetDefault("alerting.local_cooldown", "1m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.min_interval", "3s")

	v.SetDefault("refresh.interval", "5m")
	v.SetDefault("refresh.rest_base_url", "https://api.bybit.com")
	v.SetDefault("refresh.categories", []string{"spot", "linear"})
	v.SetDefault("refresh.scan_interval", "1m")
	v.SetDefault("refresh.scan_top", 10)

	v.SetDefault("health.listen_addr", "")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// Misconfiguration of a required collaborator is the only acceptable
// process-fatal condition, so it surfaces here, once, at load time.
func (c *Config) Validate() error {
	if c.Backoff.Base <= 0 {
		return fmt.Errorf("backoff.base must be greater than zero")
	}
	if c.Backoff.Factor <= 0 {
		return fmt.Errorf("backoff.factor must be greater than zero")
	}
	if c.Backoff.Cap <= 0 {
		return fmt.Errorf("backoff.cap must be greater than zero")
	}
	if c.Backoff.MaxSleep < c.Backoff.Cap {
		return fmt.Errorf("backoff.max_sleep cannot be below backoff.cap")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval must be greater than zero")
	}
	if c.Refresh.ScanInterval <= 0 {
		return fmt.Errorf("refresh.scan_interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if len(c.Venues.Spot.Topics) == 0 || len(c.Venues.Linear.Topics) == 0 {
		return fmt.Errorf("venues.spot.topics and venues.linear.topics must be non-empty")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
