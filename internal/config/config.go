// Package config provides configuration management using viper.
// It supports loading from YAML files, an optional .env file and
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"telegram-daily-spin/internal/wheel"
)

// ErrMissingToken is returned by Validate when no bot token is configured.
var ErrMissingToken = errors.New("bot token is required")

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Wheel     WheelConfig     `mapstructure:"wheel"`
	Spin      SpinConfig      `mapstructure:"spin"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Session   SessionConfig   `mapstructure:"session"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Prizes    PrizesConfig    `mapstructure:"prizes"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Claims    ClaimsConfig    `mapstructure:"claims"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token     string `mapstructure:"token"`
	WebAppURL string `mapstructure:"webapp_url"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	Migrate         bool          `mapstructure:"migrate"`
}

// HTTPConfig holds the web app API listener configuration.
type HTTPConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	InitDataMaxAge time.Duration `mapstructure:"init_data_max_age"`
}

// WheelConfig holds the strip geometry in pixels.
type WheelConfig struct {
	CellWidth      float64 `mapstructure:"cell_width"`
	Gap            float64 `mapstructure:"gap"`
	ContainerWidth float64 `mapstructure:"container_width"`
	Slots          int     `mapstructure:"slots"`
}

// Layout converts the section to carousel geometry.
func (w WheelConfig) Layout() wheel.Layout {
	return wheel.Layout{
		CellWidth:      w.CellWidth,
		Gap:            w.Gap,
		ContainerWidth: w.ContainerWidth,
		Slots:          w.Slots,
	}
}

// SpinConfig holds spin timing.
type SpinConfig struct {
	BaseDistance  float64       `mapstructure:"base_distance"`
	Jitter        float64       `mapstructure:"jitter"`
	Deceleration  time.Duration `mapstructure:"deceleration"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
	Snap          time.Duration `mapstructure:"snap"`
	RevealDelay   time.Duration `mapstructure:"reveal_delay"`
	RevealTimeout time.Duration `mapstructure:"reveal_timeout"`
	IdleSpeed     float64       `mapstructure:"idle_speed"`
}

// SyncConfig holds balance reconciliation settings.
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SessionConfig holds per-user wheel session settings.
type SessionConfig struct {
	FrameInterval time.Duration `mapstructure:"frame_interval"`
	IdleTTL       time.Duration `mapstructure:"idle_ttl"`
	LockTimeout   time.Duration `mapstructure:"lock_timeout"`
}

// AssetsConfig points at the animation asset directory.
type AssetsConfig struct {
	Dir string `mapstructure:"dir"`
}

// PrizesConfig points at an optional prize table file.
type PrizesConfig struct {
	File string `mapstructure:"file"`
}

// StorageConfig holds local key-value storage settings.
type StorageConfig struct {
	AppName string `mapstructure:"app_name"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// ClaimsConfig holds where externally claimed collectibles are sent.
type ClaimsConfig struct {
	ChatID  int64         `mapstructure:"chat_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WalletConfig holds new-account settings.
type WalletConfig struct {
	InitialBalance int64 `mapstructure:"initial_balance"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// IsAdmin reports whether userID may use admin commands.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Admin.IDs, userID)
}

// IsChatAllowed reports whether the bot answers in chatID. An empty
// whitelist allows every chat.
func (c *Config) IsChatAllowed(chatID int64) bool {
	return len(c.Whitelist.Chats) == 0 || slices.Contains(c.Whitelist.Chats, chatID)
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return ErrMissingToken
	}
	if c.Wheel.Slots <= 0 {
		return fmt.Errorf("wheel.slots must be positive, got %d", c.Wheel.Slots)
	}
	if err := c.Wheel.Layout().Validate(); err != nil {
		return fmt.Errorf("wheel: %w", err)
	}
	return nil
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in configPath, "." and "./config". A .env file
// in the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// e.g. BOT_TOKEN, DATABASE_HOST, SPIN_DECELERATION
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Bot token has no default; viper only maps env vars for known keys.
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.webapp_url", "")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "spin")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "spin")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.migrate", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.init_data_max_age", "24h")

	v.SetDefault("wheel.cell_width", 120)
	v.SetDefault("wheel.gap", 48)
	v.SetDefault("wheel.container_width", 390)
	v.SetDefault("wheel.slots", 9)

	v.SetDefault("spin.base_distance", 5000)
	v.SetDefault("spin.jitter", 600)
	v.SetDefault("spin.deceleration", "4.5s")
	v.SetDefault("spin.settle_delay", "100ms")
	v.SetDefault("spin.snap", "400ms")
	v.SetDefault("spin.reveal_delay", "200ms")
	v.SetDefault("spin.reveal_timeout", "1m")
	v.SetDefault("spin.idle_speed", 60)

	v.SetDefault("sync.interval", "30s")
	v.SetDefault("sync.timeout", "10s")

	v.SetDefault("session.frame_interval", "16ms")
	v.SetDefault("session.idle_ttl", "15m")
	v.SetDefault("session.lock_timeout", "5s")

	v.SetDefault("assets.dir", "assets")
	v.SetDefault("prizes.file", "")
	v.SetDefault("storage.app_name", "telegram_daily_spin")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("claims.chat_id", 0)
	v.SetDefault("claims.timeout", "10s")

	v.SetDefault("wallet.initial_balance", 0)
}
