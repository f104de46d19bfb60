package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const defaultOffset = 3 * time.Hour

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token          string        `yaml:"token"`
	Mode           string        `yaml:"mode"`         // polling | noop
	Workers        int           `yaml:"workers"`      // update workers, sharded by user
	PollTimeout    int           `yaml:"poll_timeout"` // long-poll seconds
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Name           string        `yaml:"name"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"` // sqlite | postgres
	SQLitePath string `yaml:"sqlite_path"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL             string        `yaml:"url"` // empty disables rate limiting and the instance lock
	Password        string        `yaml:"password"`
	DB              int           `yaml:"db"`
	RateLimit       int           `yaml:"rate_limit"`
	RateWindow      time.Duration `yaml:"rate_window"`
	InstanceLockTTL time.Duration `yaml:"instance_lock_ttl"`
}

type ReminderConfig struct {
	ServerUTCOffset time.Duration `yaml:"server_utc_offset"`
	UserOffset      time.Duration `yaml:"user_offset"`
	DefaultActive   bool          `yaml:"default_active"`
	ContentTimeout  time.Duration `yaml:"content_timeout"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	Language        string        `yaml:"language"`
	OneOffWorkers   int           `yaml:"one_off_workers"`
}

type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Reminder ReminderConfig `yaml:"reminder"`

	Runtime RuntimeConfig `yaml:"-"`
}

// envOverlay lists the variables that override the YAML file (deploy platforms set these).
type envOverlay struct {
	BotToken    string `envconfig:"BOT_TOKEN"`
	Port        int    `envconfig:"PORT"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	RedisURL    string `envconfig:"REDIS_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	StoreDriver string `envconfig:"STORE_DRIVER"`
	SQLitePath  string `envconfig:"DB_PATH"`
}

// LoadConfig reads the YAML file at path (a missing file is allowed), loads .env into the
// environment, overlays environment variables, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	// offsets are seeded before decoding so an explicit 0s in the file survives
	cfg := Config{Reminder: ReminderConfig{
		ServerUTCOffset: defaultOffset,
		UserOffset:      defaultOffset,
	}}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// environment-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	var ov envOverlay
	if err := envconfig.Process("", &ov); err != nil {
		return fmt.Errorf("env config: %w", err)
	}
	if ov.BotToken != "" {
		cfg.Bot.Token = ov.BotToken
	}
	if ov.Port != 0 {
		cfg.HTTP.Port = ov.Port
	}
	if ov.DatabaseURL != "" {
		cfg.Database.URL = ov.DatabaseURL
	}
	if ov.RedisURL != "" {
		cfg.Redis.URL = ov.RedisURL
	}
	if ov.LogLevel != "" {
		cfg.Log.Level = ov.LogLevel
	}
	if ov.StoreDriver != "" {
		cfg.Store.Driver = ov.StoreDriver
	}
	if ov.SQLitePath != "" {
		cfg.Store.SQLitePath = ov.SQLitePath
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Mode == "" {
		cfg.Bot.Mode = "polling"
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Bot.PollTimeout <= 0 {
		cfg.Bot.PollTimeout = 25
	}
	if cfg.Bot.RequestTimeout <= 0 {
		cfg.Bot.RequestTimeout = 30 * time.Second
	}
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = "Medication Reminder Bot"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 10000
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "./data/reminder_bot.db"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.RateLimit <= 0 {
		cfg.Redis.RateLimit = 20
	}
	if cfg.Redis.RateWindow <= 0 {
		cfg.Redis.RateWindow = time.Minute
	}
	if cfg.Redis.InstanceLockTTL <= 0 {
		cfg.Redis.InstanceLockTTL = 30 * time.Second
	}
	if cfg.Reminder.ContentTimeout <= 0 {
		cfg.Reminder.ContentTimeout = 10 * time.Second
	}
	if cfg.Reminder.SendTimeout <= 0 {
		cfg.Reminder.SendTimeout = 30 * time.Second
	}
	if cfg.Reminder.Language == "" {
		cfg.Reminder.Language = "ru"
	}
	if cfg.Reminder.OneOffWorkers <= 0 {
		cfg.Reminder.OneOffWorkers = 2
	}
}

// Validate performs minimal validation.
func (c *Config) Validate() error {
	if c.Bot.Token == "" && c.Bot.Mode != "noop" {
		return errors.New("bot.token is required (or set BOT_TOKEN)")
	}
	switch c.Bot.Mode {
	case "polling", "noop":
	default:
		return fmt.Errorf("bot.mode %q is not supported", c.Bot.Mode)
	}
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres store")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Reminder.ServerUTCOffset%time.Minute != 0 || c.Reminder.UserOffset%time.Minute != 0 {
		return errors.New("reminder offsets must be whole minutes")
	}
	return nil
}

// ServerLocation is the fixed zone reminder slots are stored in.
func (c *Config) ServerLocation() *time.Location {
	return time.FixedZone("server", int(c.Reminder.ServerUTCOffset/time.Second))
}
