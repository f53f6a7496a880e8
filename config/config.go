// Package config loads settings from config.yaml with environment overrides.
package config

import (
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/ivandardi/StreamNotificationBot/logging"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"os"
	"time"
)

const DefaultPath = "./config.yaml"

var (
	ErrNoProviders = errors.New("no streaming service is enabled")
	ErrNoHTTPToken = errors.New("the http api needs a bearer token")
)

type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      logging.Config `yaml:"log"`
	Poll     PollConfig     `yaml:"poll"`
	Picarto  PicartoConfig  `yaml:"picarto"`
	Twitch   TwitchConfig   `yaml:"twitch"`
	Youtube  YoutubeConfig  `yaml:"youtube"`
}

type TelegramConfig struct {
	// Empty disables the bot.
	Token         string        `yaml:"token" env:"TELEGRAM_TOKEN"`
	PollTimeout   time.Duration `yaml:"poll_timeout" env:"TELEGRAM_POLL_TIMEOUT" env-default:"10s"`
	RatePerSecond float64       `yaml:"rate_per_second" env:"TELEGRAM_RATE_PER_SECOND" env-default:"25"`
}

type DatabaseConfig struct {
	Driver  string        `yaml:"driver" env:"DB_DRIVER" env-default:"sqlite"`
	DSN     string        `yaml:"dsn" env:"DB_DSN" env-default:"file:streams.db"`
	Timeout time.Duration `yaml:"timeout" env:"DB_TIMEOUT" env-default:"1m"`
	Debug   bool          `yaml:"debug" env:"DB_DEBUG"`
}

type RedisConfig struct {
	// Empty disables the lookup cache and the poll lock.
	Address     string        `yaml:"address" env:"REDIS_ADDRESS"`
	LookupTTL   time.Duration `yaml:"lookup_ttl" env:"REDIS_LOOKUP_TTL" env-default:"24h"`
	NegativeTTL time.Duration `yaml:"negative_ttl" env:"REDIS_NEGATIVE_TTL" env-default:"5m"`
}

type HTTPConfig struct {
	// Empty disables the HTTP API.
	Address string `yaml:"address" env:"HTTP_ADDRESS"`
	// Bearer token every API call must carry.
	Token string `yaml:"token" env:"HTTP_TOKEN"`
}

type PollConfig struct {
	TickTimeout   time.Duration `yaml:"tick_timeout" env:"POLL_TICK_TIMEOUT" env-default:"30s"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" env:"POLL_SHUTDOWN_GRACE" env-default:"5s"`
	// DeliveryTimeout bounds each single notification, independently of TickTimeout.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout" env:"POLL_DELIVERY_TIMEOUT" env-default:"10s"`
}

type PicartoConfig struct {
	Disabled bool          `yaml:"disabled" env:"PICARTO_DISABLED"`
	BaseURL  string        `yaml:"base_url" env:"PICARTO_BASE_URL"`
	Interval time.Duration `yaml:"interval" env:"PICARTO_INTERVAL" env-default:"60s"`
}

type TwitchConfig struct {
	ClientId     string        `yaml:"client_id" env:"TWITCH_CLIENT_ID"`
	ClientSecret string        `yaml:"client_secret" env:"TWITCH_CLIENT_SECRET"`
	Interval     time.Duration `yaml:"interval" env:"TWITCH_INTERVAL" env-default:"60s"`
}

func (c TwitchConfig) Enabled() bool {
	return c.ClientId != "" && c.ClientSecret != ""
}

type YoutubeConfig struct {
	APIKey   string        `yaml:"api_key" env:"YT_API_KEY"`
	Interval time.Duration `yaml:"interval" env:"YOUTUBE_INTERVAL" env-default:"5m"`
}

func (c YoutubeConfig) Enabled() bool {
	return c.APIKey != ""
}

// Load reads .env (if any), then path (if it exists), then the environment.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	var c Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &c); err != nil {
			return Config{}, errors.Wrapf(err, "unable to read config file %v", path)
		}
	} else if err := cleanenv.ReadEnv(&c); err != nil {
		return Config{}, errors.Wrap(err, "unable to read config from environment")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Picarto.Disabled && !c.Twitch.Enabled() && !c.Youtube.Enabled() {
		return ErrNoProviders
	}
	if c.Telegram.Token == "" && c.HTTP.Address == "" {
		return errors.New("neither telegram nor http is configured, nobody could subscribe")
	}
	if c.HTTP.Address != "" && c.HTTP.Token == "" {
		return ErrNoHTTPToken
	}
	for name, interval := range map[string]time.Duration{
		"picarto": c.Picarto.Interval,
		"twitch":  c.Twitch.Interval,
		"youtube": c.Youtube.Interval,
	} {
		if interval < time.Second {
			return errors.Errorf("%v interval %v is too short", name, interval)
		}
	}
	return nil
}

// Usage describes every environment variable.
func Usage() string {
	description, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return err.Error()
	}
	return description
}
