// Package config loads ~/.chatsync/config.toml, applies .env and CHATSYNC_*
// environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultProfile string       `toml:"default_profile" validate:"omitempty,max=64"`
	Store          Store        `toml:"store"`
	Firebase       Firebase     `toml:"firebase"`
	Push           Push         `toml:"push"`
	Directory      Directory    `toml:"directory"`
	Relay          Relay        `toml:"relay"`
	Subscription   Subscription `toml:"subscription"`
	Admin          Admin        `toml:"admin"`
	Telemetry      Telemetry    `toml:"telemetry"`
	Log            Log          `toml:"log"`
	Client         Client       `toml:"client"`
}

type Store struct {
	Backend      string   `toml:"backend" validate:"oneof=sqlite firestore"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type Firebase struct {
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

type Push struct {
	Driver     string `toml:"driver" validate:"oneof=log fcm amqp"`
	AMQPURL    string `toml:"amqp_url" validate:"required_if=Driver amqp"`
	Exchange   string `toml:"exchange" validate:"required_if=Driver amqp"`
	RoutingKey string `toml:"routing_key"`
}

type Directory struct {
	RedisAddr string   `toml:"redis_addr" validate:"omitempty,hostname_port"`
	CacheTTL  Duration `toml:"cache_ttl"`
}

type Relay struct {
	Enabled      bool     `toml:"enabled"`
	PollInterval Duration `toml:"poll_interval"`
	BatchSize    int      `toml:"batch_size" validate:"min=1,max=1000"`
}

type Subscription struct {
	PollInterval Duration `toml:"poll_interval"`
	Buffer       int      `toml:"buffer" validate:"min=1"`
}

type Admin struct {
	Addr string `toml:"addr" validate:"omitempty,hostname_port"`
}

type Telemetry struct {
	OTLPEndpoint string `toml:"otlp_endpoint" validate:"omitempty,hostname_port"`
	ServiceName  string `toml:"service_name"`
}

type Log struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

type Client struct {
	Timezone string `toml:"timezone"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Store:        Store{Backend: "sqlite", WriteTimeout: Duration{5 * time.Second}},
		Push:         Push{Driver: "log", Exchange: "chatsync.push", RoutingKey: "push.message"},
		Directory:    Directory{CacheTTL: Duration{10 * time.Minute}},
		Relay:        Relay{Enabled: true, PollInterval: Duration{5 * time.Second}, BatchSize: 100},
		Subscription: Subscription{PollInterval: Duration{time.Second}, Buffer: 64},
		Admin:        Admin{Addr: "127.0.0.1:9464"},
		Telemetry:    Telemetry{ServiceName: "chatsyncd"},
		Log:          Log{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults. Returns an
// error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve builds the effective configuration: defaults, then the file at
// path if it exists, then envFile (ignored if missing), then CHATSYNC_*
// variables. The result is validated.
func Resolve(path, envFile string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"CHATSYNC_PROFILE":                   &c.DefaultProfile,
		"CHATSYNC_STORE_BACKEND":             &c.Store.Backend,
		"CHATSYNC_FIREBASE_PROJECT_ID":       &c.Firebase.ProjectID,
		"CHATSYNC_FIREBASE_CREDENTIALS_FILE": &c.Firebase.CredentialsFile,
		"CHATSYNC_PUSH_DRIVER":               &c.Push.Driver,
		"CHATSYNC_AMQP_URL":                  &c.Push.AMQPURL,
		"CHATSYNC_REDIS_ADDR":                &c.Directory.RedisAddr,
		"CHATSYNC_ADMIN_ADDR":                &c.Admin.Addr,
		"CHATSYNC_OTLP_ENDPOINT":             &c.Telemetry.OTLPEndpoint,
		"CHATSYNC_LOG_LEVEL":                 &c.Log.Level,
		"CHATSYNC_TIMEZONE":                  &c.Client.Timezone,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("CHATSYNC_WRITE_TIMEOUT"); ok {
		if err := c.Store.WriteTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("CHATSYNC_WRITE_TIMEOUT: %w", err)
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateConfig, Config{})
	return v
}

func validateConfig(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	needsFirebase := c.Store.Backend == "firestore" || c.Push.Driver == "fcm"
	if needsFirebase && c.Firebase.ProjectID == "" {
		sl.ReportError(c.Firebase.ProjectID, "Firebase.ProjectID", "ProjectID", "required_for_firebase", "")
	}
	durations := map[string]Duration{
		"WriteTimeout":      c.Store.WriteTimeout,
		"RelayPollInterval": c.Relay.PollInterval,
		"SubscriptionPoll":  c.Subscription.PollInterval,
	}
	for name, d := range durations {
		if d.Duration <= 0 {
			sl.ReportError(d, name, name, "positive", "")
		}
	}
	if c.Client.Timezone != "" {
		if _, err := time.LoadLocation(c.Client.Timezone); err != nil {
			sl.ReportError(c.Client.Timezone, "Client.Timezone", "Timezone", "timezone", "")
		}
	}
}

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location returns the configured client time zone, defaulting to local.
func (c *Config) Location() *time.Location {
	if c.Client.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Client.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
