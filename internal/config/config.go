// Package config loads server settings from the environment.
//
// Values come from real environment variables first; a .env file in the
// working directory fills in anything unset (godotenv never overrides).
// The result is checked with validator tags before the server starts.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is every setting the server reads at startup.
type Config struct {
	Port     int    `validate:"min=1,max=65535"`
	DBPath   string `validate:"required"`
	BaseURL  string `validate:"required,url"`
	LogLevel slog.Level

	JWTSecret string `validate:"required,min=16"`

	MinIO MinIOConfig
	SMTP  SMTPConfig

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string `validate:"omitempty,url"`

	ImageQuality      int  `validate:"min=1,max=100"`
	ImageMaxDimension uint `validate:"max=16384"`
}

// MinIOConfig is optional; an empty Endpoint selects the in-memory store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string `validate:"required_with=Endpoint"`
	SecretKey string `validate:"required_with=Endpoint"`
	Bucket    string `validate:"required_with=Endpoint"`
	UseSSL    bool
	PublicURL string `validate:"omitempty,url"`
}

// SMTPConfig is optional; an empty Host makes the server log emails instead
// of sending them.
type SMTPConfig struct {
	Host     string
	Port     int `validate:"omitempty,min=1,max=65535"`
	Username string
	Password string
	From     string `validate:"omitempty,email"`
}

// MinIOEnabled reports whether a bucket is configured.
func (c *Config) MinIOEnabled() bool { return c.MinIO.Endpoint != "" }

// SMTPEnabled reports whether outgoing mail is configured.
func (c *Config) SMTPEnabled() bool { return c.SMTP.Host != "" }

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads envFile (if it exists) into the process environment and then
// builds a Config from it. Pass "" to skip the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading %s: %w", envFile, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		Port:      e.integer("PORT", 8080),
		DBPath:    e.str("DB_PATH", "data/tripsync.db"),
		JWTSecret: getenv("JWT_SECRET"),
		MinIO: MinIOConfig{
			Endpoint:  getenv("MINIO_ENDPOINT"),
			AccessKey: getenv("MINIO_ACCESS_KEY"),
			SecretKey: getenv("MINIO_SECRET_KEY"),
			Bucket:    e.str("MINIO_BUCKET", "tripsync"),
			UseSSL:    e.boolean("MINIO_USE_SSL", false),
			PublicURL: getenv("MINIO_PUBLIC_URL"),
		},
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST"),
			Port:     e.integer("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME"),
			Password: getenv("SMTP_PASSWORD"),
			From:     getenv("MAIL_FROM"),
		},
		GitHubClientID:     getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: getenv("GITHUB_CLIENT_SECRET"),
		ImageQuality:       e.integer("IMAGE_QUALITY", 10),
		ImageMaxDimension:  uint(e.integer("IMAGE_MAX_DIMENSION", 2048)),
	}
	cfg.BaseURL = strings.TrimRight(e.str("BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port)), "/")
	cfg.GitHubCallbackURL = e.str("GITHUB_CALLBACK_URL", cfg.BaseURL+"/auth/github/callback")
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(e.str("LOG_LEVEL", "info"))); err != nil {
		e.fail("LOG_LEVEL", err)
	}

	if len(e.errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(e.errs...))
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", describe(err))
	}
	return cfg, nil
}

// env collects parse failures so every bad variable is reported at once.
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *env) boolean(key string, def bool) bool {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *env) fail(key string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
}

// describe rewrites validator errors in terms of struct fields, which map
// one-to-one onto the variables above.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
