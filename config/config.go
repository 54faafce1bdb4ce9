// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config reads chatlink's process-wide configuration from the
// environment. It is read once at startup.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/chatlink/csrf"
	"github.com/hashicorp/chatlink/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// CallbackPath is where the provider redirects after authentication.
const CallbackPath = "/oauth/callback"

// ErrInvalidConfig is returned when the configuration can't be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete chatlink configuration.
type Config struct {
	Server  Server  `envPrefix:"CHATLINK_"`
	OIDC    OIDC    `envPrefix:"OIDC_"`
	Discord Discord `envPrefix:"DISCORD_"`
}

// Server configures the http server and the linking flow.
type Server struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3000"`

	// BaseURL is the externally reachable URL of the http server. Login
	// URLs and the OIDC redirect URL are built from it.
	BaseURL string `env:"BASE_URL"`

	// Production marks cookies Secure and requires an https BaseURL.
	Production bool `env:"PRODUCTION"`

	// CookieSecret signs the CSRF cookies.
	CookieSecret string `env:"COOKIE_SECRET"`

	LinkTTL         time.Duration `env:"LINK_TTL" envDefault:"15m"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON"`
}

// OIDC configures the identity provider.
type OIDC struct {
	Issuer       string   `env:"ISSUER"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:"," envDefault:"profile"`
	SigningAlgs  []string `env:"SIGNING_ALGS" envSeparator:"," envDefault:"RS256"`

	// ProviderCA is read from the PEM file named by OIDC_PROVIDER_CA_FILE.
	ProviderCA string `env:"PROVIDER_CA_FILE,file"`

	ClockSkewLeeway time.Duration `env:"CLOCK_SKEW_LEEWAY" envDefault:"180s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

// Discord configures the Discord application.
type Discord struct {
	BotToken      string `env:"BOT_TOKEN"`
	ApplicationID string `env:"APPLICATION_ID"`

	// GuildID, when set, registers the command in one guild only.
	GuildID     string `env:"GUILD_ID"`
	CommandName string `env:"COMMAND_NAME" envDefault:"link"`

	RemoveCommandOnShutdown bool `env:"REMOVE_COMMAND_ON_SHUTDOWN"`
}

// Load reads and validates the configuration from the environment.
func Load() (*Config, error) {
	const op = "config.Load"
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrInvalidConfig)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	var result *multierror.Error
	invalid := func(format string, args ...interface{}) {
		result = multierror.Append(result, fmt.Errorf("%s: %s: %w", op, fmt.Sprintf(format, args...), ErrInvalidConfig))
	}

	switch u, err := url.Parse(c.Server.BaseURL); {
	case c.Server.BaseURL == "":
		invalid("CHATLINK_BASE_URL is required")
	case err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https"):
		invalid("CHATLINK_BASE_URL %q is not an absolute http(s) URL", c.Server.BaseURL)
	case c.Server.Production && u.Scheme != "https":
		invalid("CHATLINK_BASE_URL must use https in production")
	}
	if len(c.Server.CookieSecret) < csrf.MinKeySize {
		invalid("CHATLINK_COOKIE_SECRET must be at least %d bytes", csrf.MinKeySize)
	}
	if c.Server.LinkTTL <= 0 {
		invalid("CHATLINK_LINK_TTL must be positive")
	}
	if c.Server.DeliveryTimeout <= 0 {
		invalid("CHATLINK_DELIVERY_TIMEOUT must be positive")
	}
	if hclog.LevelFromString(c.Server.LogLevel) == hclog.NoLevel {
		invalid("CHATLINK_LOG_LEVEL %q is unknown", c.Server.LogLevel)
	}

	if c.OIDC.Issuer == "" {
		invalid("OIDC_ISSUER is required")
	}
	if c.OIDC.ClientID == "" {
		invalid("OIDC_CLIENT_ID is required")
	}
	if c.OIDC.ClientSecret == "" {
		invalid("OIDC_CLIENT_SECRET is required")
	}
	if c.OIDC.ClockSkewLeeway < 0 {
		invalid("OIDC_CLOCK_SKEW_LEEWAY must not be negative")
	}

	if c.Discord.BotToken == "" {
		invalid("DISCORD_BOT_TOKEN is required")
	}
	if c.Discord.ApplicationID == "" {
		invalid("DISCORD_APPLICATION_ID is required")
	}
	return result.ErrorOrNil()
}

// RedirectURL is the OIDC redirect URL registered with the provider.
func (c *Config) RedirectURL() string {
	return strings.TrimRight(c.Server.BaseURL, "/") + CallbackPath
}

// ProviderConfig builds the oidc.Config for the provider.
func (c *Config) ProviderConfig() (*oidc.Config, error) {
	const op = "Config.ProviderConfig"
	algs := make([]oidc.Alg, 0, len(c.OIDC.SigningAlgs))
	for _, a := range c.OIDC.SigningAlgs {
		algs = append(algs, oidc.Alg(strings.TrimSpace(a)))
	}
	pc, err := oidc.NewConfig(
		c.OIDC.Issuer,
		c.OIDC.ClientID,
		oidc.ClientSecret(c.OIDC.ClientSecret),
		algs,
		c.RedirectURL(),
		oidc.WithScopes(c.OIDC.Scopes...),
		oidc.WithProviderCA(c.OIDC.ProviderCA),
		oidc.WithClockSkewLeeway(c.OIDC.ClockSkewLeeway),
		oidc.WithRequestTimeout(c.OIDC.RequestTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pc, nil
}

// Logger builds the root logger.
func (c *Config) Logger(w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "chatlink",
		Level:      hclog.LevelFromString(c.Server.LogLevel),
		JSONFormat: c.Server.LogJSON,
		Output:     w,
	})
}
