// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/chatlink/oidc/internal/strutils"
	sdkHttp "github.com/hashicorp/chatlink/sdk/http"
	"github.com/hashicorp/go-multierror"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultClockSkewLeeway is the tolerance applied to the exp, iat and nbf
// claims of an id_token. Without it, minor clock drift between this service
// and the provider rejects valid tokens.
const DefaultClockSkewLeeway = 180 * time.Second

// DefaultRequestTimeout bounds every http request made to the provider.
const DefaultRequestTimeout = 30 * time.Second

// Config represents the configuration for an OIDC provider used with the
// authorization code flow. A Provider copies its Config when created, so a
// Config can't be changed underneath a running Provider.
type Config struct {
	// ClientID is the relying party id
	ClientID string

	// ClientSecret is the relying party secret
	ClientSecret ClientSecret

	// Scopes is a list of oidc scopes to request of the provider. The
	// required "openid" scope is always first in the list.
	Scopes []string

	// Issuer is a case-sensitive URL string using the https scheme that
	// contains scheme, host, and optionally, port number and path components
	// and no query or fragment components.
	Issuer string

	// SupportedSigningAlgs is a list of supported signing algorithms. List of
	// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512,
	// PS256, PS384, PS512
	SupportedSigningAlgs []Alg

	// RedirectURL is the callback URL the provider redirects to after
	// authentication.
	RedirectURL string

	// Audiences is an optional list of case-sensitive strings used when
	// verifying an id_token's "aud" claim (in addition to the client id)
	Audiences []string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// ClockSkewLeeway is the tolerance used when validating an id_token's time
	// based claims.
	ClockSkewLeeway time.Duration

	// RequestTimeout bounds each http request to the provider. Zero means no
	// client side bound beyond the caller's context.
	RequestTimeout time.Duration

	// NowFunc is an optional function that returns the current time
	NowFunc func() time.Time
}

// NewConfig composes a new config for a provider.
//
// Supported options:
//   - WithProviderCA
//   - WithScopes
//   - WithAudiences
//   - WithClockSkewLeeway
//   - WithRequestTimeout
//   - WithNow
func NewConfig(issuer string, clientID string, clientSecret ClientSecret, supported []Alg, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Issuer:               issuer,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		SupportedSigningAlgs: supported,
		RedirectURL:          redirectURL,
		Scopes:               opts.withScopes,
		Audiences:            opts.withAudiences,
		ProviderCA:           opts.withProviderCA,
		ClockSkewLeeway:      opts.withClockSkewLeeway,
		RequestTimeout:       opts.withRequestTimeout,
		NowFunc:              opts.withNowFunc,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration. Among other validations, it verifies
// the issuer is not empty, but it doesn't verify the Issuer is discoverable via
// an http request. SupportedSigningAlgs is validated against the list of
// currently supported algs: RS256, RS384, RS512, ES256, ES384, ES512, PS256,
// PS384, PS512. Every problem found is reported.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter))
	} else if _, err := url.Parse(c.RedirectURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: redirect URL %q is invalid: %w", op, c.RedirectURL, ErrInvalidParameter))
	}
	switch {
	case c.Issuer == "":
		result = multierror.Append(result, fmt.Errorf("%s: discovery URL is empty: %w", op, ErrInvalidParameter))
	default:
		u, err := url.Parse(c.Issuer)
		switch {
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("%s: issuer %q is invalid (%s): %w", op, c.Issuer, err, ErrInvalidIssuer))
		case !strutils.StrListContains([]string{"https", "http"}, u.Scheme):
			result = multierror.Append(result, fmt.Errorf("%s: issuer %q schema is not http or https: %w", op, c.Issuer, ErrInvalidIssuer))
		}
	}
	if len(c.SupportedSigningAlgs) == 0 {
		result = multierror.Append(result, fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("%s: unsupported algorithm %q: %w", op, a, ErrInvalidParameter))
		}
	}
	if c.ClockSkewLeeway < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: clock skew leeway is negative: %w", op, ErrInvalidParameter))
	}
	if c.RequestTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: request timeout is negative: %w", op, ErrInvalidParameter))
	}
	if c.ProviderCA != "" {
		if _, err := sdkHttp.NewClient(c.ProviderCA, 0); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", op, ErrInvalidCACert))
		}
	}
	return result.ErrorOrNil()
}

// Now will return the current time which can be overridden by the NowFunc
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now() // fallback to this default
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkHttp.NewClient(c.ProviderCA, c.RequestTimeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// clone returns a deep copy of the config.
func (c *Config) clone() *Config {
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	cp.Audiences = append([]string(nil), c.Audiences...)
	cp.SupportedSigningAlgs = append([]Alg(nil), c.SupportedSigningAlgs...)
	return &cp
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options
type configOptions struct {
	withScopes          []string
	withAudiences       []string
	withProviderCA      string
	withClockSkewLeeway time.Duration
	withRequestTimeout  time.Duration
	withNowFunc         func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{
		withScopes:          []string{oidc.ScopeOpenID},
		withClockSkewLeeway: DefaultClockSkewLeeway,
		withRequestTimeout:  DefaultRequestTimeout,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithScopes provides an optional list of scopes. The "openid" scope is
// always requested and duplicates are removed.
//
// Valid for: Config
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = strutils.RemoveDuplicatesStable(append([]string{oidc.ScopeOpenID}, scopes...), false)
		}
	}
}

// WithAudiences provides an optional list of audiences.
//
// Valid for: Config
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = append(o.withAudiences, auds...)
		}
	}
}

// WithProviderCA provides an optional CA certs (PEM encoded) for the
// provider's config.
//
// Valid for: Config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithClockSkewLeeway overrides DefaultClockSkewLeeway.
//
// Valid for: Config
func WithClockSkewLeeway(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClockSkewLeeway = d
		}
	}
}

// WithRequestTimeout overrides DefaultRequestTimeout.
//
// Valid for: Config
func WithRequestTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRequestTimeout = d
		}
	}
}
