// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/chatlink/oidc/internal/strutils"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Provider provides integration with an OIDC provider using the typical
// 3-legged OIDC authorization code flow (with nonce and PKCE).
type Provider struct {
	config      *Config
	provider    *oidc.Provider
	client      *http.Client
	userInfoURL string

	mu sync.Mutex

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates and initializes a Provider. Initializing the provider
// includes making an http request to the provider's issuer for discovery; the
// discovered metadata is cached for the life of the Provider.
//
// The Config is copied, so changes made to it after NewProvider returns have
// no effect.
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	// initializing the Provider with it's background ctx/cancel will
	// allow us to use p.Done() to release any resources when returning errors
	// from this function.
	p := &Provider{
		config:              c.clone(),
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := p.config.HTTPClient()
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	p.client = client

	provider, err := oidc.NewProvider(HTTPClientContext(p.backgroundCtx, client), p.config.Issuer) // makes http req to issuer for discovery
	if err != nil {
		p.Done() // release the backgroundCtxCancel resources
		// we don't know what's causing the problem, so we won't classify the
		// error
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, err)
	}
	p.provider = provider

	var discovered struct {
		UserInfoURL string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&discovered); err != nil {
		p.Done()
		return nil, fmt.Errorf("%s: unable to read discovery document: %w", op, err)
	}
	p.userInfoURL = discovered.UserInfoURL

	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	// checking for nil here prevents a panic when developers neglect to check
	// the for an error before deferring a call to p.Done():
	// p, err := NewProvider(...)
	// defer p.Done()
	// if err != nil { ... }
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// oauth2Config returns the oauth2 configuration for the provider.
func (p *Provider) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  p.config.RedirectURL,
		Endpoint:     p.provider.Endpoint(),
		Scopes:       p.config.Scopes,
	}
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with the provider. The URL is deterministic for a
// given Request and set of options.
//
// Supported options:
//   - WithUILocales
func (p *Provider) AuthURL(ctx context.Context, r Request, opt ...Option) (string, error) {
	const op = "Provider.AuthURL"
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() == "" {
		return "", fmt.Errorf("%s: request state is empty: %w", op, ErrInvalidParameter)
	}
	if r.Nonce() == "" {
		return "", fmt.Errorf("%s: request nonce is empty: %w", op, ErrInvalidParameter)
	}
	if r.State() == r.Nonce() {
		return "", fmt.Errorf("%s: request state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	}
	opts := getAuthURLOpts(opt...)

	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(r.Nonce()),
	}
	if v := r.PKCEVerifier(); v != "" {
		authCodeOpts = append(authCodeOpts, oauth2.S256ChallengeOption(v))
	}
	if len(opts.withUILocales) > 0 {
		locales := make([]string, 0, len(opts.withUILocales))
		for _, l := range opts.withUILocales {
			locales = append(locales, l.String())
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(locales, " ")))
	}
	return p.oauth2Config().AuthCodeURL(r.State(), authCodeOpts...), nil
}

// Exchange will request a token from the oidc token endpoint, using the
// authorizationCode and authorizationState it received in an earlier
// successful oidc authentication response.
//
// It will also validate the authorizationState it receives against the
// existing Request for the user's oidc authentication flow, and verify the
// returned id_token (signature, issuer, audience, nonce and time claims with
// the configured clock skew leeway).
func (p *Provider) Exchange(ctx context.Context, r Request, authorizationState string, authorizationCode string) (*Token, error) {
	const op = "Provider.Exchange"
	if p.config == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if r == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.State() != authorizationState {
		return nil, fmt.Errorf("%s: authentication request state and authorization state are not equal: %w", op, ErrResponseStateInvalid)
	}
	if authorizationCode == "" {
		return nil, fmt.Errorf("%s: authorization code is empty: %w", op, ErrInvalidParameter)
	}

	var exchangeOpts []oauth2.AuthCodeOption
	if v := r.PKCEVerifier(); v != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(v))
	}
	oauth2Token, err := p.oauth2Config().Exchange(HTTPClientContext(ctx, p.client), authorizationCode, exchangeOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %s: %w", op, err, ErrExchangeFailed)
	}

	idToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIDToken)
	}
	if err := p.VerifyIDToken(ctx, IDToken(idToken), r.Nonce()); err != nil {
		return nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	t, err := NewToken(IDToken(idToken), oauth2Token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create new id_token: %w", op, err)
	}
	return t, nil
}

// VerifyIDToken will verify the inbound IDToken. It verifies it's been signed
// by the provider, it validates the nonce, and performs any additional checks
// depending on the provider's config (audiences, clock skew leeway, etc).
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIDToken(ctx context.Context, t IDToken, nonce string) error {
	const op = "Provider.VerifyIDToken"
	if t == "" {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if nonce == "" {
		return fmt.Errorf("%s: nonce is empty: %w", op, ErrInvalidParameter)
	}
	algs := make([]string, 0, len(p.config.SupportedSigningAlgs))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	// time based claims are checked below with the configured leeway.
	verifier := p.provider.Verifier(&oidc.Config{
		ClientID:             p.config.ClientID,
		SupportedSigningAlgs: algs,
		SkipExpiryCheck:      true,
		Now:                  p.config.Now,
	})

	oidcIDToken, err := verifier.Verify(HTTPClientContext(ctx, p.client), string(t))
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, ErrIDTokenVerificationFailed)
	}

	if oidcIDToken.Nonce != nonce {
		return fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}

	if len(p.config.Audiences) > 0 {
		found := false
		for _, v := range p.config.Audiences {
			if strutils.StrListContains(oidcIDToken.Audience, v) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrInvalidAudience)
		}
	}

	if err := p.verifyTimeClaims(t); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// verifyTimeClaims checks exp, nbf and iat against the provider's clock with
// the configured leeway. The signature must already be verified.
func (p *Provider) verifyTimeClaims(t IDToken) error {
	const op = "Provider.verifyTimeClaims"
	parsed, err := jwt.ParseSigned(string(t))
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, ErrMalformedToken)
	}
	var claims jwt.Claims
	if err := parsed.UnsafeClaimsWithoutVerification(&claims); err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, ErrMalformedToken)
	}
	if claims.Expiry == nil {
		return fmt.Errorf("%s: id_token has no exp claim: %w", op, ErrIDTokenVerificationFailed)
	}
	if err := claims.ValidateWithLeeway(jwt.Expected{Time: p.config.Now()}, p.config.ClockSkewLeeway); err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, ErrExpiredToken)
	}
	return nil
}

// UserInfo gets the UserInfo claims from the provider using the Token's
// access_token and returns the user's Identity. The user info subject must
// match the id_token subject.  If the provider has no userinfo endpoint, the
// Identity is built from the id_token's claims.
func (p *Provider) UserInfo(ctx context.Context, t *Token) (*Identity, error) {
	const op = "Provider.UserInfo"
	if t == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	var fromIDToken Identity
	if err := t.IDToken().Claims(&fromIDToken); err != nil {
		return nil, fmt.Errorf("%s: unable to read id_token claims: %w", op, err)
	}
	if p.userInfoURL == "" {
		return fromIDToken.validate(op)
	}
	tokenSource := t.StaticTokenSource()
	if tokenSource == nil || t.AccessToken() == "" {
		return nil, fmt.Errorf("%s: token has no access_token: %w", op, ErrInvalidParameter)
	}

	userinfo, err := p.provider.UserInfo(HTTPClientContext(ctx, p.client), tokenSource)
	if err != nil {
		return nil, fmt.Errorf("%s: provider UserInfo request failed: %s: %w", op, err, ErrUserInfoFailed)
	}
	var id Identity
	if err := userinfo.Claims(&id); err != nil {
		return nil, fmt.Errorf("%s: failed to get UserInfo claims: %s: %w", op, err, ErrUserInfoFailed)
	}
	// See: https://openid.net/specs/openid-connect-core-1_0.html#UserInfoResponse
	if id.Subject != fromIDToken.Subject {
		return nil, fmt.Errorf("%s: user info subject does not match id_token subject: %w", op, ErrInvalidSubject)
	}
	id.merge(fromIDToken)
	return id.validate(op)
}

// authURLOptions is the set of available options for Provider.AuthURL
type authURLOptions struct {
	withUILocales []language.Tag
}

func authURLDefaults() authURLOptions {
	return authURLOptions{}
}

func getAuthURLOpts(opt ...Option) authURLOptions {
	opts := authURLDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithUILocales provides the end-user's preferred languages for the
// provider's user interface, sent as the "ui_locales" parameter. Undetermined
// tags are skipped.
//
// Valid for: Provider.AuthURL
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*authURLOptions); ok {
			for _, l := range locales {
				if l == language.Und {
					continue
				}
				o.withUILocales = append(o.withUILocales, l)
			}
		}
	}
}
