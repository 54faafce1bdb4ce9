// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package csrf binds an OIDC authentication attempt to the browser that
// started it. The state, nonce and PKCE verifier of an attempt are written as
// signed, http-only cookies when the user is sent to the provider and checked
// when the provider redirects back.
package csrf

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/chatlink/oidc"
	"github.com/hashicorp/chatlink/sdk/id"
	"golang.org/x/oauth2"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Cookie names.
const (
	StateCookie    = "chatlink_state"
	NonceCookie    = "chatlink_nonce"
	VerifierCookie = "chatlink_verifier"
)

const (
	// MinKeySize is the minimum length of a cookie signing key.
	MinKeySize = 32

	// DefaultMaxAge is how long an issued session stays valid.
	DefaultMaxAge = 10 * time.Minute
)

var (
	// ErrMismatch is returned by Verify for any cookie that is missing,
	// unsigned, tampered with, expired, or doesn't match the callback state.
	ErrMismatch = errors.New("csrf mismatch")

	// ErrInvalidKey is returned when the signing key is too short.
	ErrInvalidKey = errors.New("invalid csrf signing key")
)

// Session holds the per-attempt values carried in cookies. It implements
// oidc.Request.
type Session struct {
	state    string
	nonce    string
	verifier string
}

var _ oidc.Request = (*Session)(nil)

// State is the OIDC state, which is the pending link's token.
func (s *Session) State() string { return s.state }

// Nonce is bound to the id_token.
func (s *Session) Nonce() string { return s.nonce }

// PKCEVerifier is presented during the code exchange.
func (s *Session) PKCEVerifier() string { return s.verifier }

// Guard issues and verifies sessions.
type Guard struct {
	key    []byte
	signer jose.Signer
	secure bool
	maxAge time.Duration
	path   string
	now    func() time.Time
}

// NewGuard creates a Guard which signs cookies with key (HS256). The key must
// be at least MinKeySize bytes.
//
// Supported options:
//   - WithSecure
//   - WithMaxAge
//   - WithCookiePath
//   - WithNow
func NewGuard(key []byte, opt ...Option) (*Guard, error) {
	const op = "csrf.NewGuard"
	if len(key) < MinKeySize {
		return nil, fmt.Errorf("%s: key must be at least %d bytes: %w", op, MinKeySize, ErrInvalidKey)
	}
	opts := getOpts(opt...)
	k := append([]byte(nil), key...)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: k},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create signer: %w", op, err)
	}
	return &Guard{
		key:    k,
		signer: signer,
		secure: opts.withSecure,
		maxAge: opts.withMaxAge,
		path:   opts.withCookiePath,
		now:    opts.withNow,
	}, nil
}

// Issue starts a session for state with a fresh nonce and PKCE verifier and
// writes its cookies.
func (g *Guard) Issue(w http.ResponseWriter, state string) (*Session, error) {
	const op = "Guard.Issue"
	s, err := g.NewSession(state)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := g.Write(w, s); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// NewSession creates a session for state with a fresh nonce and PKCE
// verifier. Nothing is written until Write is called.
func (g *Guard) NewSession(state string) (*Session, error) {
	const op = "Guard.NewSession"
	if state == "" {
		return nil, fmt.Errorf("%s: state is empty: %w", op, oidc.ErrInvalidParameter)
	}
	nonce, err := id.New("n")
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate nonce: %w", op, err)
	}
	return &Session{
		state:    state,
		nonce:    nonce,
		verifier: oauth2.GenerateVerifier(),
	}, nil
}

// Write sets the session's cookies on w. Either all three are written or
// none are.
func (g *Guard) Write(w http.ResponseWriter, s *Session) error {
	const op = "Guard.Write"
	if s == nil || s.state == "" {
		return fmt.Errorf("%s: session is empty: %w", op, oidc.ErrInvalidParameter)
	}
	now := g.now()
	cookies := make([]*http.Cookie, 0, 3)
	for _, c := range []struct{ name, value string }{
		{StateCookie, s.state},
		{NonceCookie, s.nonce},
		{VerifierCookie, s.verifier},
	} {
		v, err := g.sign(c.name, c.value, now)
		if err != nil {
			return fmt.Errorf("%s: unable to sign %s cookie: %w", op, c.name, err)
		}
		cookies = append(cookies, g.cookie(c.name, v, now))
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
	return nil
}

// Verify reads the session cookies from r and checks they're authentic,
// unexpired and that the state matches callbackState. The nonce is checked
// later, against the id_token.
func (g *Guard) Verify(r *http.Request, callbackState string) (*Session, error) {
	const op = "Guard.Verify"
	now := g.now()
	values := make(map[string]string, 3)
	for _, name := range []string{StateCookie, NonceCookie, VerifierCookie} {
		c, err := r.Cookie(name)
		if err != nil {
			return nil, fmt.Errorf("%s: missing %s cookie: %w", op, name, ErrMismatch)
		}
		v, err := g.parse(name, c.Value, now)
		if err != nil {
			return nil, fmt.Errorf("%s: %s cookie: %s: %w", op, name, err, ErrMismatch)
		}
		values[name] = v
	}
	if callbackState == "" || subtle.ConstantTimeCompare([]byte(values[StateCookie]), []byte(callbackState)) != 1 {
		return nil, fmt.Errorf("%s: state cookie does not match callback state: %w", op, ErrMismatch)
	}
	return &Session{
		state:    values[StateCookie],
		nonce:    values[NonceCookie],
		verifier: values[VerifierCookie],
	}, nil
}

// Clear expires the session cookies.
func (g *Guard) Clear(w http.ResponseWriter) {
	for _, name := range []string{StateCookie, NonceCookie, VerifierCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     g.path,
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   g.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func (g *Guard) cookie(name, value string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     g.path,
		MaxAge:   int(g.maxAge.Seconds()),
		Expires:  now.Add(g.maxAge),
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// sign returns a compact JWS binding value to the cookie name until the
// session expires.
func (g *Guard) sign(name, value string, now time.Time) (string, error) {
	return jwt.Signed(g.signer).Claims(jwt.Claims{
		Subject:  value,
		Audience: jwt.Audience{name},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(g.maxAge)),
	}).CompactSerialize()
}

func (g *Guard) parse(name, raw string, now time.Time) (string, error) {
	tok, err := jwt.ParseSigned(raw)
	if err != nil {
		return "", fmt.Errorf("malformed: %w", err)
	}
	if len(tok.Headers) != 1 || tok.Headers[0].Algorithm != string(jose.HS256) {
		return "", errors.New("unexpected signing algorithm")
	}
	var claims jwt.Claims
	if err := tok.Claims(g.key, &claims); err != nil {
		return "", fmt.Errorf("bad signature: %w", err)
	}
	if claims.Expiry == nil {
		return "", errors.New("no expiry")
	}
	if err := claims.ValidateWithLeeway(jwt.Expected{Audience: jwt.Audience{name}, Time: now}, 0); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("empty value")
	}
	return claims.Subject, nil
}
