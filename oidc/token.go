// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// IDToken is an oidc id_token.
// See https://openid.net/specs/openid-connect-core-1_0.html#IDToken.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims retrieves the IDToken claims.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	return UnmarshalClaims(string(t), claims)
}

// AccessToken is an oauth access_token.
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token.
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token.
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// Token is the result of a successful code exchange: a verified id_token plus
// the oauth2 access_token used for the user info request.
type Token struct {
	idToken IDToken
	oauth2  *oauth2.Token
	subject string
}

// NewToken creates a new Token (*Token). The IDToken is required and the
// *oauth2.Token may be nil.
func NewToken(i IDToken, t *oauth2.Token) (*Token, error) {
	const op = "NewToken"
	if i == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	var claims struct {
		Subject string `json:"sub"`
	}
	if err := i.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Token{
		idToken: i,
		oauth2:  t,
		subject: claims.Subject,
	}, nil
}

// IDToken returns the id_token.
func (t *Token) IDToken() IDToken { return t.idToken }

// Subject returns the id_token's sub claim.
func (t *Token) Subject() string { return t.subject }

// AccessToken returns the access_token, if any.
func (t *Token) AccessToken() AccessToken {
	if t.oauth2 == nil {
		return ""
	}
	return AccessToken(t.oauth2.AccessToken)
}

// StaticTokenSource returns a TokenSource that always returns the same token,
// or nil if the Token has no access_token.
func (t *Token) StaticTokenSource() oauth2.TokenSource {
	if t.oauth2 == nil {
		return nil
	}
	return oauth2.StaticTokenSource(t.oauth2)
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token
// without verifying its signature.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%s: malformed jwt, expected 3 parts got %d: %w", op, len(parts), ErrMalformedToken)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%s: malformed jwt payload: %s: %w", op, err, ErrMalformedToken)
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal jwt payload: %s: %w", op, err, ErrMalformedToken)
	}
	return nil
}
