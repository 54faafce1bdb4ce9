// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter          = errors.New("invalid parameter")
	ErrNilParameter              = errors.New("nil parameter")
	ErrInvalidCACert             = errors.New("invalid CA certificate")
	ErrInvalidIssuer             = errors.New("invalid issuer")
	ErrResponseStateInvalid      = errors.New("oidc response state")
	ErrExchangeFailed            = errors.New("authorization code exchange failed")
	ErrMissingIDToken            = errors.New("id_token is missing")
	ErrIDTokenVerificationFailed = errors.New("id_token verification failed")
	ErrExpiredToken              = errors.New("token is expired")
	ErrInvalidAudience           = errors.New("invalid audience")
	ErrInvalidNonce              = errors.New("invalid nonce")
	ErrInvalidSubject            = errors.New("invalid subject")
	ErrMalformedToken            = errors.New("malformed token")
	ErrUserInfoFailed            = errors.New("user info failed")
)
