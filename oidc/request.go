// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

// Request represents one authentication attempt. Its State is passed through
// the provider and returned with the authentication response; its Nonce is
// bound to the id_token; its PKCEVerifier (when not empty) is presented during
// the code exchange.
//
// State and Nonce cannot be equal.
type Request interface {
	// State is an opaque value used to maintain state between the
	// authentication request and the callback.
	State() string

	// Nonce is used to associate a client session with an id_token and to
	// mitigate replay attacks.
	Nonce() string

	// PKCEVerifier is the optional PKCE code verifier. When empty, no code
	// challenge is sent with the authentication request.
	PKCEVerifier() string
}
