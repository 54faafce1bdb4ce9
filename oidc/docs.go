// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc adapts an OpenID Connect provider for chatlink using the
3-legged authorization code flow with a nonce and PKCE.

Primary types provided by the package

* Config: the relying party configuration (client id/secret, redirect URL,
supported signing algorithms, additional scopes, clock skew leeway and request
timeout). Validate reports every problem it finds at once.

* Provider: created from a Config via discovery. It builds auth URLs for a
Request, exchanges authorization codes for a verified Token, and resolves the
end-user's Identity from the userinfo endpoint.

* Request: the per-attempt state, nonce and PKCE verifier. The csrf package
provides the implementation chatlink uses.

* Token: a verified id_token plus the oauth2 access_token. Token values are
redacted when printed or marshaled.

* TestProvider: a local TLS provider for tests, including clock drift and
error scenarios.

Example:

	c, err := oidc.NewConfig(issuer, clientID, clientSecret,
		[]oidc.Alg{oidc.RS256}, "https://chatlink.example.com/oauth/callback")
	if err != nil {
		return err
	}
	p, err := oidc.NewProvider(c)
	if err != nil {
		return err
	}
	defer p.Done()

	authURL, err := p.AuthURL(ctx, req)
	// ... redirect the user to authURL, then on the callback:
	tk, err := p.Exchange(ctx, req, state, code)
	id, err := p.UserInfo(ctx, tk)
*/
package oidc
