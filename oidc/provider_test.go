// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/text/language"
)

const testRedirect = "https://chatlink.example.com/oauth/callback"

type testRequest struct {
	state, nonce, verifier string
}

func (r *testRequest) State() string        { return r.state }
func (r *testRequest) Nonce() string        { return r.nonce }
func (r *testRequest) PKCEVerifier() string { return r.verifier }

func testNewRequest(t *testing.T) *testRequest {
	t.Helper()
	return &testRequest{
		state:    "st_" + t.Name(),
		nonce:    "n_" + t.Name(),
		verifier: oauth2.GenerateVerifier(),
	}
}

func testNewConfig(t *testing.T, tp *TestProvider, opt ...Option) *Config {
	t.Helper()
	clientID, clientSecret := tp.ClientCreds()
	c, err := NewConfig(
		tp.Addr(),
		clientID,
		ClientSecret(clientSecret),
		[]Alg{ES256},
		testRedirect,
		append([]Option{WithProviderCA(tp.CACert())}, opt...)...,
	)
	require.NoError(t, err)
	return c
}

func testNewProvider(t *testing.T, tp *TestProvider, opt ...Option) *Provider {
	t.Helper()
	p, err := NewProvider(testNewConfig(t, tp, opt...))
	require.NoError(t, err)
	t.Cleanup(p.Done)
	return p
}

func testStartProvider(t *testing.T) *TestProvider {
	t.Helper()
	tp := StartTestProvider(t)
	tp.SetClientCreds("test-client-id", "test-client-secret")
	tp.SetAllowedRedirectURIs([]string{testRedirect})
	return tp
}

// testAuthorize follows authURL to the test provider and returns the code and
// state from the provider's redirect.
func testAuthorize(t *testing.T, tp *TestProvider, authURL string) (code, state string) {
	t.Helper()
	require := require.New(t)
	resp, err := tp.HTTPClient().Get(authURL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	require.Empty(loc.Query().Get("error"))
	return loc.Query().Get("code"), loc.Query().Get("state")
}

func TestNewProvider(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	tests := []struct {
		name      string
		config    func() *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name:   "valid",
			config: func() *Config { return testNewConfig(t, tp) },
		},
		{
			name:      "nil-config",
			config:    func() *Config { return nil },
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
		{
			name: "invalid-config",
			config: func() *Config {
				c := testNewConfig(t, tp)
				c.Issuer = ""
				return c
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "untrusted-provider",
			config: func() *Config {
				c := testNewConfig(t, tp)
				c.ProviderCA = TestCAPEM(t, "localhost")
				return c
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewProvider(tt.config())
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				if tt.wantIsErr != nil {
					assert.ErrorIs(err, tt.wantIsErr)
				}
				return
			}
			require.NoError(err)
			defer got.Done()
			assert.NotNil(got.provider)
			assert.NotNil(got.client)
			assert.Equal(tp.Addr()+"/userinfo", got.userInfoURL)
		})
	}
}

func TestProvider_Done(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	p, err := NewProvider(testNewConfig(t, tp))
	require.NoError(t, err)
	p.Done()
	p.Done()
	assert.Error(t, p.backgroundCtx.Err())

	var nilProvider *Provider
	nilProvider.Done()
}

func TestProvider_configIsCopied(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	c := testNewConfig(t, tp)
	p, err := NewProvider(c)
	require.NoError(t, err)
	defer p.Done()

	c.ClientID = "changed"
	c.Scopes[0] = "changed"
	assert.Equal(t, "test-client-id", p.config.ClientID)
	assert.Equal(t, []string{"openid"}, p.config.Scopes)
}

func TestProvider_AuthURL(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	p := testNewProvider(t, tp, WithScopes("email"))

	tests := []struct {
		name      string
		req       Request
		opt       []Option
		wantQuery url.Values
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "valid",
			req:  &testRequest{state: "s", nonce: "n", verifier: "verifier-verifier-verifier-verifier-verifier"},
			wantQuery: url.Values{
				"client_id":             {"test-client-id"},
				"redirect_uri":          {testRedirect},
				"response_type":         {"code"},
				"scope":                 {"openid email"},
				"state":                 {"s"},
				"nonce":                 {"n"},
				"code_challenge":        {oauth2.S256ChallengeFromVerifier("verifier-verifier-verifier-verifier-verifier")},
				"code_challenge_method": {"S256"},
			},
		},
		{
			name: "valid-without-pkce",
			req:  &testRequest{state: "s", nonce: "n"},
			wantQuery: url.Values{
				"client_id":     {"test-client-id"},
				"redirect_uri":  {testRedirect},
				"response_type": {"code"},
				"scope":         {"openid email"},
				"state":         {"s"},
				"nonce":         {"n"},
			},
		},
		{
			name: "valid-with-ui-locales",
			req:  &testRequest{state: "s", nonce: "n"},
			opt:  []Option{WithUILocales(language.MustParse("fr-CA"), language.Und, language.English)},
			wantQuery: url.Values{
				"client_id":     {"test-client-id"},
				"redirect_uri":  {testRedirect},
				"response_type": {"code"},
				"scope":         {"openid email"},
				"state":         {"s"},
				"nonce":         {"n"},
				"ui_locales":    {"fr-CA en"},
			},
		},
		{
			name:      "nil-request",
			wantErr:   true,
			wantIsErr: ErrNilParameter,
		},
		{
			name:      "empty-state",
			req:       &testRequest{nonce: "n"},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "empty-nonce",
			req:       &testRequest{state: "s"},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "equal-state-and-nonce",
			req:       &testRequest{state: "s", nonce: "s"},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := p.AuthURL(context.Background(), tt.req, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				assert.Empty(got)
				return
			}
			require.NoError(err)
			u, err := url.Parse(got)
			require.NoError(err)
			assert.Equal(tp.Addr()+"/authorize", u.Scheme+"://"+u.Host+u.Path)
			assert.Equal(tt.wantQuery, u.Query())

			again, err := p.AuthURL(context.Background(), tt.req, tt.opt...)
			require.NoError(err)
			assert.Equal(got, again)
		})
	}
}

func TestProvider_Exchange(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	p := testNewProvider(t, tp)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		req := testNewRequest(t)
		tp.SetExpectedAuthCode("code-" + t.Name())
		tp.SetExpectedAuthNonce(req.Nonce())

		authURL, err := p.AuthURL(ctx, req)
		require.NoError(err)
		code, state := testAuthorize(t, tp, authURL)
		assert.Equal(req.State(), state)

		tk, err := p.Exchange(ctx, req, state, code)
		require.NoError(err)
		assert.Equal("alice@example.com", tk.Subject())
		assert.NotEmpty(tk.AccessToken())
	})
	t.Run("short-lived-access-token", func(t *testing.T) {
		// providers may issue access tokens that expire within seconds; the
		// exchange result must still be usable for the user info request.
		assert, require := assert.New(t), require.New(t)
		tp.SetExpectedExpiry(2 * time.Second)
		defer tp.SetExpectedExpiry(5 * time.Second)
		req := testNewRequest(t)
		tp.SetExpectedAuthCode("code-" + t.Name())
		tp.SetExpectedAuthNonce(req.Nonce())

		authURL, err := p.AuthURL(ctx, req)
		require.NoError(err)
		code, state := testAuthorize(t, tp, authURL)
		tk, err := p.Exchange(ctx, req, state, code)
		require.NoError(err)
		id, err := p.UserInfo(ctx, tk)
		require.NoError(err)
		assert.Equal("alice@example.com", id.Subject)
	})
	t.Run("state-mismatch", func(t *testing.T) {
		req := testNewRequest(t)
		_, err := p.Exchange(ctx, req, "not-the-state", "code")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrResponseStateInvalid)
	})
	t.Run("empty-code", func(t *testing.T) {
		req := testNewRequest(t)
		_, err := p.Exchange(ctx, req, req.State(), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
	t.Run("nil-request", func(t *testing.T) {
		_, err := p.Exchange(ctx, nil, "s", "code")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNilParameter)
	})
	t.Run("wrong-pkce-verifier", func(t *testing.T) {
		require := require.New(t)
		req := testNewRequest(t)
		tp.SetExpectedAuthCode("code-" + t.Name())
		tp.SetExpectedAuthNonce(req.Nonce())
		authURL, err := p.AuthURL(ctx, req)
		require.NoError(err)
		code, state := testAuthorize(t, tp, authURL)

		req.verifier = oauth2.GenerateVerifier()
		_, err = p.Exchange(ctx, req, state, code)
		require.Error(err)
		assert.ErrorIs(t, err, ErrExchangeFailed)
	})
	t.Run("wrong-code", func(t *testing.T) {
		require := require.New(t)
		req := testNewRequest(t)
		tp.SetExpectedAuthCode("code-" + t.Name())
		tp.SetExpectedAuthNonce(req.Nonce())
		authURL, err := p.AuthURL(ctx, req)
		require.NoError(err)
		_, state := testAuthorize(t, tp, authURL)

		_, err = p.Exchange(ctx, req, state, "not-the-code")
		require.Error(err)
		assert.ErrorIs(t, err, ErrExchangeFailed)
	})
	t.Run("nonce-mismatch", func(t *testing.T) {
		require := require.New(t)
		req := testNewRequest(t)
		tp.SetExpectedAuthCode("code-" + t.Name())
		tp.SetExpectedAuthNonce(req.Nonce())
		authURL, err := p.AuthURL(ctx, req)
		require.NoError(err)
		code, state := testAuthorize(t, tp, authURL)

		req.nonce = "a-different-nonce"
		_, err = p.Exchange(ctx, req, state, code)
		require.Error(err)
		assert.ErrorIs(t, err, ErrInvalidNonce)
	})
}

func TestProvider_Exchange_missingIDToken(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	tp := testStartProvider(t)
	p := testNewProvider(t, tp)
	ctx := context.Background()

	req := testNewRequest(t)
	tp.SetExpectedAuthCode("code")
	tp.SetExpectedAuthNonce(req.Nonce())
	tp.SetOmitIDTokens(true)
	authURL, err := p.AuthURL(ctx, req)
	require.NoError(err)
	code, state := testAuthorize(t, tp, authURL)

	_, err = p.Exchange(ctx, req, state, code)
	require.Error(err)
	assert.ErrorIs(t, err, ErrMissingIDToken)
}

func TestProvider_Exchange_tokenEndpointDown(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	tp := testStartProvider(t)
	p := testNewProvider(t, tp)
	ctx := context.Background()

	req := testNewRequest(t)
	tp.SetExpectedAuthCode("code")
	tp.SetExpectedAuthNonce(req.Nonce())
	authURL, err := p.AuthURL(ctx, req)
	require.NoError(err)
	code, state := testAuthorize(t, tp, authURL)

	tp.SetDisableToken(true)
	_, err = p.Exchange(ctx, req, state, code)
	require.Error(err)
	assert.ErrorIs(t, err, ErrExchangeFailed)
}

func TestProvider_Exchange_audiences(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	ctx := context.Background()
	tests := []struct {
		name           string
		customAudience string
		wantIsErr      error
	}{
		{name: "matching-audience", customAudience: "chatlink"},
		{name: "missing-audience", wantIsErr: ErrInvalidAudience},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			p := testNewProvider(t, tp, WithAudiences("chatlink"))
			req := testNewRequest(t)
			tp.SetExpectedAuthCode("code-" + tt.name)
			tp.SetExpectedAuthNonce(req.Nonce())
			tp.SetCustomAudience(tt.customAudience)
			authURL, err := p.AuthURL(ctx, req)
			require.NoError(err)
			code, state := testAuthorize(t, tp, authURL)

			_, err = p.Exchange(ctx, req, state, code)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(t, err, tt.wantIsErr)
				return
			}
			require.NoError(err)
		})
	}
}

// TestProvider_Exchange_clockSkew issues tokens from a provider whose clock
// has drifted from ours.
func TestProvider_Exchange_clockSkew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name      string
		drift     time.Duration
		leeway    time.Duration
		wantIsErr error
	}{
		{name: "provider-behind-within-leeway", drift: -2 * time.Minute, leeway: DefaultClockSkewLeeway},
		{name: "provider-ahead-within-leeway", drift: 2 * time.Minute, leeway: DefaultClockSkewLeeway},
		{name: "provider-behind-beyond-leeway", drift: -10 * time.Minute, leeway: DefaultClockSkewLeeway, wantIsErr: ErrExpiredToken},
		{name: "provider-ahead-beyond-leeway", drift: 10 * time.Minute, leeway: DefaultClockSkewLeeway, wantIsErr: ErrExpiredToken},
		{name: "no-leeway", drift: -2 * time.Minute, wantIsErr: ErrExpiredToken},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require := require.New(t)
			tp := testStartProvider(t)
			tp.SetNowFunc(func() time.Time { return time.Now().Add(tt.drift) })
			p := testNewProvider(t, tp, WithClockSkewLeeway(tt.leeway))

			req := testNewRequest(t)
			tp.SetExpectedAuthCode("code")
			tp.SetExpectedAuthNonce(req.Nonce())
			authURL, err := p.AuthURL(ctx, req)
			require.NoError(err)
			code, state := testAuthorize(t, tp, authURL)

			tk, err := p.Exchange(ctx, req, state, code)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(t, err, tt.wantIsErr)
				return
			}
			require.NoError(err)
			assert.NotEmpty(t, tk.Subject())
		})
	}
}

func TestProvider_UserInfo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	exchange := func(t *testing.T, tp *TestProvider, p *Provider) *Token {
		t.Helper()
		require := require.New(t)
		req := testNewRequest(t)
		tp.SetExpectedAuthCode("code")
		tp.SetExpectedAuthNonce(req.Nonce())
		authURL, err := p.AuthURL(ctx, req)
		require.NoError(err)
		code, state := testAuthorize(t, tp, authURL)
		tk, err := p.Exchange(ctx, req, state, code)
		require.NoError(err)
		return tk
	}

	t.Run("from-userinfo-endpoint", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := testStartProvider(t)
		p := testNewProvider(t, tp)
		tk := exchange(t, tp, p)

		tp.SetUserInfoReply(map[string]interface{}{"preferred_username": "alice-from-userinfo"})
		id, err := p.UserInfo(ctx, tk)
		require.NoError(err)
		assert.Equal("alice@example.com", id.Subject)
		assert.Equal("alice-from-userinfo", id.PreferredUsername)
		// merged from the id_token
		assert.Equal("Alice Doe", id.DisplayName)
	})
	t.Run("subject-mismatch", func(t *testing.T) {
		require := require.New(t)
		tp := testStartProvider(t)
		p := testNewProvider(t, tp)
		tk := exchange(t, tp, p)

		tp.SetExpectedSubject("mallory@example.com")
		_, err := p.UserInfo(ctx, tk)
		require.Error(err)
		assert.ErrorIs(t, err, ErrInvalidSubject)
	})
	t.Run("no-userinfo-endpoint", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := testStartProvider(t)
		tp.SetDisableUserInfo(true)
		p := testNewProvider(t, tp)
		assert.Empty(p.userInfoURL)
		tk := exchange(t, tp, p)

		id, err := p.UserInfo(ctx, tk)
		require.NoError(err)
		assert.Equal("alice@example.com", id.Subject)
		assert.Equal("alice", id.Username())
	})
	t.Run("userinfo-failure", func(t *testing.T) {
		require := require.New(t)
		tp := testStartProvider(t)
		p := testNewProvider(t, tp)
		tk := exchange(t, tp, p)

		tp.SetDisableUserInfo(true)
		_, err := p.UserInfo(ctx, tk)
		require.Error(err)
		assert.ErrorIs(t, err, ErrUserInfoFailed)
	})
	t.Run("nil-token", func(t *testing.T) {
		tp := testStartProvider(t)
		p := testNewProvider(t, tp)
		_, err := p.UserInfo(ctx, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNilParameter)
	})
}

func TestProvider_VerifyIDToken_invalidParameters(t *testing.T) {
	t.Parallel()
	tp := testStartProvider(t)
	p := testNewProvider(t, tp)
	ctx := context.Background()

	err := p.VerifyIDToken(ctx, "", "nonce")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	err = p.VerifyIDToken(ctx, "a.b.c", "")
	assert.ErrorIs(t, err, ErrInvalidParameter)

	err = p.VerifyIDToken(ctx, "a.b.c", "nonce")
	assert.ErrorIs(t, err, ErrIDTokenVerificationFailed)
}
