// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Parallel()
	testCaPem := TestCAPEM(t, "localhost")
	testNow := func() time.Time {
		return time.Now().Add(-1 * time.Minute)
	}

	type args struct {
		issuer       string
		clientID     string
		clientSecret ClientSecret
		supported    []Alg
		redirectURL  string
		opt          []Option
	}
	tests := []struct {
		name      string
		args      args
		want      *Config
		wantErr   bool
		wantIsErr error
	}{
		{
			name: "valid-with-all-valid-opts",
			args: args{
				issuer:       "http://your_issuer/",
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				supported:    []Alg{RS512},
				redirectURL:  "https://chatlink.example.com/oauth/callback",
				opt: []Option{
					WithAudiences("your_aud1", "your_aud2"),
					WithScopes("email", "profile"),
					WithProviderCA(testCaPem),
					WithClockSkewLeeway(time.Minute),
					WithRequestTimeout(5 * time.Second),
					WithNow(testNow),
				},
			},
			want: &Config{
				Issuer:               "http://your_issuer/",
				ClientID:             "your_client_id",
				ClientSecret:         "your_client_secret",
				SupportedSigningAlgs: []Alg{RS512},
				Audiences:            []string{"your_aud1", "your_aud2"},
				Scopes:               []string{"openid", "email", "profile"},
				RedirectURL:          "https://chatlink.example.com/oauth/callback",
				ProviderCA:           testCaPem,
				ClockSkewLeeway:      time.Minute,
				RequestTimeout:       5 * time.Second,
				NowFunc:              testNow,
			},
		},
		{
			name: "valid-defaults",
			args: args{
				issuer:       "https://your_issuer/",
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				supported:    []Alg{ES256},
				redirectURL:  "https://chatlink.example.com/oauth/callback",
			},
			want: &Config{
				Issuer:               "https://your_issuer/",
				ClientID:             "your_client_id",
				ClientSecret:         "your_client_secret",
				SupportedSigningAlgs: []Alg{ES256},
				Scopes:               []string{"openid"},
				RedirectURL:          "https://chatlink.example.com/oauth/callback",
				ClockSkewLeeway:      DefaultClockSkewLeeway,
				RequestTimeout:       DefaultRequestTimeout,
			},
		},
		{
			name: "empty-issuer",
			args: args{
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				supported:    []Alg{RS512},
				redirectURL:  "https://chatlink.example.com/oauth/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "invalid-issuer-scheme",
			args: args{
				issuer:       "ldap://your_issuer/",
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				supported:    []Alg{RS512},
				redirectURL:  "https://chatlink.example.com/oauth/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidIssuer,
		},
		{
			name: "missing-client-id",
			args: args{
				issuer:       "https://your_issuer/",
				clientSecret: "your_client_secret",
				supported:    []Alg{RS512},
				redirectURL:  "https://chatlink.example.com/oauth/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "missing-client-secret",
			args: args{
				issuer:      "https://your_issuer/",
				clientID:    "your_client_id",
				supported:   []Alg{RS512},
				redirectURL: "https://chatlink.example.com/oauth/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "missing-redirect",
			args: args{
				issuer:       "https://your_issuer/",
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				supported:    []Alg{RS512},
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "missing-algs",
			args: args{
				issuer:       "https://your_issuer/",
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				redirectURL:  "https://chatlink.example.com/oauth/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "unsupported-alg",
			args: args{
				issuer:       "https://your_issuer/",
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				supported:    []Alg{"HS256"},
				redirectURL:  "https://chatlink.example.com/oauth/callback",
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "negative-leeway",
			args: args{
				issuer:       "https://your_issuer/",
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				supported:    []Alg{RS512},
				redirectURL:  "https://chatlink.example.com/oauth/callback",
				opt:          []Option{WithClockSkewLeeway(-time.Second)},
			},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name: "invalid-ca",
			args: args{
				issuer:       "https://your_issuer/",
				clientID:     "your_client_id",
				clientSecret: "your_client_secret",
				supported:    []Alg{RS512},
				redirectURL:  "https://chatlink.example.com/oauth/callback",
				opt:          []Option{WithProviderCA("not-a-ca")},
			},
			wantErr:   true,
			wantIsErr: ErrInvalidCACert,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := NewConfig(tt.args.issuer, tt.args.clientID, tt.args.clientSecret, tt.args.supported, tt.args.redirectURL, tt.args.opt...)
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				if tt.wantIsErr != nil {
					assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				}
				return
			}
			require.NoError(err)
			testAssertEqualFunc(t, tt.want.NowFunc, got.NowFunc, "now funcs not equal")
			tt.want.NowFunc = nil
			got.NowFunc = nil
			assert.Equal(tt.want, got)
		})
	}
}

func TestConfig_Validate_reportsEveryProblem(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)

	c := &Config{}
	err := c.Validate()
	require.Error(err)

	var merr *multierror.Error
	require.True(errors.As(err, &merr))
	// client id, client secret, redirect, issuer and algs
	assert.Len(merr.Errors, 5)

	var nilConfig *Config
	err = nilConfig.Validate()
	require.Error(err)
	assert.ErrorIs(err, ErrNilParameter)
}

func TestConfig_Now(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	c := &Config{NowFunc: func() time.Time { return fixed }}
	assert.Equal(fixed, c.Now())

	c = &Config{}
	assert.WithinDuration(time.Now(), c.Now(), time.Second)
}

func TestConfig_HTTPClient(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	testCaPem := TestCAPEM(t, "localhost")

	c := &Config{ProviderCA: testCaPem, RequestTimeout: 3 * time.Second}
	client, err := c.HTTPClient()
	require.NoError(err)
	assert.Equal(3*time.Second, client.Timeout)

	c = &Config{ProviderCA: "bad"}
	_, err = c.HTTPClient()
	require.Error(err)
	assert.ErrorIs(err, ErrInvalidCACert)
}

func TestConfig_clone(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c := &Config{
		Scopes:               []string{"openid", "email"},
		Audiences:            []string{"aud"},
		SupportedSigningAlgs: []Alg{RS256},
	}
	cp := c.clone()
	c.Scopes[1] = "profile"
	c.Audiences[0] = "other"
	c.SupportedSigningAlgs[0] = ES256
	assert.Equal([]string{"openid", "email"}, cp.Scopes)
	assert.Equal([]string{"aud"}, cp.Audiences)
	assert.Equal([]Alg{RS256}, cp.SupportedSigningAlgs)
}

func TestClientSecret_redacted(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s := ClientSecret("super-secret")
	assert.Equal(RedactedClientSecret, s.String())
	assert.Equal(RedactedClientSecret, fmt.Sprintf("%s", s))
	b, err := json.Marshal(s)
	require.NoError(err)
	assert.Equal(`"`+RedactedClientSecret+`"`, string(b))
}

func TestWithScopes(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getConfigOpts(WithScopes("email", "openid", "email"))
	assert.Equal([]string{"openid", "email"}, opts.withScopes)

	opts = getConfigOpts()
	assert.Equal([]string{"openid"}, opts.withScopes)
}

func TestApplyOpts_nilOption(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getConfigOpts(nil, WithAudiences("a"), nil)
	assert.Equal([]string{"a"}, opts.withAudiences)

	opts = getConfigOpts(WithNow(nil))
	assert.Nil(opts.withNowFunc)
}

// testAssertEqualFunc compares two funcs by calling them; funcs aren't
// otherwise comparable.
func testAssertEqualFunc(t *testing.T, want, got func() time.Time, format string, args ...interface{}) {
	t.Helper()
	if want == nil && got == nil {
		return
	}
	require.NotNil(t, want, format, args)
	require.NotNil(t, got, format, args)
	assert.WithinDuration(t, want(), got(), time.Second, format, args)
}
