// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestIDTokenClaims are the claims TestSignIDToken puts in an id_token.
type TestIDTokenClaims struct {
	Issuer   string
	Subject  string
	Audience []string

	// Nonce is omitted from the token when empty.
	Nonce string

	// IssuedAt defaults to now and Lifetime to a minute.
	IssuedAt time.Time
	Lifetime time.Duration

	// Extra holds profile claims such as preferred_username. It can't
	// override nonce.
	Extra map[string]interface{}
}

// TestSigningKey generates an ES256 key for signing test id_tokens.
func TestSigningKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return k
}

// TestSignIDToken returns c signed with key as a compact ES256 id_token. The
// token is valid from five seconds before IssuedAt.
func TestSignIDToken(t *testing.T, key *ecdsa.PrivateKey, c TestIDTokenClaims) IDToken {
	t.Helper()
	require := require.New(t)
	require.NotNil(key)
	iat := c.IssuedAt
	if iat.IsZero() {
		iat = time.Now()
	}
	lifetime := c.Lifetime
	if lifetime == 0 {
		lifetime = time.Minute
	}

	profile := make(map[string]interface{}, len(c.Extra)+1)
	for k, v := range c.Extra {
		profile[k] = v
	}
	delete(profile, "nonce")
	if c.Nonce != "" {
		profile["nonce"] = c.Nonce
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)
	raw, err := jwt.Signed(signer).
		Claims(jwt.Claims{
			Issuer:    c.Issuer,
			Subject:   c.Subject,
			Audience:  jwt.Audience(c.Audience),
			IssuedAt:  jwt.NewNumericDate(iat),
			NotBefore: jwt.NewNumericDate(iat.Add(-5 * time.Second)),
			Expiry:    jwt.NewNumericDate(iat.Add(lifetime)),
		}).
		Claims(profile).
		CompactSerialize()
	require.NoError(err)
	return IDToken(raw)
}

// TestCAPEM returns a short-lived, self-signed CA certificate for hosts as
// PEM. Nothing the test provider serves chains to it, so configs that trust
// only this CA reject the provider.
func TestCAPEM(t *testing.T, hosts ...string) string {
	t.Helper()
	require := require.New(t)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(err)

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "chatlink test CA"},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(5 * time.Minute),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
			continue
		}
		tmpl.DNSNames = append(tmpl.DNSNames, h)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}
