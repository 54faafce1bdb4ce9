// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import "fmt"

// Identity is the verified identity of the end-user, built from the
// provider's user info and id_token claims.
type Identity struct {
	// Subject is the provider's unique identifier for the end-user.
	Subject string `json:"sub"`

	// PreferredUsername is the shorthand name the end-user wishes to be
	// referred to by.
	PreferredUsername string `json:"preferred_username,omitempty"`

	// DisplayName is the end-user's full name.
	DisplayName string `json:"name,omitempty"`
}

// Username returns the best human readable name for the identity.
func (i *Identity) Username() string {
	switch {
	case i.PreferredUsername != "":
		return i.PreferredUsername
	case i.DisplayName != "":
		return i.DisplayName
	default:
		return i.Subject
	}
}

// merge fills empty fields from other.
func (i *Identity) merge(other Identity) {
	if i.PreferredUsername == "" {
		i.PreferredUsername = other.PreferredUsername
	}
	if i.DisplayName == "" {
		i.DisplayName = other.DisplayName
	}
}

func (i Identity) validate(op string) (*Identity, error) {
	if i.Subject == "" {
		return nil, fmt.Errorf("%s: identity has no subject: %w", op, ErrInvalidSubject)
	}
	return &i, nil
}
