// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package linking

import "errors"

var (
	// ErrInvalidOrExpiredLink is returned when a token has no pending link.
	ErrInvalidOrExpiredLink = errors.New("invalid or expired link")

	// ErrCSRFMismatch is returned when the callback doesn't come from the
	// browser that started the attempt.
	ErrCSRFMismatch = errors.New("csrf mismatch")

	// ErrAuthenticationDenied is returned when the provider reports an error
	// instead of an authorization code.
	ErrAuthenticationDenied = errors.New("authentication denied by provider")

	// ErrExchangeFailure is returned when the code exchange, id_token
	// verification or user info request fails.
	ErrExchangeFailure = errors.New("token exchange failure")

	// ErrDeliveryFailure is logged when the result can't be sent to chat. It
	// never fails a callback.
	ErrDeliveryFailure = errors.New("chat delivery failure")
)
