// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package linkstore

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/chatlink/chat"
)

// DefaultTTL is how long a pending link lives. It matches the lifetime of a
// Discord interaction token.
const DefaultTTL = 15 * time.Minute

// ErrNotFound is returned when a token has no pending link, either because it
// was never issued, was removed, or has expired.
var ErrNotFound = errors.New("pending link not found")

// PendingLink is the in-flight correlation between a chat interaction and an
// OIDC authentication attempt.
type PendingLink struct {
	// Token identifies the link and doubles as the OIDC state.
	Token string

	ChatUserID   string
	ChatUserName string

	// Reply answers the originating interaction while it's still valid.
	Reply chat.Replier

	// FallbackChannelID receives the result once Reply has expired.
	FallbackChannelID string

	// Locale is the chat user's locale (BCP 47), if known.
	Locale string

	// Responded becomes true once the result has been claimed for delivery.
	Responded bool

	CreatedAt time.Time
}

// Store holds pending links. Implementations must be safe for concurrent use.
type Store interface {
	// Create allocates a fresh token for a new pending link. It never
	// overwrites an existing link.
	Create(ctx context.Context, chatUserID, chatUserName string, reply chat.Replier, fallbackChannelID string, opt ...Option) (string, error)

	// Get returns a copy of the pending link or ErrNotFound.
	Get(ctx context.Context, token string) (*PendingLink, error)

	// MarkResponded sets Responded. first is true only for the call that
	// made the transition.
	MarkResponded(ctx context.Context, token string) (first bool, err error)

	// Remove deletes the pending link. Removing an absent token is not an
	// error.
	Remove(ctx context.Context, token string) error
}
