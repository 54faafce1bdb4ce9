// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package chat describes the capabilities chatlink needs from a chat platform.
package chat

import "context"

// User is a chat platform account.
type User struct {
	ID   string
	Name string
}

// Message is a message sent to a chat platform.
type Message struct {
	// Content is the message text.
	Content string

	// Ephemeral messages are only visible to the user who triggered the
	// interaction. Ignored by Poster.
	Ephemeral bool

	// MentionUserID, when set, prefixes the message with a mention of that
	// user.
	MentionUserID string
}

// Replier is a bounded-lifetime handle for answering one chat interaction.
type Replier interface {
	// Expired reports whether the handle can no longer be used.
	Expired() bool

	// Reply sends the initial response to the interaction.
	Reply(ctx context.Context, m Message) error

	// FollowUp sends an additional message after the initial response.
	FollowUp(ctx context.Context, m Message) error
}

// Poster sends public messages to a channel.
type Poster interface {
	Post(ctx context.Context, channelID string, m Message) error
}
