// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/chatlink/chat"
)

const (
	// InteractionTokenLifetime is how long Discord accepts follow-ups for an
	// interaction.
	InteractionTokenLifetime = 15 * time.Minute

	// expirySafetyMargin is taken off the token lifetime so a follow-up
	// isn't started just before Discord rejects it.
	expirySafetyMargin = 30 * time.Second
)

// interactionReplier answers one application command interaction.
type interactionReplier struct {
	s         session
	i         *discordgo.Interaction
	expiresAt time.Time
	now       func() time.Time

	mu         sync.Mutex
	followedUp bool
}

var _ chat.Replier = (*interactionReplier)(nil)

func newInteractionReplier(s session, i *discordgo.Interaction, now func() time.Time) *interactionReplier {
	created, err := discordgo.SnowflakeTimestamp(i.ID)
	if err != nil {
		created = now()
	}
	return &interactionReplier{
		s:         s,
		i:         i,
		expiresAt: created.Add(InteractionTokenLifetime - expirySafetyMargin),
		now:       now,
	}
}

// Expired reports true once the interaction token is close to expiring, or
// once a follow-up has been sent.
func (r *interactionReplier) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.followedUp || !r.now().Before(r.expiresAt)
}

func (r *interactionReplier) Reply(ctx context.Context, m chat.Message) error {
	const op = "interactionReplier.Reply"
	content, mentions := render(m)
	err := r.s.InteractionRespond(r.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           flags(m),
			AllowedMentions: mentions,
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *interactionReplier) FollowUp(ctx context.Context, m chat.Message) error {
	const op = "interactionReplier.FollowUp"
	content, mentions := render(m)
	_, err := r.s.FollowupMessageCreate(r.i, true, &discordgo.WebhookParams{
		Content:         content,
		Flags:           flags(m),
		AllowedMentions: mentions,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.mu.Lock()
	r.followedUp = true
	r.mu.Unlock()
	return nil
}

func flags(m chat.Message) discordgo.MessageFlags {
	if m.Ephemeral {
		return discordgo.MessageFlagsEphemeral
	}
	return 0
}
