// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package discord connects chatlink to Discord. It registers the link slash
// command, hands invocations to a CommandStarter and posts results to
// channels.
package discord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/chatlink/chat"
	"github.com/hashicorp/chatlink/linking"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultCommandName is the slash command users run to link an account.
	DefaultCommandName = "link"

	// commandTimeout bounds handling one command. Discord requires the
	// initial response within three seconds.
	commandTimeout = 3 * time.Second
)

var (
	// ErrInvalidParameter is returned for missing configuration.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotConnected is returned by Run when the gateway can't be opened.
	ErrNotConnected = errors.New("unable to connect to discord")
)

// CommandStarter starts a link for a command invocation.
// *linking.CommandHandler implements it.
type CommandStarter interface {
	Start(ctx context.Context, inv linking.Invocation) (string, error)
}

// session is the subset of *discordgo.Session used by the Bot.
type session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ApplicationCommandCreate(appID, guildID string, cmd *discordgo.ApplicationCommand, options ...discordgo.RequestOption) (*discordgo.ApplicationCommand, error)
	ApplicationCommandDelete(appID, guildID, cmdID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ session = (*discordgo.Session)(nil)

// Bot is a Discord application which serves the link command. It implements
// chat.Poster.
type Bot struct {
	s       session
	starter CommandStarter
	logger  hclog.Logger
	now     func() time.Time

	applicationID      string
	guildID            string
	commandName        string
	removeCommandOnEnd bool
}

var _ chat.Poster = (*Bot)(nil)

// NewBot creates a Bot for the bot token and application id. It doesn't
// connect until Run.
//
// Supported options:
//   - WithGuildID
//   - WithCommandName
//   - WithRemoveCommandOnShutdown
//   - WithLogger
//   - WithNow
func NewBot(botToken, applicationID string, starter CommandStarter, opt ...Option) (*Bot, error) {
	const op = "discord.NewBot"
	if botToken == "" {
		return nil, fmt.Errorf("%s: bot token is empty: %w", op, ErrInvalidParameter)
	}
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create session: %w", op, err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return newBot(s, applicationID, starter, opt...)
}

func newBot(s session, applicationID string, starter CommandStarter, opt ...Option) (*Bot, error) {
	const op = "discord.newBot"
	switch {
	case applicationID == "":
		return nil, fmt.Errorf("%s: application id is empty: %w", op, ErrInvalidParameter)
	case starter == nil:
		return nil, fmt.Errorf("%s: command starter is nil: %w", op, ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	return &Bot{
		s:                  s,
		starter:            starter,
		logger:             opts.withLogger,
		now:                opts.withNow,
		applicationID:      applicationID,
		guildID:            opts.withGuildID,
		commandName:        opts.withCommandName,
		removeCommandOnEnd: opts.withRemoveCommand,
	}, nil
}

// Run connects to Discord, registers the link command and serves it until
// ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	const op = "Bot.Run"
	removeHandler := b.s.AddHandler(b.onInteractionCreate)
	defer removeHandler()

	if err := b.s.Open(); err != nil {
		return fmt.Errorf("%s: %s: %w", op, err, ErrNotConnected)
	}
	defer func() {
		if err := b.s.Close(); err != nil {
			b.logger.Warn("error closing discord session", "error", err)
		}
	}()

	dmAllowed := b.guildID == ""
	cmd, err := b.s.ApplicationCommandCreate(b.applicationID, b.guildID, &discordgo.ApplicationCommand{
		Name:         b.commandName,
		Description:  "Link your account with your identity provider account",
		DMPermission: &dmAllowed,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s: unable to register /%s command: %w", op, b.commandName, err)
	}
	b.logger.Info("discord command registered", "command", b.commandName, "guild_id", b.guildID)

	<-ctx.Done()

	if b.removeCommandOnEnd {
		delCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.s.ApplicationCommandDelete(b.applicationID, b.guildID, cmd.ID, discordgo.WithContext(delCtx)); err != nil {
			b.logger.Warn("unable to remove discord command", "command", b.commandName, "error", err)
		}
	}
	return nil
}

// Post sends a public message to channelID.
func (b *Bot) Post(ctx context.Context, channelID string, m chat.Message) error {
	const op = "Bot.Post"
	content, mentions := render(m)
	_, err := b.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         content,
		AllowedMentions: mentions,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, ic *discordgo.InteractionCreate) {
	if ic == nil || ic.Interaction == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	b.handle(ctx, ic.Interaction)
}

func (b *Bot) handle(ctx context.Context, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data, ok := i.Data.(discordgo.ApplicationCommandInteractionData)
	if !ok || data.Name != b.commandName {
		return
	}
	user := interactionUser(i)
	if user == nil {
		b.logger.Warn("ignoring interaction without a user", "interaction_id", i.ID)
		return
	}
	_, err := b.starter.Start(ctx, linking.Invocation{
		User:      chat.User{ID: user.ID, Name: user.Username},
		Reply:     newInteractionReplier(b.s, i, b.now),
		ChannelID: i.ChannelID,
		Locale:    string(i.Locale),
	})
	if err != nil {
		b.logger.Error("link command failed", "chat_user_id", user.ID, "error", err)
	}
}

// interactionUser returns the invoking user, which is on Member in guilds
// and on User in DMs.
func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// render prefixes the message with its mention, and restricts pings to that
// user.
func render(m chat.Message) (string, *discordgo.MessageAllowedMentions) {
	mentions := &discordgo.MessageAllowedMentions{}
	if m.MentionUserID == "" {
		return m.Content, mentions
	}
	mentions.Users = []string{m.MentionUserID}
	return fmt.Sprintf("<@%s> %s", m.MentionUserID, m.Content), mentions
}
