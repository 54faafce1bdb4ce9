// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package linking

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hashicorp/chatlink/chat"
	"github.com/hashicorp/chatlink/linkstore"
	"github.com/hashicorp/chatlink/oidc"
	"github.com/hashicorp/go-hclog"
)

// Invocation is one use of the link command.
type Invocation struct {
	User chat.User

	// Reply answers this invocation.
	Reply chat.Replier

	// ChannelID is where the command was used. It receives the result if
	// Reply has expired by then.
	ChannelID string

	// Locale is the user's chat locale, if known.
	Locale string
}

// CommandHandler handles the link command.
type CommandHandler struct {
	store   linkstore.Store
	baseURL string
	logger  hclog.Logger
}

// NewCommandHandler creates a CommandHandler. baseURL is the externally
// reachable URL of the http server.
//
// Supported options:
//   - WithLogger
func NewCommandHandler(store linkstore.Store, baseURL string, opt ...Option) (*CommandHandler, error) {
	const op = "linking.NewCommandHandler"
	if store == nil {
		return nil, fmt.Errorf("%s: store is nil: %w", op, oidc.ErrNilParameter)
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s: base URL %q is not an absolute URL: %w", op, baseURL, oidc.ErrInvalidParameter)
	}
	opts := getOpts(opt...)
	return &CommandHandler{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  opts.withLogger,
	}, nil
}

// LoginURL returns the URL a user follows to start linking with token.
func (h *CommandHandler) LoginURL(token string) string {
	return h.baseURL + "/login/" + url.PathEscape(token)
}

// Start creates a pending link for the invocation and privately replies with
// its login URL. If the reply fails the token is returned with the error and
// the link is left to expire.
func (h *CommandHandler) Start(ctx context.Context, inv Invocation) (string, error) {
	const op = "CommandHandler.Start"
	if inv.Reply == nil {
		return "", fmt.Errorf("%s: reply is nil: %w", op, oidc.ErrNilParameter)
	}
	if inv.User.ID == "" {
		return "", fmt.Errorf("%s: chat user id is empty: %w", op, oidc.ErrInvalidParameter)
	}
	var createOpts []linkstore.Option
	if inv.Locale != "" {
		createOpts = append(createOpts, linkstore.WithLocale(inv.Locale))
	}
	token, err := h.store.Create(ctx, inv.User.ID, inv.User.Name, inv.Reply, inv.ChannelID, createOpts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	err = inv.Reply.Reply(ctx, chat.Message{
		Content:   fmt.Sprintf("Open this link to connect your account: %s", h.LoginURL(token)),
		Ephemeral: true,
	})
	if err != nil {
		h.logger.Error("unable to reply to link command", "chat_user_id", inv.User.ID, "error", err)
		return token, fmt.Errorf("%s: unable to reply: %w", op, err)
	}
	h.logger.Debug("pending link created", "chat_user_id", inv.User.ID, "chat_user_name", inv.User.Name)
	return token, nil
}
