// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package linking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/chatlink/chat"
	"github.com/hashicorp/chatlink/csrf"
	"github.com/hashicorp/chatlink/linkstore"
	"github.com/hashicorp/chatlink/metrics"
	"github.com/hashicorp/chatlink/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/text/language"
)

// Authenticator is the part of *oidc.Provider the Resolver uses.
type Authenticator interface {
	AuthURL(ctx context.Context, r oidc.Request, opt ...oidc.Option) (string, error)
	Exchange(ctx context.Context, r oidc.Request, authorizationState string, authorizationCode string) (*oidc.Token, error)
	UserInfo(ctx context.Context, t *oidc.Token) (*oidc.Identity, error)
}

var _ Authenticator = (*oidc.Provider)(nil)

// Result describes a completed link.
type Result struct {
	ChatUserID   string
	ChatUserName string
	Identity     *oidc.Identity

	// Delivered is false when another callback already claimed delivery or
	// the chat platform rejected the message.
	Delivered bool
}

// Resolver drives the browser side of a link: it sends the user to the
// provider and resolves the provider's callback.
type Resolver struct {
	store  linkstore.Store
	guard  *csrf.Guard
	auth   Authenticator
	poster chat.Poster
	logger hclog.Logger

	exchangeTimeout time.Duration
	deliveryTimeout time.Duration
}

// NewResolver creates a Resolver. poster receives results whose reply handle
// has expired.
//
// Supported options:
//   - WithLogger
//   - WithExchangeTimeout
//   - WithDeliveryTimeout
func NewResolver(store linkstore.Store, guard *csrf.Guard, auth Authenticator, poster chat.Poster, opt ...Option) (*Resolver, error) {
	const op = "linking.NewResolver"
	switch {
	case store == nil:
		return nil, fmt.Errorf("%s: store is nil: %w", op, oidc.ErrNilParameter)
	case guard == nil:
		return nil, fmt.Errorf("%s: csrf guard is nil: %w", op, oidc.ErrNilParameter)
	case auth == nil:
		return nil, fmt.Errorf("%s: authenticator is nil: %w", op, oidc.ErrNilParameter)
	case poster == nil:
		return nil, fmt.Errorf("%s: poster is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getOpts(opt...)
	return &Resolver{
		store:           store,
		guard:           guard,
		auth:            auth,
		poster:          poster,
		logger:          opts.withLogger,
		exchangeTimeout: opts.withExchangeTimeout,
		deliveryTimeout: opts.withDeliveryTimeout,
	}, nil
}

// Login starts an authentication attempt for token. It writes the session
// cookies and returns the provider URL to redirect to. Unknown tokens return
// ErrInvalidOrExpiredLink without writing anything.
func (r *Resolver) Login(ctx context.Context, w http.ResponseWriter, token string) (string, error) {
	const op = "Resolver.Login"
	link, err := r.store.Get(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%s: %s: %w", op, err, ErrInvalidOrExpiredLink)
	}
	var authOpts []oidc.Option
	if link.Locale != "" {
		if tag, err := language.Parse(link.Locale); err == nil {
			authOpts = append(authOpts, oidc.WithUILocales(tag))
		}
	}
	// cookies are only written once there is somewhere to redirect to
	session, err := r.guard.NewSession(token)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	authURL, err := r.auth.AuthURL(ctx, session, authOpts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := r.guard.Write(w, session); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	r.logger.Debug("redirecting to provider", "chat_user_id", link.ChatUserID)
	return authURL, nil
}

// Resolve handles the provider's redirect back to chatlink. Failures before
// the user is identified leave the pending link in place, so the user can
// retry from the same login URL until it expires. On success the result is
// delivered to chat at most once, the link is removed and the session
// cookies are cleared.
func (r *Resolver) Resolve(ctx context.Context, w http.ResponseWriter, req *http.Request) (*Result, error) {
	const op = "Resolver.Resolve"
	q := req.URL.Query()
	state := q.Get("state")

	if state == "" {
		metrics.LinkOutcomesTotal.WithLabelValues(metrics.OutcomeInvalidLink).Inc()
		return nil, fmt.Errorf("%s: callback has no state: %w", op, ErrInvalidOrExpiredLink)
	}
	link, err := r.store.Get(ctx, state)
	if err != nil {
		metrics.LinkOutcomesTotal.WithLabelValues(metrics.OutcomeInvalidLink).Inc()
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrInvalidOrExpiredLink)
	}
	logger := r.logger.With("chat_user_id", link.ChatUserID)

	session, err := r.guard.Verify(req, state)
	if err != nil {
		metrics.LinkOutcomesTotal.WithLabelValues(metrics.OutcomeCSRFMismatch).Inc()
		logger.Warn("rejected callback", "error", err)
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrCSRFMismatch)
	}

	if providerErr := q.Get("error"); providerErr != "" {
		metrics.LinkOutcomesTotal.WithLabelValues(metrics.OutcomeDenied).Inc()
		logger.Info("provider denied authentication", "error", providerErr, "error_description", q.Get("error_description"))
		return nil, fmt.Errorf("%s: %s: %w", op, providerErr, ErrAuthenticationDenied)
	}

	id, err := r.identify(ctx, session, state, q.Get("code"))
	if err != nil {
		metrics.LinkOutcomesTotal.WithLabelValues(metrics.OutcomeExchangeFailure).Inc()
		logger.Error("unable to identify user", "error", err)
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrExchangeFailure)
	}

	first, err := r.store.MarkResponded(ctx, state)
	if err != nil {
		// removed or expired while the exchange was in flight
		metrics.LinkOutcomesTotal.WithLabelValues(metrics.OutcomeInvalidLink).Inc()
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrInvalidOrExpiredLink)
	}
	result := &Result{
		ChatUserID:   link.ChatUserID,
		ChatUserName: link.ChatUserName,
		Identity:     id,
	}
	logger.Info("account linked", "chat_user_name", link.ChatUserName, "subject", id.Subject, "username", id.Username())
	if first {
		if err := r.deliver(ctx, link, id); err != nil {
			logger.Error("unable to deliver link result", "error", err)
		} else {
			result.Delivered = true
		}
	}

	if err := r.store.Remove(ctx, state); err != nil {
		logger.Error("unable to remove pending link", "error", err)
	}
	r.guard.Clear(w)
	metrics.LinkOutcomesTotal.WithLabelValues(metrics.OutcomeLinked).Inc()
	return result, nil
}

func (r *Resolver) identify(ctx context.Context, session *csrf.Session, state, code string) (*oidc.Identity, error) {
	const op = "Resolver.identify"
	start := time.Now()
	defer func() {
		metrics.ProviderRequestDuration.Observe(time.Since(start).Seconds())
	}()
	ctx, cancel := context.WithTimeout(ctx, r.exchangeTimeout)
	defer cancel()

	tk, err := r.auth.Exchange(ctx, session, state, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	id, err := r.auth.UserInfo(ctx, tk)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// deliver sends the result through the interaction's reply handle while it
// is valid, and to the fallback channel otherwise.
func (r *Resolver) deliver(ctx context.Context, link *linkstore.PendingLink, id *oidc.Identity) error {
	const op = "Resolver.deliver"
	// the browser may go away; the chat message should still be sent.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.deliveryTimeout)
	defer cancel()

	content := fmt.Sprintf("Your account is now linked to %s (%s).", id.Username(), id.Subject)

	route, send := metrics.RouteFallback, func() error {
		if link.FallbackChannelID == "" {
			return errors.New("no fallback channel")
		}
		return r.poster.Post(ctx, link.FallbackChannelID, chat.Message{
			Content:       content,
			MentionUserID: link.ChatUserID,
		})
	}
	if link.Reply != nil && !link.Reply.Expired() {
		route, send = metrics.RouteFollowUp, func() error {
			return link.Reply.FollowUp(ctx, chat.Message{Content: content, Ephemeral: true})
		}
	}
	if err := send(); err != nil {
		metrics.LinkDeliveriesTotal.WithLabelValues(route, "failure").Inc()
		return fmt.Errorf("%s: %s: %s: %w", op, route, err, ErrDeliveryFailure)
	}
	metrics.LinkDeliveriesTotal.WithLabelValues(route, "success").Inc()
	return nil
}
