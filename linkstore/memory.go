// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package linkstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/chatlink/chat"
	"github.com/hashicorp/chatlink/metrics"
	"github.com/hashicorp/chatlink/sdk/id"
	"github.com/hashicorp/go-hclog"
	"github.com/jellydator/ttlcache/v3"
)

// maxTokenAttempts bounds how many times Create draws a new token after a
// collision.
const maxTokenAttempts = 3

var errTokenCollision = errors.New("token collision")

// MemoryStore is a Store for a single process. Links expire after the
// configured TTL; expired links are invisible to readers immediately and are
// swept from memory while the store is started.
type MemoryStore struct {
	// mu serializes the check-then-act sequences of Create and
	// MarkResponded. The cache has its own locking for everything else.
	mu     sync.Mutex
	cache  *ttlcache.Cache[string, *PendingLink]
	ttl    time.Duration
	logger hclog.Logger

	newToken func() (string, error)

	runMu   sync.Mutex
	running bool
	stopped bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore. Call Start to begin sweeping expired
// links and Stop to release it.
//
// Supported options:
//   - WithTTL
//   - WithLogger
func NewMemoryStore(opt ...Option) *MemoryStore {
	opts := getStoreOpts(opt...)
	s := &MemoryStore{
		cache: ttlcache.New[string, *PendingLink](
			ttlcache.WithTTL[string, *PendingLink](opts.withTTL),
			ttlcache.WithDisableTouchOnHit[string, *PendingLink](),
		),
		ttl:    opts.withTTL,
		logger: opts.withLogger,
		newToken: func() (string, error) {
			return id.New("")
		},
	}
	s.cache.OnEviction(s.onEviction)
	return s
}

func (s *MemoryStore) onEviction(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *PendingLink]) {
	link := item.Value()
	switch reason {
	case ttlcache.EvictionReasonExpired:
		metrics.LinksEvictedTotal.WithLabelValues("expired").Inc()
		s.logger.Debug("pending link expired", "chat_user_id", link.ChatUserID, "age", time.Since(link.CreatedAt).String())
	default:
		metrics.LinksEvictedTotal.WithLabelValues("deleted").Inc()
		s.logger.Trace("pending link removed", "chat_user_id", link.ChatUserID)
	}
}

// Start sweeps expired links until Stop is called. It blocks, so it's
// usually run in its own goroutine. Calls after the first, or after Stop,
// return immediately.
func (s *MemoryStore) Start() {
	s.runMu.Lock()
	if s.running || s.stopped {
		s.runMu.Unlock()
		return
	}
	s.running = true
	s.runMu.Unlock()
	s.cache.Start()
}

// Stop ends the sweep started by Start. It is safe to call more than once
// and before Start.
func (s *MemoryStore) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.running {
		s.cache.Stop()
	}
}

// TTL returns how long a pending link lives.
func (s *MemoryStore) TTL() time.Duration { return s.ttl }

// Len returns the number of links held, including expired links which have
// not been swept yet.
func (s *MemoryStore) Len() int { return s.cache.Len() }

// Create allocates a fresh token for a new pending link.
//
// Supported options:
//   - WithLocale
func (s *MemoryStore) Create(ctx context.Context, chatUserID, chatUserName string, reply chat.Replier, fallbackChannelID string, opt ...Option) (string, error) {
	const op = "MemoryStore.Create"
	opts := getCreateOpts(opt...)
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		token, err := s.newToken()
		if err != nil {
			return "", fmt.Errorf("%s: unable to generate token: %w", op, err)
		}
		err = s.insert(&PendingLink{
			Token:             token,
			ChatUserID:        chatUserID,
			ChatUserName:      chatUserName,
			Reply:             reply,
			FallbackChannelID: fallbackChannelID,
			Locale:            opts.withLocale,
			CreatedAt:         time.Now(),
		})
		switch {
		case errors.Is(err, errTokenCollision):
			s.logger.Warn("pending link token collision, drawing a new token")
			continue
		case err != nil:
			return "", fmt.Errorf("%s: %w", op, err)
		}
		metrics.LinksCreatedTotal.Inc()
		return token, nil
	}
	return "", fmt.Errorf("%s: unable to allocate a unique token after %d attempts: %w", op, maxTokenAttempts, errTokenCollision)
}

func (s *MemoryStore) insert(link *PendingLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Get(link.Token) != nil {
		return errTokenCollision
	}
	s.cache.Set(link.Token, link, ttlcache.DefaultTTL)
	return nil
}

// Get returns a copy of the pending link.
func (s *MemoryStore) Get(ctx context.Context, token string) (*PendingLink, error) {
	const op = "MemoryStore.Get"
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.cache.Get(token)
	if item == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	cp := *item.Value()
	return &cp, nil
}

// MarkResponded claims the pending link for delivery. Only the first caller
// gets first == true. The link's expiry is unchanged.
func (s *MemoryStore) MarkResponded(ctx context.Context, token string) (bool, error) {
	const op = "MemoryStore.MarkResponded"
	s.mu.Lock()
	defer s.mu.Unlock()
	item := s.cache.Get(token)
	if item == nil {
		return false, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	link := item.Value()
	if link.Responded {
		return false, nil
	}
	link.Responded = true
	return true, nil
}

// Remove deletes the pending link.
func (s *MemoryStore) Remove(ctx context.Context, token string) error {
	s.cache.Delete(token)
	return nil
}
