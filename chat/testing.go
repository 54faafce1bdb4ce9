// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package chat

import (
	"context"
	"sync"
)

// TestReplier is an in-memory Replier which records every message it's
// given. Set Err to make Reply and FollowUp fail.
type TestReplier struct {
	mu        sync.Mutex
	expired   bool
	replies   []Message
	followUps []Message

	// Err, when not nil, is returned by Reply and FollowUp.
	Err error
}

var _ Replier = (*TestReplier)(nil)

// SetExpired sets what Expired reports.
func (r *TestReplier) SetExpired(expired bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = expired
}

// Expired implements Replier.
func (r *TestReplier) Expired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expired
}

// Reply implements Replier.
func (r *TestReplier) Reply(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.replies = append(r.replies, m)
	return nil
}

// FollowUp implements Replier.
func (r *TestReplier) FollowUp(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.followUps = append(r.followUps, m)
	return nil
}

// Replies returns the messages sent with Reply.
func (r *TestReplier) Replies() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.replies...)
}

// FollowUps returns the messages sent with FollowUp.
func (r *TestReplier) FollowUps() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.followUps...)
}

// TestPost is a message sent with TestPoster.
type TestPost struct {
	ChannelID string
	Message   Message
}

// TestPoster is an in-memory Poster which records every post.
type TestPoster struct {
	mu    sync.Mutex
	posts []TestPost

	// Err, when not nil, is returned by Post.
	Err error
}

var _ Poster = (*TestPoster)(nil)

// Post implements Poster.
func (p *TestPoster) Post(_ context.Context, channelID string, m Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.posts = append(p.posts, TestPost{ChannelID: channelID, Message: m})
	return nil
}

// Posts returns every post.
func (p *TestPoster) Posts() []TestPost {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TestPost(nil), p.posts...)
}
