// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package linking

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/chatlink/chat"
	"github.com/hashicorp/chatlink/linkstore"
	"github.com/hashicorp/chatlink/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://chatlink.example.com"

func TestNewCommandHandler(t *testing.T) {
	t.Parallel()
	store := linkstore.NewMemoryStore()
	tests := []struct {
		name      string
		store     linkstore.Store
		baseURL   string
		wantIsErr error
	}{
		{name: "valid", store: store, baseURL: testBaseURL + "/"},
		{name: "nil-store", baseURL: testBaseURL, wantIsErr: oidc.ErrNilParameter},
		{name: "relative-url", store: store, baseURL: "/chatlink", wantIsErr: oidc.ErrInvalidParameter},
		{name: "empty-url", store: store, wantIsErr: oidc.ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewCommandHandler(tt.store, tt.baseURL)
			if tt.wantIsErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantIsErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testBaseURL+"/login/abc", got.LoginURL("abc"))
		})
	}
}

func TestCommandHandler_Start(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("replies-privately-with-login-url", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		store := linkstore.NewMemoryStore()
		h, err := NewCommandHandler(store, testBaseURL)
		require.NoError(err)
		reply := &chat.TestReplier{}

		token, err := h.Start(ctx, Invocation{
			User:      chat.User{ID: "u-1", Name: "bob"},
			Reply:     reply,
			ChannelID: "chan-1",
			Locale:    "de",
		})
		require.NoError(err)
		require.NotEmpty(token)

		replies := reply.Replies()
		require.Len(replies, 1)
		assert.True(replies[0].Ephemeral)
		assert.Contains(replies[0].Content, testBaseURL+"/login/"+token)

		link, err := store.Get(ctx, token)
		require.NoError(err)
		assert.Equal("u-1", link.ChatUserID)
		assert.Equal("bob", link.ChatUserName)
		assert.Equal("chan-1", link.FallbackChannelID)
		assert.Equal("de", link.Locale)
		assert.Same(reply, link.Reply)
		assert.Equal(1, store.Len())
	})
	t.Run("one-link-per-invocation", func(t *testing.T) {
		require := require.New(t)
		store := linkstore.NewMemoryStore()
		h, err := NewCommandHandler(store, testBaseURL)
		require.NoError(err)
		seen := map[string]bool{}
		for i := 0; i < 20; i++ {
			token, err := h.Start(ctx, Invocation{User: chat.User{ID: "u-1"}, Reply: &chat.TestReplier{}})
			require.NoError(err)
			require.False(seen[token])
			seen[token] = true
		}
		assert.Equal(t, 20, store.Len())
	})
	t.Run("reply-failure-keeps-link", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		store := linkstore.NewMemoryStore()
		h, err := NewCommandHandler(store, testBaseURL)
		require.NoError(err)
		replyErr := errors.New("interaction unknown")

		token, err := h.Start(ctx, Invocation{User: chat.User{ID: "u-1"}, Reply: &chat.TestReplier{Err: replyErr}})
		require.Error(err)
		assert.ErrorIs(err, replyErr)
		_, err = store.Get(ctx, token)
		assert.NoError(err)
	})
	t.Run("invalid-invocation", func(t *testing.T) {
		store := linkstore.NewMemoryStore()
		h, err := NewCommandHandler(store, testBaseURL)
		require.NoError(t, err)

		_, err = h.Start(ctx, Invocation{User: chat.User{ID: "u-1"}})
		assert.ErrorIs(t, err, oidc.ErrNilParameter)
		_, err = h.Start(ctx, Invocation{Reply: &chat.TestReplier{}})
		assert.ErrorIs(t, err, oidc.ErrInvalidParameter)
		assert.Equal(t, 0, store.Len())
	})
	t.Run("url-safe-token", func(t *testing.T) {
		store := linkstore.NewMemoryStore()
		h, err := NewCommandHandler(store, testBaseURL)
		require.NoError(t, err)
		reply := &chat.TestReplier{}
		token, err := h.Start(ctx, Invocation{User: chat.User{ID: "u-1"}, Reply: reply})
		require.NoError(t, err)
		assert.False(t, strings.ContainsAny(token, "/+=?#"))
	})
}
