// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// chatlink links an account on a chat platform to an account at an OpenID
// Connect provider.
//
// A user runs the link command in chat and gets a one-time login URL back.
// The URL starts an authorization code flow (with nonce and PKCE) whose state
// is the pending link's token. When the provider redirects back, the
// callback is checked against signed cookies, the code is exchanged, and the
// verified identity is reported to the user in chat: as a follow-up to the
// original command while it can still be answered, in the command's channel
// otherwise.
//
// Packages:
//   - linkstore: pending links, keyed by token, expiring after a TTL
//   - csrf: the signed state, nonce and PKCE verifier cookies
//   - oidc: the provider adapter
//   - linking: the chat command handler and the callback resolver
//   - chat, chat/discord: the chat platform
//   - server: the http layer
//   - config: environment configuration
//
// The binary is cmd/chatlink.
package chatlink
