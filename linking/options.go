// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package linking

import (
	"time"

	"github.com/hashicorp/chatlink/oidc"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultExchangeTimeout bounds the code exchange and user info request.
	DefaultExchangeTimeout = oidc.DefaultRequestTimeout

	// DefaultDeliveryTimeout bounds sending the result to chat.
	DefaultDeliveryTimeout = 10 * time.Second
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type options struct {
	withLogger          hclog.Logger
	withExchangeTimeout time.Duration
	withDeliveryTimeout time.Duration
}

func getDefaults() options {
	return options{
		withLogger:          hclog.NewNullLogger(),
		withExchangeTimeout: DefaultExchangeTimeout,
		withDeliveryTimeout: DefaultDeliveryTimeout,
	}
}

func getOpts(opt ...Option) options {
	opts := getDefaults()
	for _, o := range opt {
		if o != nil {
			o(&opts)
		}
	}
	return opts
}

// WithLogger provides an optional logger.
//
// Valid for: NewCommandHandler, NewResolver
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithExchangeTimeout overrides DefaultExchangeTimeout.
//
// Valid for: NewResolver
func WithExchangeTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && d > 0 {
			o.withExchangeTimeout = d
		}
	}
}

// WithDeliveryTimeout overrides DefaultDeliveryTimeout.
//
// Valid for: NewResolver
func WithDeliveryTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && d > 0 {
			o.withDeliveryTimeout = d
		}
	}
}
