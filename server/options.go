// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultShutdownTimeout bounds a graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type options struct {
	withLogger          hclog.Logger
	withShutdownTimeout time.Duration
	withMetrics         bool
}

func getDefaults() options {
	return options{
		withLogger:          hclog.NewNullLogger(),
		withShutdownTimeout: DefaultShutdownTimeout,
		withMetrics:         true,
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
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithShutdownTimeout overrides DefaultShutdownTimeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && d > 0 {
			o.withShutdownTimeout = d
		}
	}
}

// WithMetrics controls whether /metrics is served. It's on by default.
func WithMetrics(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withMetrics = enabled
		}
	}
}
