// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package discord

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type options struct {
	withGuildID       string
	withCommandName   string
	withRemoveCommand bool
	withLogger        hclog.Logger
	withNow           func() time.Time
}

func getDefaults() options {
	return options{
		withCommandName: DefaultCommandName,
		withLogger:      hclog.NewNullLogger(),
		withNow:         time.Now,
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

// WithGuildID registers the command in a single guild instead of globally.
// Guild commands are available immediately, which helps during development.
func WithGuildID(id string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withGuildID = id
		}
	}
}

// WithCommandName overrides DefaultCommandName.
func WithCommandName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && name != "" {
			o.withCommandName = name
		}
	}
}

// WithRemoveCommandOnShutdown deletes the registered command when Run
// returns.
func WithRemoveCommandOnShutdown(remove bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withRemoveCommand = remove
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && now != nil {
			o.withNow = now
		}
	}
}
