// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package linkstore

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

func applyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil {
			continue
		}
		o(opts)
	}
}

type storeOptions struct {
	withTTL    time.Duration
	withLogger hclog.Logger
}

func storeDefaults() storeOptions {
	return storeOptions{
		withTTL:    DefaultTTL,
		withLogger: hclog.NewNullLogger(),
	}
}

func getStoreOpts(opt ...Option) storeOptions {
	opts := storeDefaults()
	applyOpts(&opts, opt...)
	return opts
}

type createOptions struct {
	withLocale string
}

func getCreateOpts(opt ...Option) createOptions {
	var opts createOptions
	applyOpts(&opts, opt...)
	return opts
}

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
//
// Valid for: NewMemoryStore
func WithTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && d > 0 {
			o.withTTL = d
		}
	}
}

// WithLogger provides an optional logger.
//
// Valid for: NewMemoryStore
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*storeOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithLocale records the chat user's locale on the pending link.
//
// Valid for: Store.Create
func WithLocale(locale string) Option {
	return func(o interface{}) {
		if o, ok := o.(*createOptions); ok {
			o.withLocale = locale
		}
	}
}
