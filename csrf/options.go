// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package csrf

import "time"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

type options struct {
	withSecure     bool
	withMaxAge     time.Duration
	withCookiePath string
	withNow        func() time.Time
}

func getDefaults() options {
	return options{
		withMaxAge:     DefaultMaxAge,
		withCookiePath: "/",
		withNow:        time.Now,
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

// WithSecure marks cookies Secure. Enable it in production, where chatlink is
// served over https.
func WithSecure(secure bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withSecure = secure
		}
	}
}

// WithMaxAge overrides DefaultMaxAge. Values under a second are ignored.
func WithMaxAge(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && d >= time.Second {
			o.withMaxAge = d
		}
	}
}

// WithCookiePath sets the cookies' path, which is "/" by default.
func WithCookiePath(p string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && p != "" {
			o.withCookiePath = p
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
