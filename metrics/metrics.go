// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package metrics holds chatlink's Prometheus collectors. They are registered
// with the default registry and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for LinkOutcomesTotal.
const (
	OutcomeLinked          = "linked"
	OutcomeInvalidLink     = "invalid_link"
	OutcomeCSRFMismatch    = "csrf_mismatch"
	OutcomeDenied          = "denied"
	OutcomeExchangeFailure = "exchange_failure"
)

// Delivery route labels for LinkDeliveriesTotal.
const (
	RouteFollowUp = "follow_up"
	RouteFallback = "fallback"
)

var (
	LinksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatlink_links_created_total",
		Help: "The total number of pending links created by the link command",
	})

	LinksEvictedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatlink_links_evicted_total",
		Help: "The total number of pending links removed from the store, by reason (expired, deleted)",
	}, []string{"reason"})

	LinkOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatlink_callback_outcomes_total",
		Help: "The total number of OIDC callbacks handled, by outcome",
	}, []string{"outcome"})

	LinkDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatlink_deliveries_total",
		Help: "The total number of link results delivered to chat, by route and status (success, failure)",
	}, []string{"route", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatlink_http_requests_total",
		Help: "The total number of http requests served, by route and status code",
	}, []string{"route", "code"})

	ProviderRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatlink_provider_exchange_duration_seconds",
		Help:    "The time spent exchanging an authorization code and fetching user info",
		Buckets: prometheus.DefBuckets,
	})
)
