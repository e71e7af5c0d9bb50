// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package metrics defines the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsReceived counts raw packets read from the feed, by outcome.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawprint",
		Name:      "packets_received_total",
		Help:      "Raw APRS packets received from the feed, by outcome.",
	}, []string{"outcome"})

	// BeaconLines counts lines scanned by the log watcher, by outcome.
	BeaconLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawprint",
		Name:      "beacon_lines_total",
		Help:      "Transmitter log lines scanned, by outcome.",
	}, []string{"outcome"})

	// EventsPublished counts events enqueued to the live stream, by type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawprint",
		Name:      "events_published_total",
		Help:      "Events enqueued for live subscribers, by type.",
	}, []string{"type"})

	// EventsDropped counts events lost to a full broadcast queue or a slow
	// subscriber.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pawprint",
		Name:      "events_dropped_total",
		Help:      "Events dropped due to a full queue or slow subscriber.",
	})

	// Stations tracks the current station count.
	Stations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pawprint",
		Name:      "stations",
		Help:      "Currently known stations.",
	})

	// Subscribers tracks attached live-stream subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pawprint",
		Name:      "subscribers",
		Help:      "Attached live event stream subscribers.",
	})

	// FeedReconnects counts reconnect attempts to the feed.
	FeedReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pawprint",
		Name:      "feed_reconnects_total",
		Help:      "Reconnect attempts to the APRS-IS feed.",
	})

	// HTTPRequests counts API requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawprint",
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pawprint",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
)

// Outcome label values for the line and packet counters.
const (
	OutcomePosition  = "position"
	OutcomeMessage   = "message"
	OutcomeNoFix     = "no_fix"
	OutcomeMalformed = "malformed"
	OutcomeComment   = "comment"
)
