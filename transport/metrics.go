// Copyright 2026 The Scopelink Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the transport's instrumentation. A nil Registerer in
// the Config yields unregistered (but still functional) collectors, so
// instrumented code never branches on whether metrics are wired.
type metrics struct {
	roundTrips    *prometheus.CounterVec
	reconnects    prometheus.Counter
	probeFailures prometheus.Counter
	duration      prometheus.Histogram
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	factory := promauto.With(registerer)
	return &metrics{
		roundTrips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scopelink_round_trips_total",
			Help: "Round trips on the control channel by result.",
		}, []string{"result"}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "scopelink_reconnects_total",
			Help: "Successful reconnections after an I/O failure.",
		}),
		probeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scopelink_probe_failures_total",
			Help: "Health probes that failed.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scopelink_round_trip_duration_seconds",
			Help:    "Duration of complete round trips.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}
