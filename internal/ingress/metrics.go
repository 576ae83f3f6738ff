// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package ingress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dawsync",
		Subsystem: "ingress",
		Name:      "datagrams_received_total",
		Help:      "UDP datagrams received by the ingress service.",
	})

	MalformedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dawsync",
		Subsystem: "ingress",
		Name:      "datagrams_malformed_total",
		Help:      "Datagrams rejected by the wire codec or envelope decoder.",
	})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dawsync",
		Subsystem: "ingress",
		Name:      "datagrams_rate_limited_total",
		Help:      "Datagrams dropped by the token-bucket guard.",
	})
)
