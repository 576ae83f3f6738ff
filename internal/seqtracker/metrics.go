// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package seqtracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters/gauges for the sequence tracker: gaps and
// duplicates observed across all producer sources.
var (
	DuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dawsync",
		Subsystem: "ingress",
		Name:      "duplicate_events_total",
		Help:      "Datagrams dropped by the sequence tracker as duplicates.",
	})

	GapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dawsync",
		Subsystem: "ingress",
		Name:      "sequence_gaps_total",
		Help:      "Sequence gaps detected across all producer sources.",
	})

	MaxGapSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dawsync",
		Subsystem: "ingress",
		Name:      "sequence_max_gap",
		Help:      "Largest sequence gap observed since process start, across all sources.",
	})
)

// ObserveInstrumented wraps Tracker.Observe with the package-level Prometheus
// instrumentation so callers don't have to duplicate the bookkeeping at
// every call site.
func (t *Tracker) ObserveInstrumented(seq uint32) (Outcome, uint32) {
	outcome, gap := t.Observe(seq)
	switch outcome {
	case Duplicate:
		DuplicatesTotal.Inc()
	case Gap:
		GapsTotal.Inc()
		if float64(gap) > 0 {
			MaxGapSeen.Set(float64(t.maxGap))
		}
	}
	return outcome, gap
}
