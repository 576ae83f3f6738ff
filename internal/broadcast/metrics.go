// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dawsync",
		Subsystem: "broadcast",
		Name:      "connected_clients",
		Help:      "Number of currently connected WebSocket clients.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dawsync",
		Subsystem: "broadcast",
		Name:      "queue_depth_total",
		Help:      "Sum of per-client outbound queue depth across all connected clients.",
	})

	DroppedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dawsync",
		Subsystem: "broadcast",
		Name:      "dropped_frames_total",
		Help:      "Diff frames dropped from a full client queue (oldest-diff eviction).",
	})

	SlowConsumerDisconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dawsync",
		Subsystem: "broadcast",
		Name:      "slow_consumer_disconnects_total",
		Help:      "Clients disconnected for failing to drain their outbound queue.",
	})
)
