// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tasks registers the process's periodic background jobs on a
// github.com/go-co-op/gocron/v2 scheduler: a package-level scheduler, one
// RegisterXService function per job, and a Start/Shutdown pair the main
// binary calls. Currently this covers periodic connected-client stats
// logging; the hub's own per-client ping/pong ticker in
// internal/broadcast/client.go already enforces liveness, this job only
// summarizes it for operators.
package tasks

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/cckit/dawsync/pkg/log"
)

var scheduler gocron.Scheduler

// HubStats is the subset of internal/broadcast.Hub the stats job reports
// on; kept as an interface here to avoid importing internal/broadcast
// (the hub already imports internal/debounce and internal/tree, and
// gaining a reverse dependency on internal/tasks would create a cycle
// with no benefit).
type HubStats interface {
	ClientCount() int
}

// Start creates the scheduler and registers the stats-logging job at
// interval. A zero interval disables the job entirely (Start still
// creates the scheduler so Shutdown is always safe to call).
func Start(hub HubStats, interval time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	scheduler = s

	if interval > 0 {
		registerStatsService(hub, interval)
	}

	scheduler.Start()
	return nil
}

func registerStatsService(hub HubStats, interval time.Duration) {
	log.Infof("tasks: registering periodic stats service with %s interval", interval)

	scheduler.NewJob(gocron.DurationJob(interval),
		gocron.NewTask(func() {
			log.Infof("tasks: %d connected client(s)", hub.ClientCount())
		}))
}

// Shutdown stops the scheduler, if one was started.
func Shutdown() {
	if scheduler != nil {
		scheduler.Shutdown()
	}
}
