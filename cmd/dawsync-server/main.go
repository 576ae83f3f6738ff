// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/cckit/dawsync/internal/broadcast"
	"github.com/cckit/dawsync/internal/config"
	"github.com/cckit/dawsync/internal/ctlclient"
	"github.com/cckit/dawsync/internal/debounce"
	"github.com/cckit/dawsync/internal/dispatch"
	"github.com/cckit/dawsync/internal/docparser"
	"github.com/cckit/dawsync/internal/ingress"
	"github.com/cckit/dawsync/internal/runtimeEnv"
	"github.com/cckit/dawsync/internal/snapcache"
	"github.com/cckit/dawsync/internal/tasks"
	"github.com/cckit/dawsync/internal/tree"
	"github.com/cckit/dawsync/internal/util"
	"github.com/cckit/dawsync/internal/watcher"
	"github.com/cckit/dawsync/pkg/log"
	"github.com/cckit/dawsync/pkg/nats"
)

// docparserCacheSize bounds C5's parsed-tree-by-content-hash cache; unlike
// the broadcast snapshot cache (config.Keys.SnapCacheSize), this one has no
// config knob of its own since it is an implementation detail of re-parsing
// an unchanged file on repeated reconciliation triggers, not a tunable with
// operational consequences worth exposing.
const docparserCacheSize = 16

func main() {
	var flagGops bool
	var flagConfigFile, flagLogLevel string
	var flagLogDate bool
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Path to the JSON configuration file")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "One of debug, info, notice, warn, err, crit")
	flag.BoolVar(&flagLogDate, "logdate", false, "Prefix log lines with a timestamp instead of relying on systemd")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDate)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing './.env' file failed: %s", err.Error())
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("config: %s", err.Error())
	}

	var natsClient *nats.Client
	if nats.Keys.Address != "" {
		nats.Connect()
		natsClient = nats.GetClient()
	}

	if !util.CheckFileExists(config.Keys.DocumentPath) {
		log.Fatalf("docparser: document %s does not exist; check document_path in %s", config.Keys.DocumentPath, flagConfigFile)
	}
	log.Debugf("docparser: document %s is %d bytes on disk", config.Keys.DocumentPath, util.GetFilesize(config.Keys.DocumentPath))

	parser := docparser.NewParser(docparserCacheSize)
	initialTree, err := parser.Parse(config.Keys.DocumentPath)
	if err != nil {
		log.Fatalf("docparser: initial parse of %s failed: %s", config.Keys.DocumentPath, err.Error())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mut := tree.NewMutator(ctx, initialTree, 256)
	debouncer := debounce.New()

	snapTTL, err := time.ParseDuration(config.Keys.SnapCacheTTLs)
	if err != nil {
		log.Warnf("config: snap_cache_ttl %q invalid, defaulting to 5s: %s", config.Keys.SnapCacheTTLs, err.Error())
		snapTTL = 5 * time.Second
	}
	snapCache := snapcache.New(config.Keys.SnapCacheSize, snapTTL)

	hub := broadcast.New(mut, debouncer, natsClient, snapCache, broadcast.Config{
		QueueCapacity:     config.Keys.ClientQueueCapacity,
		SnapshotThreshold: config.Keys.SnapshotThreshold,
		BroadcastDelay:    time.Duration(config.Keys.BroadcastDebounceMs) * time.Millisecond,
		IdleTimeout:       time.Duration(config.Keys.IdleTimeoutSec) * time.Second,
		PingTimeout:       time.Duration(config.Keys.PingTimeoutSec) * time.Second,
		NatsSubject:       natsMirrorSubject(natsClient),
	})

	watch := watcher.New(config.Keys.DocumentPath, parser, mut, debouncer,
		500*time.Millisecond,
		hub.BroadcastBatch,
		func(err error) {
			hub.BroadcastError("reconciliation failed", err.Error())
		})
	watch.Start()

	// Reconciliation triggered from the ingress/dispatch hot paths runs
	// off-loop: a large document parse must not stall datagram receive.
	reconcileAsync := func() { go watch.Reconcile() }

	disp := dispatch.New(mut, debouncer, dispatchSink(hub), reconcileAsync, dispatch.Config{
		VolumeDebounce:              time.Duration(config.Keys.VolumeDebounceMs) * time.Millisecond,
		ParamDebounce:               time.Duration(config.Keys.VolumeDebounceMs) * time.Millisecond,
		TempoDebounce:               time.Duration(config.Keys.TempoDebounceMs) * time.Millisecond,
		BatchFlushTimeout:           time.Duration(config.Keys.BatchFlushTimeoutMs) * time.Millisecond,
		ReconcileNodeErrorThreshold: config.Keys.ReconcileNodeErrorsN,
		ReconcileNodeErrorWindow:    time.Second,
	})

	ingressAddr := fmt.Sprintf("%s:%d", config.Keys.BindHost, config.Keys.EventPort)
	ingressSvc, err := ingress.New(ingress.Config{
		ListenAddr:   ingressAddr,
		RatePerSec:   config.Keys.IngressRatePerSec,
		Burst:        config.Keys.IngressBurst,
		GapThreshold: uint32(config.Keys.GapThreshold),
	}, func(ev ingress.Event) {
		disp.Dispatch(ctx, ev)
	}, func(source string, gap uint32) {
		log.Warnf("ingress: gap of %d from %s, triggering reconciliation", gap, source)
		hub.BroadcastError("SequenceGap", fmt.Sprintf("gap of %d from %s, reconciling", gap, source))
		reconcileAsync()
	})
	if err != nil {
		log.Fatalf("ingress: %s", err.Error())
	}

	ctl := ctlclient.New(fmt.Sprintf("%s:%d", config.Keys.BindHost, config.Keys.CtlPort), 2*time.Second)
	if p, err := ctl.ProjectPath(); err == nil && p != "" {
		log.Infof("ctlclient: control surface reports project path %s", p)
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", hub.ServeWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if config.Keys.MetricsAddr == "" {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.HandleFunc("/ctl/observers/{action}", observerRelayHandler(ctl)).Methods(http.MethodPost, http.MethodGet)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	loggedRouter := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	wsAddr := fmt.Sprintf("%s:%d", config.Keys.BindHost, config.Keys.WsPort)
	wsServer := &http.Server{
		Addr:         wsAddr,
		Handler:      loggedRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived.
	}

	if err := tasks.Start(hub, 30*time.Second); err != nil {
		log.Fatalf("tasks: %s", err.Error())
	}

	// metrics_addr set: /metrics gets its own listener instead of riding
	// the client-facing WS port, so scraping stays up independent of it.
	var metricsServer *http.Server
	if config.Keys.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:        config.Keys.MetricsAddr,
			Handler:     metricsMux,
			ReadTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("ingress: listening for datagrams on %s", ingressAddr)
		return ingressSvc.Run(gctx)
	})

	if metricsServer != nil {
		g.Go(func() error {
			log.Infof("metrics: prometheus endpoint listening on %s", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Infof("broadcast: websocket/metrics server listening on %s", wsAddr)
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-sigs:
		}
		runtimeEnv.SystemdNotifiy(false, "shutting down")
		cancel()
		util.FsWatcherShutdown()
		ingressSvc.Close()
		hub.Shutdown()
		debouncer.Shutdown()
		tasks.Shutdown()
		ctl.Close()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if metricsServer != nil {
			metricsServer.Shutdown(shutdownCtx)
		}
		return wsServer.Shutdown(shutdownCtx)
	})

	runtimeEnv.SystemdNotifiy(true, "running")
	if err := g.Wait(); err != nil {
		log.Errorf("dawsync-server: %s", err.Error())
	}
	log.Print("Graceful shutdown completed!")
}

// dispatchSink adapts the Hub's per-kind Broadcast methods to the
// dispatcher's single-function Sink, covering its three output shapes:
// change, selection, and transient.
func dispatchSink(hub *broadcast.Hub) dispatch.Sink {
	return func(o dispatch.Output) {
		switch o.Kind {
		case dispatch.OutputChange:
			hub.BroadcastChange(o.Change)
		case dispatch.OutputSelection:
			hub.BroadcastSelection(selectionAddress(o.Selection), o.Selection, o.Seq)
		case dispatch.OutputTransient:
			hub.BroadcastTransient(transientAddress(o.Transient), o.Transient, o.Seq)
		}
	}
}

func selectionAddress(s dispatch.SelectionChange) string {
	return "/daw/selection/" + s.Kind
}

func transientAddress(t dispatch.TransientTrigger) string {
	return "/daw/transient/" + t.Kind
}

// observerRelayHandler passes the observer-lifecycle subset of the
// control-surface contract through as HTTP: the producer-side logic lives
// in the external collaborator, this endpoint only forwards and reports.
func observerRelayHandler(ctl *ctlclient.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var resp ctlclient.Response
		var err error
		switch mux.Vars(r)["action"] {
		case "start":
			resp, err = ctl.StartObservers()
		case "stop":
			resp, err = ctl.StopObservers()
		case "refresh":
			resp, err = ctl.RefreshObservers()
		case "status":
			resp, err = ctl.ObserverStatus()
		default:
			http.Error(w, "unknown observer action", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "ControlSurfaceUnavailable", "detail": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(resp)
	}
}

// natsMirrorSubject returns the fixed mirror subject when a NATS client is
// configured, or "" to leave the hub's mirroring disabled. NATS is an
// optional out-of-band side-channel with no operator-facing subject
// naming need, so one fixed constant is used rather than a config key.
func natsMirrorSubject(c *nats.Client) string {
	if c == nil {
		return ""
	}
	return "dawsync.broadcast"
}
