// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingress implements the Ingress Service: the UDP receive loop
// that decodes the sequence envelope, runs it through a token-bucket
// guard and the per-source Sequence Tracker, and forwards fresh events
// downstream.
package ingress

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/cckit/dawsync/internal/seqtracker"
	"github.com/cckit/dawsync/internal/wireformat"
	"github.com/cckit/dawsync/pkg/log"
)

// Event is one decoded, fresh inner event handed to the dispatcher. Gap is
// nonzero when the Sequence Tracker detected a gap immediately preceding
// this event on the same source. A gap never blocks delivery: fresh
// messages are always forwarded downstream regardless of gap size.
type Event struct {
	Source    string
	Seq       uint32
	Timestamp float64
	Address   string
	Args      []wireformat.Arg
	Gap       uint32
}

// Handler consumes one fresh event. Implemented by internal/dispatch;
// kept as a function type here to avoid an import cycle between ingress
// and dispatch.
type Handler func(Event)

// GapHandler is invoked whenever the tracker for source reports a gap of
// at least the configured threshold, triggering reconciliation.
type GapHandler func(source string, gap uint32)

// Config bounds the Service's rate limiting and gap-reporting behavior.
type Config struct {
	ListenAddr   string
	RatePerSec   float64
	Burst        int
	GapThreshold uint32

	// CumulativeLossLimit/CumulativeLossWindow cover the slow-bleed case:
	// many small gaps, each below GapThreshold, that together exceed the
	// limit within the window also trigger reconciliation.
	CumulativeLossLimit  uint32
	CumulativeLossWindow time.Duration
}

// Service owns the UDP socket, the rate limiter, and the per-source
// Sequence Tracker registry.
type Service struct {
	cfg      Config
	conn     *net.UDPConn
	limiter  *rate.Limiter
	registry *seqtracker.Registry
	handler  Handler
	onGap    GapHandler

	// Rolling window of sub-threshold losses, touched only from the
	// single receive loop.
	lossAt    []time.Time
	lossSizes []uint32
}

// New resolves and opens the UDP listen socket described by cfg.
func New(cfg Config, handler Handler, onGap GapHandler) (*Service, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	if cfg.CumulativeLossLimit == 0 {
		cfg.CumulativeLossLimit = 10
	}
	if cfg.CumulativeLossWindow <= 0 {
		cfg.CumulativeLossWindow = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)

	return &Service{
		cfg:      cfg,
		conn:     conn,
		limiter:  limiter,
		registry: seqtracker.NewRegistry(),
		handler:  handler,
		onGap:    onGap,
	}, nil
}

// Close releases the UDP socket.
func (s *Service) Close() error {
	return s.conn.Close()
}

// Run reads datagrams until ctx is canceled. It is the single reader of
// the socket, so the per-source Trackers it owns need no internal
// locking.
func (s *Service) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, 65536)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warnf("ingress: read error: %v", err)
			continue
		}

		s.handleDatagram(src.String(), append([]byte(nil), buf[:n]...))
	}
}

func (s *Service) handleDatagram(source string, data []byte) {
	ReceivedTotal.Inc()

	if !s.limiter.Allow() {
		RateLimitedTotal.Inc()
		log.Warnf("ingress: rate limit exceeded, dropping datagram from %s", source)
		return
	}

	env, err := wireformat.DecodeEnvelope(data)
	if err != nil {
		MalformedTotal.Inc()
		log.Warnf("ingress: malformed datagram from %s: %v", source, err)
		return
	}

	tracker := s.registry.For(source)
	outcome, gap := tracker.ObserveInstrumented(env.Seq)
	if outcome == seqtracker.Duplicate {
		return
	}

	if outcome == seqtracker.Gap && s.onGap != nil {
		if gap >= s.cfg.GapThreshold {
			s.onGap(source, gap)
		} else if s.noteLoss(gap) {
			s.onGap(source, gap)
		}
	}

	s.handler(Event{
		Source:    source,
		Seq:       env.Seq,
		Timestamp: env.Timestamp,
		Address:   env.Address,
		Args:      env.Args,
		Gap:       gap,
	})
}

// noteLoss records a sub-threshold gap in the rolling window and reports
// whether the window's cumulative loss now exceeds the limit. On a hit
// the window is reset so one slow bleed triggers one reconciliation, not
// one per subsequent datagram.
func (s *Service) noteLoss(gap uint32) bool {
	now := time.Now()
	cutoff := now.Add(-s.cfg.CumulativeLossWindow)

	keptAt := s.lossAt[:0]
	keptSizes := s.lossSizes[:0]
	for i, at := range s.lossAt {
		if at.After(cutoff) {
			keptAt = append(keptAt, at)
			keptSizes = append(keptSizes, s.lossSizes[i])
		}
	}
	s.lossAt = append(keptAt, now)
	s.lossSizes = append(keptSizes, gap)

	var total uint32
	for _, sz := range s.lossSizes {
		total += sz
	}
	if total > s.cfg.CumulativeLossLimit {
		s.lossAt = s.lossAt[:0]
		s.lossSizes = s.lossSizes[:0]
		return true
	}
	return false
}
