// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cckit/dawsync/pkg/log"
)

// writeTimeout bounds every frame write to a client; a write that can't
// complete within it marks the client a slow consumer and disconnects it.
const writeTimeout = 5 * time.Second

// client wraps one WebSocket connection with a bounded outbound queue.
// Backpressure policy: when the queue is full, the oldest queued
// diff_update frame is dropped to make room for the new one; if nothing
// droppable remains (the queue holds only FULL_AST, ERROR and live_event
// frames, none of which are ever dropped), the client is disconnected as
// a slow consumer.
type client struct {
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	queue  []frame
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn) *client {
	return &client{
		hub:    hub,
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// enqueue appends f to the client's queue, applying the drop-oldest-diff
// backpressure policy when the queue is at capacity. Returns false if the
// client was disconnected as a slow consumer.
func (c *client) enqueue(f frame) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}

	if len(c.queue) >= c.hub.queueCapacity {
		evicted := false
		for i, qf := range c.queue {
			if qf.Type == frameDiffUpdate {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				DroppedFramesTotal.Inc()
				QueueDepth.Dec()
				evicted = true
				break
			}
		}
		if !evicted {
			dropped := len(c.queue)
			c.queue = nil
			c.mu.Unlock()
			QueueDepth.Sub(float64(dropped))
			SlowConsumerDisconnectsTotal.Inc()
			log.Warnf("broadcast: client queue saturated with non-droppable frames, disconnecting as slow consumer")
			c.hub.removeClient(c)
			return false
		}
	}

	c.queue = append(c.queue, f)
	c.mu.Unlock()

	QueueDepth.Inc()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

func (c *client) popAll() []frame {
	c.mu.Lock()
	out := c.queue
	c.queue = nil
	c.mu.Unlock()
	QueueDepth.Sub(float64(len(out)))
	return out
}

func (c *client) markClosed() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

// writePump drains the queue to the socket and drives the ping/pong
// liveness sweep (idle_timeout_sec/ping_timeout_sec).
func (c *client) writePump(idleTimeout, pingTimeout time.Duration) {
	pingTicker := time.NewTicker(idleTimeout)
	defer pingTicker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			return
		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pingTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.removeClient(c)
				return
			}
		case <-c.notify:
			for _, f := range c.popAll() {
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				var err error
				if f.raw != nil {
					err = c.conn.WriteMessage(websocket.TextMessage, f.raw)
				} else {
					err = c.conn.WriteJSON(f)
				}
				if err != nil {
					SlowConsumerDisconnectsTotal.Inc()
					log.Warnf("broadcast: write failed, dropping client as slow consumer: %v", err)
					c.hub.removeClient(c)
					return
				}
			}
		}
	}
}

// readPump only exists to observe pong frames (resetting the read
// deadline) and connection close; clients never send application data.
func (c *client) readPump(idleTimeout, pingTimeout time.Duration) {
	defer c.hub.removeClient(c)
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout + pingTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(idleTimeout + pingTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
