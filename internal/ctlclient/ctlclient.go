// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ctlclient implements the consumer side of the Control Surface
// contract, an external collaborator: a line-oriented TCP client that
// resolves GET_PROJECT_PATH at startup and relays the
// START_OBSERVERS/STOP_OBSERVERS/REFRESH_OBSERVERS/GET_OBSERVER_STATUS
// subset. This package does not implement the producer-side command
// logic; it is a thin pass-through client.
package ctlclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cckit/dawsync/pkg/log"
)

// Response is the generic shape of every control-surface reply: one JSON
// record per line with a mandatory success flag plus command-specific
// fields captured in Fields.
type Response struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Detail  string         `json:"detail,omitempty"`
	Fields  map[string]any `json:"-"`
}

// UnmarshalJSON captures success/error/detail into their named fields and
// everything else into Fields, since the control surface's per-command
// response shape (e.g. GET_PROJECT_PATH's "path") isn't contractual here.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["success"].(bool); ok {
		r.Success = v
	}
	if v, ok := raw["error"].(string); ok {
		r.Error = v
	}
	if v, ok := raw["detail"].(string); ok {
		r.Detail = v
	}
	delete(raw, "success")
	delete(raw, "error")
	delete(raw, "detail")
	r.Fields = raw
	return nil
}

// Client holds a lazily-(re)established connection to the control
// surface. One command runs at a time; the control surface is a simple
// request/response channel, not a multiplexed protocol.
type Client struct {
	addr    string
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
}

// New builds a Client targeting addr (host:port). The connection is
// established lazily on first Command call.
func New(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{addr: addr, timeout: timeout}
}

// Command sends name as a single line and returns the decoded response
// line. A connection is (re)established transparently if none is open or
// the previous one errored.
func (c *Client) Command(name string) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.dialLocked(); err != nil {
			return Response{}, fmt.Errorf("ctlclient: dial %s: %w", c.addr, err)
		}
	}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	if _, err := fmt.Fprintf(c.conn, "%s\n", name); err != nil {
		c.closeLocked()
		return Response{}, fmt.Errorf("ctlclient: write %s: %w", name, err)
	}

	line, err := c.rd.ReadString('\n')
	if err != nil {
		c.closeLocked()
		return Response{}, fmt.Errorf("ctlclient: read reply to %s: %w", name, err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return Response{}, fmt.Errorf("ctlclient: decode reply to %s: %w", name, err)
	}
	return resp, nil
}

func (c *Client) dialLocked() error {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return err
	}
	c.conn = conn
	c.rd = bufio.NewReader(conn)
	return nil
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.rd = nil
	}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.rd = nil
	return err
}

// ProjectPath resolves GET_PROJECT_PATH, the one command the core
// consumes directly to learn the document path.
func (c *Client) ProjectPath() (string, error) {
	resp, err := c.Command("GET_PROJECT_PATH")
	if err != nil {
		logUnavailable("GET_PROJECT_PATH", err)
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("ctlclient: GET_PROJECT_PATH failed: %s", resp.Error)
	}
	path, _ := resp.Fields["path"].(string)
	if path == "" {
		return "", fmt.Errorf("ctlclient: GET_PROJECT_PATH reply missing %q field", "path")
	}
	return path, nil
}

// StartObservers, StopObservers, RefreshObservers, and ObserverStatus
// relay the four observer-lifecycle commands that make up the Control
// Surface's contractual subset. They are thin pass-throughs; the actual
// observer attachment logic lives in the external collaborator. Failures
// are logged as control-surface-unavailable rather than escalated, since
// these commands are opportunistic from the core's point of view.

func (c *Client) StartObservers() (Response, error) { return c.relay("START_OBSERVERS") }

func (c *Client) StopObservers() (Response, error) { return c.relay("STOP_OBSERVERS") }

func (c *Client) RefreshObservers() (Response, error) { return c.relay("REFRESH_OBSERVERS") }

func (c *Client) ObserverStatus() (Response, error) { return c.relay("GET_OBSERVER_STATUS") }

func (c *Client) relay(name string) (Response, error) {
	resp, err := c.Command(name)
	if err != nil {
		logUnavailable(name, err)
	}
	return resp, err
}

// logUnavailable logs a control-surface-unavailable failure without
// treating it as fatal — the core can still run off a static
// document_path if the control surface never answers.
func logUnavailable(action string, err error) {
	log.Warnf("ctlclient: control surface unavailable during %s: %v", action, err)
}
