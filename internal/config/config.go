// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cckit/dawsync/pkg/nats"
)

// Config is the top-level process configuration, loaded from a JSON file
// and validated against configSchema.
type Config struct {
	EventPort int    `json:"event_port"`
	WsPort    int    `json:"ws_port"`
	CtlPort   int    `json:"ctl_port"`
	BindHost  string `json:"bind_host"`

	DocumentPath string `json:"document_path"`

	GapThreshold         int `json:"gap_threshold"`
	BroadcastDebounceMs  int `json:"broadcast_debounce_ms"`
	VolumeDebounceMs     int `json:"volume_debounce_ms"`
	TempoDebounceMs      int `json:"tempo_debounce_ms"`
	ClientQueueCapacity  int `json:"client_queue_capacity"`
	SnapshotThreshold    int `json:"snapshot_threshold"`
	BatchFlushTimeoutMs  int `json:"batch_flush_timeout_ms"`
	ReconcileNodeErrorsN int `json:"reconcile_node_error_threshold"`

	IdleTimeoutSec int `json:"idle_timeout_sec"`
	PingTimeoutSec int `json:"ping_timeout_sec"`

	// IngressRatePerSec / IngressBurst bound the token-bucket guard in
	// front of the Sequence Tracker.
	IngressRatePerSec float64 `json:"ingress_rate_per_sec"`
	IngressBurst      int     `json:"ingress_burst"`

	SnapCacheSize int    `json:"snap_cache_size"`
	SnapCacheTTLs string `json:"snap_cache_ttl"`

	MetricsAddr string `json:"metrics_addr"`

	Nats nats.NatsConfig `json:"nats"`
}

// defaultKeys is the zero-config baseline Init decodes onto; Keys itself
// is reset to this before every Init call so repeated Init calls (as in
// tests) don't leak fields from a previously loaded file.
var defaultKeys = Config{
	EventPort: 9002,
	WsPort:    8765,
	CtlPort:   9001,
	BindHost:  "127.0.0.1",

	GapThreshold:         5,
	BroadcastDebounceMs:  50,
	VolumeDebounceMs:     50,
	TempoDebounceMs:      100,
	ClientQueueCapacity:  64,
	SnapshotThreshold:    200,
	BatchFlushTimeoutMs:  500,
	ReconcileNodeErrorsN: 2,

	IdleTimeoutSec: 60,
	PingTimeoutSec: 10,

	IngressRatePerSec: 2000,
	IngressBurst:      500,

	SnapCacheSize: 8,
	SnapCacheTTLs: "5s",

	MetricsAddr: "",
}

// Keys holds the active configuration. Mutated only by Init, before any
// component starts.
var Keys = defaultKeys

// Init loads flagConfigFile over the defaults in Keys, validating it
// against configSchema first: read the file, reject unknown fields,
// require the one field (the document path) that has no sane default.
func Init(flagConfigFile string) error {
	Keys = defaultKeys

	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", flagConfigFile, err)
	}

	if err := Validate(configSchema, raw); err != nil {
		return fmt.Errorf("config: schema validation failed: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}

	if Keys.DocumentPath == "" {
		return fmt.Errorf("config: document_path is required")
	}

	if err := nats.Init(rawNatsConfig(raw)); err != nil {
		return fmt.Errorf("config: nats: %w", err)
	}

	return nil
}

// rawNatsConfig re-extracts the "nats" sub-object as its own RawMessage so
// pkg/nats owns its own decode step, each subsystem's raw JSON fragment
// threaded through to its own Init.
func rawNatsConfig(raw []byte) json.RawMessage {
	var wrapper struct {
		Nats json.RawMessage `json:"nats"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil
	}
	return wrapper.Nats
}
