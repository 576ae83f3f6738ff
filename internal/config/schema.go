// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

// configSchema documents and validates every field in Config: an inline
// JSON-Schema string compiled with santhosh-tekuri/jsonschema/v5.
var configSchema = `
	{
  "type": "object",
  "properties": {
    "event_port": {
      "description": "UDP bind port for the datagram event feed.",
      "type": "integer"
    },
    "ws_port": {
      "description": "WebSocket bind port for client fan-out.",
      "type": "integer"
    },
    "ctl_port": {
      "description": "TCP port the control-surface client connects to.",
      "type": "integer"
    },
    "bind_host": {
      "description": "Bind address shared by all listening ports.",
      "type": "string"
    },
    "document_path": {
      "description": "Path to the project document parsed by the document parser.",
      "type": "string"
    },
    "gap_threshold": {
      "description": "Sequence gap size that triggers reconciliation.",
      "type": "integer"
    },
    "broadcast_debounce_ms": {
      "description": "Outbound coalescing window for the broadcast hub.",
      "type": "integer"
    },
    "volume_debounce_ms": {
      "description": "Debounce delay for continuous-control events (volume, device parameters).",
      "type": "integer"
    },
    "tempo_debounce_ms": {
      "description": "Debounce delay for tempo events.",
      "type": "integer"
    },
    "client_queue_capacity": {
      "description": "Per-client outbound send queue capacity.",
      "type": "integer"
    },
    "snapshot_threshold": {
      "description": "Diff size above which a full snapshot is sent instead of a diff update.",
      "type": "integer"
    },
    "batch_flush_timeout_ms": {
      "description": "Timeout after which an open batch context force-flushes.",
      "type": "integer"
    },
    "reconcile_node_error_threshold": {
      "description": "Number of node_not_found warnings within one second that trigger reconciliation.",
      "type": "integer"
    },
    "idle_timeout_sec": {
      "description": "Interval in seconds between liveness pings sent to each client, regardless of traffic.",
      "type": "integer"
    },
    "ping_timeout_sec": {
      "description": "Seconds to wait for a pong before disconnecting an unresponsive client.",
      "type": "integer"
    },
    "ingress_rate_per_sec": {
      "description": "Token-bucket steady rate bounding datagram decode work per second.",
      "type": "number"
    },
    "ingress_burst": {
      "description": "Token-bucket burst size for the ingress rate limiter.",
      "type": "integer"
    },
    "snap_cache_size": {
      "description": "Maximum number of serialized FULL_AST payloads kept warm by the snapshot cache.",
      "type": "integer"
    },
    "snap_cache_ttl": {
      "description": "TTL (as a Go duration string) for cached snapshot payloads.",
      "type": "string"
    },
    "metrics_addr": {
      "description": "If non-empty, bind address of a separate listener serving the Prometheus /metrics endpoint; /healthz stays on the WebSocket listener.",
      "type": "string"
    },
    "nats": {
      "description": "Optional NATS mirror configuration; address left empty disables the mirror.",
      "type": "object"
    }
	},
  "required": ["document_path"]
	}`
