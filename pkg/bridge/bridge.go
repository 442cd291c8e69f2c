// wsfabric - clustered WebSocket messaging framework
// Copyright (C) 2025 wsfabric contributors
//
// This file is part of wsfabric.
//
// wsfabric is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// wsfabric is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public
// License along with wsfabric. If not, see <https://www.gnu.org/licenses/>.

// Package bridge implements the Bridge Client: a long-lived, reconnecting
// WebSocket client with request/response correlation, heartbeat,
// timeout sweeping, and pub/sub listener dispatch (spec.md §4.2). It is
// used both by end-user clients and, recursively, by a Message Server
// reaching a peer node's Message Server for cluster dispatch.
package bridge

import (
	"crypto/tls"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/wsfabric/internal/logger"
	"github.com/sage-x-project/wsfabric/internal/metrics"
	"github.com/sage-x-project/wsfabric/pkg/codec"
)

// Close codes owned by the Bridge Client side (spec.md §6).
const (
	CloseRetry   = 4101 // stale socket replaced before a reconnect attempt
	CloseRemote  = 4102 // remote closed the connection
	CloseError   = 4103 // client-observed transport error
	CloseExplicit = 4104 // Disconnect was called
)

// Config configures a Client. Zero values are replaced with the
// defaults spec.md §4.2 lists.
type Config struct {
	Host     string // http(s):// is normalized to ws(s)://
	Password string
	Binary   bool
	Timeout  time.Duration // per-request deadline, default 8s
	Heartick int           // heartbeat period in seconds, default 60
	Conntick int           // reconnect attempt period in seconds, default 3

	// InsecureSkipVerify disables TLS certificate verification for a
	// wss:// Host. Cluster peer links use this (spec.md §6: "peer
	// Bridge Clients accept self-signed certificates"); an end-user
	// client talking to a properly certified host should leave it
	// false.
	InsecureSkipVerify bool
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.Heartick <= 0 {
		c.Heartick = 60
	}
	if c.Conntick <= 0 {
		c.Conntick = 3
	}
	c.Host = normalizeScheme(c.Host)
	return c
}

func normalizeScheme(host string) string {
	switch {
	case strings.HasPrefix(host, "https://"):
		return "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		return "ws://" + strings.TrimPrefix(host, "http://")
	default:
		return host
	}
}

type pendingRequest struct {
	submittedAt time.Time
	onSuccess   func(codec.ResponseEnvelope, interface{})
	onError     func(codec.ResponseEnvelope, interface{})
	context     interface{}
}

type listener struct {
	fn   func(message interface{})
	once bool
}

// Callbacks are optional lifecycle hooks a caller can install before
// Connect.
type Callbacks struct {
	OnOpen  func()
	OnClose func(code int, reason string)
	OnError func(err error)
	OnRetry func(attempt int)
	OnTick  func(timerInc int64, netDelay time.Duration)
}

// Client is a Bridge Client instance (spec.md §4.2).
type Client struct {
	cfg    Config
	codec  *codec.Codec
	log    logger.Logger
	cb     Callbacks
	dialer *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	stateMu    sync.Mutex
	connected  bool
	paused     bool
	expired    bool
	retryCount int

	reqIDInc uint64
	timerInc int64

	netDelayMu sync.RWMutex
	netDelay   time.Duration

	pendingMu sync.Mutex
	pending   map[uint64]*pendingRequest

	listenersMu sync.Mutex
	listeners   map[string][]*listener

	latency *metrics.LatencyCollector

	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Client. It does not connect until Connect is called.
func New(cfg Config, cb Callbacks, log logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	cfg = cfg.withDefaults()
	dialer := *websocket.DefaultDialer
	if cfg.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Client{
		cfg:     cfg,
		codec:   codec.New(cfg.Password, cfg.Binary),
		log:     log,
		cb:      cb,
		dialer:  &dialer,
		pending: make(map[uint64]*pendingRequest),
		listeners: make(map[string][]*listener),
		latency: metrics.NewLatencyCollector(1000),
		stopCh:  make(chan struct{}),
	}
}

// IsConnected reports whether the underlying socket is currently open.
func (c *Client) IsConnected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.connected
}

// RetryCount returns the number of reconnect attempts since the last
// successful open.
func (c *Client) RetryCount() int {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.retryCount
}

// NetDelay returns the most recent round-trip estimate, updated by
// heartbeat and response receipt.
func (c *Client) NetDelay() time.Duration {
	c.netDelayMu.RLock()
	defer c.netDelayMu.RUnlock()
	return c.netDelay
}

func (c *Client) setNetDelay(d time.Duration) {
	c.netDelayMu.Lock()
	c.netDelay = d
	c.netDelayMu.Unlock()
	c.latency.Record(d)
}

// LatencySnapshot exposes the rolling average/p95 of recent round trips.
func (c *Client) LatencySnapshot() metrics.Snapshot {
	return c.latency.Snapshot()
}

// PauseReconnect stops the tick loop from attempting new connections
// until ResumeReconnect is called. It does not close an existing
// connection.
func (c *Client) PauseReconnect() {
	c.stateMu.Lock()
	c.paused = true
	c.stateMu.Unlock()
}

// ResumeReconnect re-enables reconnect attempts.
func (c *Client) ResumeReconnect() {
	c.stateMu.Lock()
	c.paused = false
	c.stateMu.Unlock()
}

// Connect installs the tick loop and opens the initial socket. Connect
// must not be called again after Disconnect.
func (c *Client) Connect() error {
	c.stateMu.Lock()
	if c.expired {
		c.stateMu.Unlock()
		return errClientExpired
	}
	c.stateMu.Unlock()

	c.ticker = time.NewTicker(1 * time.Second)
	c.wg.Add(1)
	go c.tickLoop()

	c.openSocket()
	return nil
}

// Disconnect permanently terminates the client. After Disconnect the
// instance is dead and must not be reused.
func (c *Client) Disconnect() {
	c.stateMu.Lock()
	if c.expired {
		c.stateMu.Unlock()
		return
	}
	c.expired = true
	c.stateMu.Unlock()

	close(c.stopCh)
	if c.ticker != nil {
		c.ticker.Stop()
	}
	c.closeConn(CloseExplicit, "client call")
	c.wg.Wait()
}
