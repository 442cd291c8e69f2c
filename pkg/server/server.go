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

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/wsfabric/internal/logger"
	"github.com/sage-x-project/wsfabric/internal/metrics"
	"github.com/sage-x-project/wsfabric/pkg/codec"
)

// RouteHandler processes a packet addressed to a user-defined route. A
// non-nil return value is delivered back to the caller wrapped in a
// $response$ envelope; a non-nil error is delivered as an error
// envelope with codec.CodeGatewayTimeout.
type RouteHandler func(s *Session, reqID uint64, message interface{}) (interface{}, error)

// RemoteCallHandler services an inbound $innerRMC$ call for route.
// Returning an error sends the caller an error envelope with
// codec.CodeGatewayTimeout; the connection stays open. Only a call to a
// route with no registered handler closes the originating peer
// connection, with CloseRemoteError.
type RemoteCallHandler func(route string, message interface{}) (interface{}, error)

// Listeners are optional lifecycle hooks invoked as sessions connect,
// bind to a uid, and disconnect.
type Listeners struct {
	OnConnect    func(s *Session)
	OnBind       func(s *Session, uid string)
	OnDisconnect func(s *Session, code int, reason string)
}

// MessageServer owns the socket/uid/channel registries described in
// spec.md §4.3, decodes and routes every inbound packet, and runs the
// supervisor cycle that evicts sessions whose heartbeat has lapsed.
type MessageServer struct {
	cfg      Config
	codec    *codec.Codec
	upgrader websocket.Upgrader
	log      logger.Logger

	routerMu sync.RWMutex
	router   map[string]RouteHandler
	remote   map[string]RemoteCallHandler

	listeners Listeners

	mu       sync.RWMutex
	sockets  map[string]*Session // sessionId -> Session
	sessions map[string]*Session // uid -> Session
	channels map[string]*Channel // groupId -> Channel

	nextSessionID uint64 // spec.md §3: monotonically increasing, assigned at accept time

	dispatcher *ClusterDispatcher

	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a MessageServer. Call Start to begin the supervisor
// cycle before accepting connections.
func New(cfg Config, log logger.Logger) *MessageServer {
	if log == nil {
		log = logger.Default()
	}
	cfg = cfg.withDefaults()
	ms := &MessageServer{
		cfg:      cfg,
		codec:    codec.New(cfg.Password, cfg.Binary),
		log:      log,
		router:   make(map[string]RouteHandler),
		remote:   make(map[string]RemoteCallHandler),
		sockets:  make(map[string]*Session),
		sessions: make(map[string]*Session),
		channels: make(map[string]*Channel),
		stopCh:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	ms.dispatcher = newClusterDispatcher(ms, cfg.ClusterSecret)
	return ms
}

// SetRouter registers handler for route. Registering a reserved route
// (see codec.IsReserved) panics: those names are owned by the
// framework's inner dispatch.
func (ms *MessageServer) SetRouter(route string, handler RouteHandler) {
	if codec.IsReserved(route) {
		panic(fmt.Sprintf("server: route %q is reserved", route))
	}
	ms.routerMu.Lock()
	ms.router[route] = handler
	ms.routerMu.Unlock()
}

// SetRemote registers handler as the servicer of inbound $innerRMC$
// calls for route, per spec.md §4.4's "remote-handler map" — distinct
// from the user-route map SetRouter installs into.
func (ms *MessageServer) SetRemote(route string, handler RemoteCallHandler) {
	ms.routerMu.Lock()
	ms.remote[route] = handler
	ms.routerMu.Unlock()
}

// SetListeners installs lifecycle hooks, replacing any previously set.
func (ms *MessageServer) SetListeners(l Listeners) {
	ms.listeners = l
}

// Dispatcher returns the cluster dispatcher for registering peer
// groups and issuing remote calls.
func (ms *MessageServer) Dispatcher() *ClusterDispatcher { return ms.dispatcher }

// Start begins the supervisor cycle. It must be called once before the
// server is considered live.
func (ms *MessageServer) Start() {
	ms.ticker = time.NewTicker(ms.cfg.Cycle)
	ms.wg.Add(1)
	go ms.superviseLoop()
}

// Close stops the supervisor cycle, disconnects every cluster peer's
// Bridge Client, and closes every tracked session.
func (ms *MessageServer) Close() error {
	close(ms.stopCh)
	if ms.ticker != nil {
		ms.ticker.Stop()
	}
	ms.wg.Wait()

	ms.dispatcher.mu.RLock()
	var peers []*Peer
	for _, group := range ms.dispatcher.clusters {
		peers = append(peers, group...)
	}
	ms.dispatcher.mu.RUnlock()
	for _, p := range peers {
		p.Client.Disconnect()
	}

	ms.mu.Lock()
	sockets := make([]*Session, 0, len(ms.sockets))
	for _, s := range ms.sockets {
		sockets = append(sockets, s)
	}
	ms.mu.Unlock()

	for _, s := range sockets {
		ms.removeSession(s, CloseSocketError, "server shutdown")
	}
	return nil
}

// Handler returns the http.Handler that upgrades connections and runs
// the per-connection receive loop.
func (ms *MessageServer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ms.upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, fmt.Sprintf("websocket upgrade failed: %v", err), http.StatusBadRequest)
			return
		}

		ip := resolveIP(r, conn, ms.cfg.ForwardHeader)
		id := strconv.FormatUint(atomic.AddUint64(&ms.nextSessionID, 1), 10)
		s := newSession(id, conn, ms.codec, ms.cfg.ReqIDCache, ip)

		ms.mu.Lock()
		ms.sockets[s.id] = s
		ms.mu.Unlock()

		metrics.SessionsAccepted.Inc()
		metrics.SessionsActive.Inc()

		if ms.listeners.OnConnect != nil {
			ms.listeners.OnConnect(s)
		}

		ms.receiveLoop(s)
	})
}

func (ms *MessageServer) receiveLoop(s *Session) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			ms.removeSession(s, CloseSocketError, "read error")
			return
		}
		ms.handleFrame(s, data)
	}
}

func (ms *MessageServer) handleFrame(s *Session, data []byte) {
	p, err := ms.codec.Decode(data)
	if err != nil {
		metrics.PacketsRouted.WithLabelValues("decode", "error").Inc()
		ms.removeSession(s, CloseParseError, "parse error")
		return
	}

	if err := codec.Validate(p); err != nil {
		metrics.PacketsRouted.WithLabelValues("validate", "error").Inc()
		ms.removeSession(s, CloseFormatError, "format error")
		return
	}

	if s.updateReqID(p.ReqID) {
		metrics.DuplicateRequestIDs.Inc()
		ms.removeSession(s, CloseRepeatReqID, "repeat reqId")
		return
	}

	ms.route(s, p)
}

// route dispatches a validated, non-duplicate packet in the priority
// order spec.md §4.4 defines: heartbeat, then the four inner cluster
// routes, then user routes.
func (ms *MessageServer) route(s *Session, p *codec.Packet) {
	switch p.Route {
	case codec.RouteHeartbeat:
		s.UpdateHeart()
		metrics.PacketsRouted.WithLabelValues("heartbeat", "ok").Inc()
		_ = s.Send(codec.RouteHeartbeat, p.ReqID, p.Message)
	case codec.RouteInnerP2P, codec.RouteInnerGRP, codec.RouteInnerALL:
		metrics.PacketsRouted.WithLabelValues("cluster", "ok").Inc()
		ms.dispatcher.handleInbound(p.Route, s, p)
	case codec.RouteInnerRMC:
		metrics.PacketsRouted.WithLabelValues("rmc", "ok").Inc()
		ms.dispatcher.handleInboundRMC(s, p)
	default:
		ms.routeUser(s, p)
	}
}

func (ms *MessageServer) routeUser(s *Session, p *codec.Packet) {
	ms.routerMu.RLock()
	handler, ok := ms.router[p.Route]
	ms.routerMu.RUnlock()

	if !ok {
		metrics.PacketsRouted.WithLabelValues("user", "unknown_route").Inc()
		ms.removeSession(s, CloseRouteError, "unknown route")
		return
	}

	start := time.Now()
	result, err := handler(s, p.ReqID, p.Message)
	metrics.RouteDispatchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PacketsRouted.WithLabelValues("user", "error").Inc()
		_ = s.Send(codec.RouteResponse, p.ReqID, codec.NewErrorResponse(codec.CodeGatewayTimeout, err.Error()))
		return
	}

	metrics.PacketsRouted.WithLabelValues("user", "ok").Inc()
	_ = s.Send(codec.RouteResponse, p.ReqID, codec.NewResponse(result))
}

func (ms *MessageServer) removeSession(s *Session, code int, reason string) {
	ms.mu.Lock()
	_, tracked := ms.sockets[s.id]
	delete(ms.sockets, s.id)
	if uid := s.UID(); uid != "" {
		if bound, ok := ms.sessions[uid]; ok && bound.id == s.id {
			delete(ms.sessions, uid)
			metrics.SessionsBound.Dec()
		}
	}
	ms.mu.Unlock()

	if !tracked {
		return
	}

	s.EachChannel(func(name string) { ms.quitChannel(s, name) })

	_ = s.Close(code, reason)
	metrics.SessionsActive.Dec()
	metrics.SessionsClosed.WithLabelValues(fmt.Sprint(code)).Inc()

	if ms.listeners.OnDisconnect != nil {
		ms.listeners.OnDisconnect(s, code, reason)
	}
}

// BindUID binds uid to s, displacing any session previously bound to
// the same uid. Per spec.md §4.4's bindUid(session, uid, closeOld), the
// displaced session is always unbound first; closeOld then decides
// whether it is also closed with CloseNewBind or simply left connected
// with no uid.
func (ms *MessageServer) BindUID(s *Session, uid string, closeOld bool) {
	ms.mu.Lock()
	old, existed := ms.sessions[uid]
	ms.sessions[uid] = s
	ms.mu.Unlock()

	if existed && old.id != s.id {
		old.setUID("")
		if closeOld {
			ms.removeSession(old, CloseNewBind, "newbind")
		}
	} else {
		metrics.SessionsBound.Inc()
	}

	s.setUID(uid)

	if ms.listeners.OnBind != nil {
		ms.listeners.OnBind(s, uid)
	}
}

// UnbindUID releases s's uid binding, if any.
func (ms *MessageServer) UnbindUID(s *Session) {
	uid := s.UID()
	if uid == "" {
		return
	}
	ms.mu.Lock()
	if bound, ok := ms.sessions[uid]; ok && bound.id == s.id {
		delete(ms.sessions, uid)
		metrics.SessionsBound.Dec()
	}
	ms.mu.Unlock()
	s.setUID("")
}

// SessionCount returns the number of currently tracked connections.
func (ms *MessageServer) SessionCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.sockets)
}

// BoundSessionCount returns the number of sessions currently bound to a uid.
func (ms *MessageServer) BoundSessionCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.sessions)
}

// ChannelCount returns the number of channels with at least one member.
func (ms *MessageServer) ChannelCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.channels)
}

// SessionByUID looks up the session currently bound to uid.
func (ms *MessageServer) SessionByUID(uid string) (*Session, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	s, ok := ms.sessions[uid]
	return s, ok
}

// SessionByID looks up a tracked session by its generated id.
func (ms *MessageServer) SessionByID(id string) (*Session, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	s, ok := ms.sockets[id]
	return s, ok
}

// JoinChannel adds s to the named channel, creating it if this is the
// first member.
func (ms *MessageServer) JoinChannel(s *Session, name string) {
	ms.mu.Lock()
	ch, ok := ms.channels[name]
	if !ok {
		ch = newChannel(name)
		ms.channels[name] = ch
		metrics.ChannelsActive.Inc()
	}
	ms.mu.Unlock()

	ch.add(s)
	s.joinChannel(name)
}

func (ms *MessageServer) quitChannel(s *Session, name string) {
	ms.mu.RLock()
	ch, ok := ms.channels[name]
	ms.mu.RUnlock()
	if !ok {
		return
	}

	if ch.remove(s) {
		ms.mu.Lock()
		if cur, ok := ms.channels[name]; ok && cur == ch {
			delete(ms.channels, name)
			metrics.ChannelsActive.Dec()
		}
		ms.mu.Unlock()
	}
	s.quitChannel(name)
}

// QuitChannel removes s from the named channel.
func (ms *MessageServer) QuitChannel(s *Session, name string) {
	ms.quitChannel(s, name)
}

func (ms *MessageServer) superviseLoop() {
	defer ms.wg.Done()
	for {
		select {
		case <-ms.stopCh:
			return
		case <-ms.ticker.C:
			ms.sweepExpiredSessions()
		}
	}
}

func (ms *MessageServer) sweepExpiredSessions() {
	ms.mu.RLock()
	candidates := make([]*Session, 0, len(ms.sockets))
	for _, s := range ms.sockets {
		candidates = append(candidates, s)
	}
	ms.mu.RUnlock()

	for _, s := range candidates {
		if s.IsExpired(ms.cfg.Timeout) {
			ms.removeSession(s, CloseTimeout, "heartbeat timeout")
		}
	}
}
