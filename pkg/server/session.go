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

// Package server implements the server side of the framework: the
// per-connection Session, the Message Server that owns the socket/uid/
// channel registries and the receive pipeline, and the Cluster
// Dispatcher that lets one node's Message Server reach peers in the
// same group (spec.md §4.3–§4.5).
package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/wsfabric/pkg/codec"
)

// defaultReqIDCache is the number of recent request ids a session
// remembers for duplicate detection when a server is constructed
// without an explicit override.
const defaultReqIDCache = 32

// Session holds the per-connection state the spec describes: identity,
// an optional uid binding, a scratch context map, channel membership,
// a bounded ring of recently seen request ids, and the last heartbeat
// timestamp used by the supervisor cycle.
type Session struct {
	id   string
	ip   string
	conn *websocket.Conn

	connMu sync.Mutex

	codec *codec.Codec

	uidMu sync.RWMutex
	uid   string

	contextMu sync.RWMutex
	context   map[string]interface{}

	channelsMu sync.Mutex
	channels   map[string]struct{}

	reqIDMu      sync.Mutex
	recentReqIDs []uint64
	reqIDCache   int

	heartMu   sync.RWMutex
	lastHeart time.Time
}

func newSession(id string, conn *websocket.Conn, c *codec.Codec, reqIDCache int, ip string) *Session {
	if reqIDCache <= 0 {
		reqIDCache = defaultReqIDCache
	}
	return &Session{
		id:         id,
		ip:         ip,
		conn:       conn,
		codec:      c,
		context:    make(map[string]interface{}),
		channels:   make(map[string]struct{}),
		reqIDCache: reqIDCache,
		lastHeart:  time.Now(),
	}
}

// ID returns the session's generated identifier.
func (s *Session) ID() string { return s.id }

// IP returns the session's normalized remote address.
func (s *Session) IP() string { return s.ip }

// UID returns the bound application identity, or "" if unbound.
func (s *Session) UID() string {
	s.uidMu.RLock()
	defer s.uidMu.RUnlock()
	return s.uid
}

func (s *Session) setUID(uid string) {
	s.uidMu.Lock()
	s.uid = uid
	s.uidMu.Unlock()
}

// Context returns the value stored under key in the session's scratch
// map, if any.
func (s *Session) Context(key string) (interface{}, bool) {
	s.contextMu.RLock()
	defer s.contextMu.RUnlock()
	v, ok := s.context[key]
	return v, ok
}

// SetContext stores a value in the session's scratch map.
func (s *Session) SetContext(key string, value interface{}) {
	s.contextMu.Lock()
	s.context[key] = value
	s.contextMu.Unlock()
}

func (s *Session) joinChannel(name string) {
	s.channelsMu.Lock()
	s.channels[name] = struct{}{}
	s.channelsMu.Unlock()
}

func (s *Session) quitChannel(name string) {
	s.channelsMu.Lock()
	delete(s.channels, name)
	s.channelsMu.Unlock()
}

// EachChannel calls fn once for every channel the session currently
// belongs to.
func (s *Session) EachChannel(fn func(name string)) {
	s.channelsMu.Lock()
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	s.channelsMu.Unlock()

	for _, name := range names {
		fn(name)
	}
}

// updateReqID records id as seen and reports whether it was already
// present. The ring holds at most reqIDCache entries; on overflow the
// oldest half is dropped rather than shifting one at a time.
func (s *Session) updateReqID(id uint64) (duplicate bool) {
	s.reqIDMu.Lock()
	defer s.reqIDMu.Unlock()

	for _, seen := range s.recentReqIDs {
		if seen == id {
			return true
		}
	}

	s.recentReqIDs = append(s.recentReqIDs, id)
	if len(s.recentReqIDs) > s.reqIDCache {
		half := len(s.recentReqIDs) / 2
		s.recentReqIDs = append([]uint64(nil), s.recentReqIDs[half:]...)
	}
	return false
}

// UpdateHeart records the current time as the session's last heartbeat.
func (s *Session) UpdateHeart() {
	s.heartMu.Lock()
	s.lastHeart = time.Now()
	s.heartMu.Unlock()
}

// LastHeart returns the last recorded heartbeat time.
func (s *Session) LastHeart() time.Time {
	s.heartMu.RLock()
	defer s.heartMu.RUnlock()
	return s.lastHeart
}

// IsExpired reports whether the session's last heartbeat is older than
// timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	return time.Since(s.LastHeart()) > timeout
}

// Send encodes and writes a packet on route to this session's socket.
func (s *Session) Send(route string, reqID uint64, message interface{}) error {
	return s.sendPacket(&codec.Packet{Route: route, ReqID: reqID, Message: message})
}

func (s *Session) sendPacket(p *codec.Packet) error {
	data, binary, err := s.codec.Encode(p)
	if err != nil {
		return err
	}

	frameType := websocket.TextMessage
	if binary {
		frameType = websocket.BinaryMessage
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn.WriteMessage(frameType, data)
}

// Close sends a close frame with the given code/reason and closes the
// underlying connection.
func (s *Session) Close(code int, reason string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	return s.conn.Close()
}

// resolveIP implements spec.md §3's Session.ip rule: prefer the first
// comma-separated value of forwardHeader (if configured and present on
// the upgrade request), else fall back to the TCP peer address taken
// from conn. Either way the result is run through normalizeIP.
func resolveIP(r *http.Request, conn *websocket.Conn, forwardHeader string) string {
	if forwardHeader != "" {
		if v := r.Header.Get(forwardHeader); v != "" {
			first := strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
			if first != "" {
				return normalizeIP(first)
			}
		}
	}
	return normalizeIP(conn.RemoteAddr().String())
}

// normalizeIP strips the port (if any) from a remote address,
// collapses an IPv4-mapped IPv6 representation ("::ffff:a.b.c.d") down
// to its IPv4 form, and folds the IPv6 loopback "::1" to "127.0.0.1",
// per spec.md §3.
func normalizeIP(addr string) string {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() && ip.To4() == nil {
			return "127.0.0.1"
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return host
}
