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
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/wsfabric/pkg/codec"
)

func newTestServer(t *testing.T, cfg Config) (*MessageServer, *httptest.Server, func()) {
	t.Helper()
	ms := New(cfg, nil)
	ms.Start()
	srv := httptest.NewServer(ms.Handler())
	return ms, srv, func() {
		srv.Close()
		_ = ms.Close()
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestEchoRouteRoundTrip(t *testing.T) {
	ms, srv, cleanup := newTestServer(t, Config{})
	defer cleanup()

	ms.SetRouter("echo", func(s *Session, reqID uint64, message interface{}) (interface{}, error) {
		return message, nil
	})

	conn := dial(t, srv)
	defer conn.Close()

	c := codec.New("", false)
	out, _, err := c.Encode(&codec.Packet{Route: "echo", ReqID: 1, Message: "hi"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	resp, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, codec.RouteResponse, resp.Route)
	assert.EqualValues(t, 1, resp.ReqID)
}

func TestHeartbeatEcho(t *testing.T) {
	ms, srv, cleanup := newTestServer(t, Config{})
	defer cleanup()
	_ = ms

	conn := dial(t, srv)
	defer conn.Close()

	c := codec.New("", false)
	out, _, err := c.Encode(&codec.Packet{Route: codec.RouteHeartbeat, ReqID: 1, Message: time.Now().UnixMilli()})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	resp, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, codec.RouteHeartbeat, resp.Route)
}

func TestDuplicateReqIDClosesWithRepeatCode(t *testing.T) {
	ms, srv, cleanup := newTestServer(t, Config{})
	defer cleanup()

	ms.SetRouter("echo", func(s *Session, reqID uint64, message interface{}) (interface{}, error) {
		return message, nil
	})

	conn := dial(t, srv)
	defer conn.Close()

	c := codec.New("", false)
	out, _, err := c.Encode(&codec.Packet{Route: "echo", ReqID: 9, Message: "a"})
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %v", err)
	assert.Equal(t, CloseRepeatReqID, closeErr.Code)
}

func TestUIDDisplacementClosesOldWithNewBindCode(t *testing.T) {
	ms, srv, cleanup := newTestServer(t, Config{})
	defer cleanup()

	ms.SetRouter("bind", func(s *Session, reqID uint64, message interface{}) (interface{}, error) {
		ms.BindUID(s, message.(string), true)
		return "ok", nil
	})

	connA := dial(t, srv)
	defer connA.Close()
	connB := dial(t, srv)
	defer connB.Close()

	c := codec.New("", false)

	bind := func(conn *websocket.Conn, reqID uint64) {
		out, _, err := c.Encode(&codec.Packet{Route: "bind", ReqID: reqID, Message: "same-uid"})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))
		_, _, err = conn.ReadMessage()
		require.NoError(t, err)
	}

	bind(connA, 1)
	bind(connB, 1)

	_, _, err := connA.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected connA to be closed, got %v", err)
	assert.Equal(t, CloseNewBind, closeErr.Code)
}

// TestUIDDisplacementWithoutCloseLeavesOldConnected covers spec.md
// §4.4's bindUid(session, uid, closeOld) with closeOld=false: the
// displaced session loses its uid binding but is never closed.
func TestUIDDisplacementWithoutCloseLeavesOldConnected(t *testing.T) {
	ms, srv, cleanup := newTestServer(t, Config{})
	defer cleanup()

	accepted := make(chan *Session, 2)
	ms.SetListeners(Listeners{OnConnect: func(s *Session) { accepted <- s }})

	connA := dial(t, srv)
	defer connA.Close()
	sessA := <-accepted

	connB := dial(t, srv)
	defer connB.Close()
	sessB := <-accepted

	ms.BindUID(sessA, "same-uid", true)
	ms.BindUID(sessB, "same-uid", false)

	assert.Equal(t, "", sessA.UID())
	assert.Equal(t, "same-uid", sessB.UID())

	bySocket, ok := ms.SessionByID(sessA.ID())
	assert.True(t, ok, "displaced session must remain tracked since it was not closed")
	assert.Equal(t, sessA, bySocket)
}

func TestHeartbeatTimeoutClosesSession(t *testing.T) {
	ms, srv, cleanup := newTestServer(t, Config{Cycle: minCycle, Timeout: minTimeout})
	defer cleanup()
	_ = ms

	conn := dial(t, srv)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(minTimeout + minCycle + 5*time.Second))

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected timeout close, got %v", err)
	assert.Equal(t, CloseTimeout, closeErr.Code)
}

func TestUnknownRouteClosesWithRouteError(t *testing.T) {
	_, srv, cleanup := newTestServer(t, Config{})
	defer cleanup()

	conn := dial(t, srv)
	defer conn.Close()

	c := codec.New("", false)
	out, _, err := c.Encode(&codec.Packet{Route: "no-such-route", ReqID: 1, Message: "x"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %v", err)
	assert.Equal(t, CloseRouteError, closeErr.Code)
}

func TestChannelBroadcast(t *testing.T) {
	ms, srv, cleanup := newTestServer(t, Config{})
	defer cleanup()

	ms.SetRouter("join", func(s *Session, reqID uint64, message interface{}) (interface{}, error) {
		ms.JoinChannel(s, message.(string))
		return "ok", nil
	})

	connA := dial(t, srv)
	defer connA.Close()
	connB := dial(t, srv)
	defer connB.Close()

	c := codec.New("", false)
	join := func(conn *websocket.Conn) {
		out, _, err := c.Encode(&codec.Packet{Route: "join", ReqID: 1, Message: "lobby"})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, out))
		_, _, err = conn.ReadMessage()
		require.NoError(t, err)
	}
	join(connA)
	join(connB)

	require.Eventually(t, func() bool {
		ms.mu.RLock()
		defer ms.mu.RUnlock()
		ch, ok := ms.channels["lobby"]
		return ok && ch.Count() == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, ms.PushChannel("lobby", "notice", "hello"))

	_, data, err := connA.ReadMessage()
	require.NoError(t, err)
	p, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "notice", p.Route)
	assert.Equal(t, "hello", p.Message)
}

// TestBroadcastOnlyReachesUIDBoundSessions covers spec.md §4.4's
// explicit filter: a session without a bound uid is never a broadcast
// target, even though it is still a live, tracked socket.
func TestBroadcastOnlyReachesUIDBoundSessions(t *testing.T) {
	ms, srv, cleanup := newTestServer(t, Config{})
	defer cleanup()

	ms.SetRouter("bind", func(s *Session, reqID uint64, message interface{}) (interface{}, error) {
		ms.BindUID(s, message.(string), true)
		return "ok", nil
	})

	bound := dial(t, srv)
	defer bound.Close()
	unbound := dial(t, srv)
	defer unbound.Close()

	c := codec.New("", false)
	out, _, err := c.Encode(&codec.Packet{Route: "bind", ReqID: 1, Message: "u1"})
	require.NoError(t, err)
	require.NoError(t, bound.WriteMessage(websocket.TextMessage, out))
	_, _, err = bound.ReadMessage()
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ms.BoundSessionCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, ms.Broadcast("announce", "hi"))

	_, data, err := bound.ReadMessage()
	require.NoError(t, err)
	p, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "announce", p.Route)

	_ = unbound.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = unbound.ReadMessage()
	assert.Error(t, err, "unbound session must not receive the broadcast")
}
