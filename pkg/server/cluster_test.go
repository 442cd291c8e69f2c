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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/wsfabric/pkg/bridge"
	"github.com/sage-x-project/wsfabric/pkg/codec"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClusterP2PFanOutWithoutCallback(t *testing.T) {
	peerA, srvA, cleanupA := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanupA()
	peerB, srvB, cleanupB := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanupB()

	var mu sync.Mutex
	var gotA, gotB []interface{}
	peerA.Dispatcher().SetEventHandler(func(route string, message interface{}) {
		mu.Lock()
		gotA = append(gotA, message)
		mu.Unlock()
	})
	peerB.Dispatcher().SetEventHandler(func(route string, message interface{}) {
		mu.Lock()
		gotB = append(gotB, message)
		mu.Unlock()
	})

	source, srv, cleanup := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanup()

	_, err := source.Dispatcher().AddPeer("east", wsURL(srvA), bridge.Config{})
	require.NoError(t, err)
	_, err = source.Dispatcher().AddPeer("east", wsURL(srvB), bridge.Config{})
	require.NoError(t, err)
	_ = srv

	require.NoError(t, source.Dispatcher().P2P("east", "", "fanout-test", "payload"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotA) == 1 && len(gotB) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

// TestClusterP2PDeliversToUIDBoundPeerOnly exercises spec.md's E6
// scenario: a uid bound only on the second peer receives the pushed
// event on its own socket, while the first peer (which does not host
// the uid) simply no-ops.
func TestClusterP2PDeliversToUIDBoundPeerOnly(t *testing.T) {
	peerA, srvA, cleanupA := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanupA()
	peerB, srvB, cleanupB := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanupB()

	bound := make(chan *Session, 1)
	peerB.SetListeners(Listeners{
		OnConnect: func(s *Session) {
			peerB.BindUID(s, "u", true)
			bound <- s
		},
	})

	conn := dial(t, srvB)
	defer conn.Close()
	<-bound

	source, _, cleanup := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanup()

	_, err := source.Dispatcher().AddPeer("east", wsURL(srvA), bridge.Config{})
	require.NoError(t, err)
	_, err = source.Dispatcher().AddPeer("east", wsURL(srvB), bridge.Config{})
	require.NoError(t, err)

	require.NoError(t, source.Dispatcher().PushClusterSession("east", "u", "evt", map[string]float64{"x": 1}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	p, err := codec.New("", false).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "evt", p.Route)
	assert.Equal(t, map[string]interface{}{"x": float64(1)}, p.Message)
}

func TestClusterRMCReturnsRemoteResult(t *testing.T) {
	peer, srvPeer, cleanupPeer := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanupPeer()

	peer.SetRemote("double", func(route string, message interface{}) (interface{}, error) {
		n := message.(float64)
		return n * 2, nil
	})

	source, _, cleanup := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanup()

	_, err := source.Dispatcher().AddPeer("east", wsURL(srvPeer), bridge.Config{})
	require.NoError(t, err)

	resp, err := source.Dispatcher().RMC("east", "double", float64(21), time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 42, resp.Data, 0.001)
}

// TestClusterRMCIgnoresUserRoutes confirms $innerRMC$ dispatch only
// ever consults the remote-handler map (SetRemote), never the
// user-route map (SetRouter) the ordinary receive pipeline uses.
func TestClusterRMCIgnoresUserRoutes(t *testing.T) {
	peer, srvPeer, cleanupPeer := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanupPeer()

	peer.SetRouter("double", func(s *Session, reqID uint64, message interface{}) (interface{}, error) {
		n := message.(float64)
		return n * 2, nil
	})

	source, _, cleanup := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanup()

	_, err := source.Dispatcher().AddPeer("east", wsURL(srvPeer), bridge.Config{})
	require.NoError(t, err)

	_, err = source.Dispatcher().RMC("east", "double", float64(21), time.Second)
	assert.Error(t, err, "RMC must not reach a route registered only via SetRouter")
}

func TestClusterRMCUnknownRouteFails(t *testing.T) {
	_, srvPeer, cleanupPeer := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanupPeer()

	source, _, cleanup := newTestServer(t, Config{ClusterSecret: "s3cr3t"})
	defer cleanup()

	_, err := source.Dispatcher().AddPeer("east", wsURL(srvPeer), bridge.Config{})
	require.NoError(t, err)

	_, err = source.Dispatcher().RMC("east", "no-such-route", nil, time.Second)
	assert.Error(t, err)
}
