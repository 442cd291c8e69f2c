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
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sage-x-project/wsfabric/internal/logger"
	"github.com/sage-x-project/wsfabric/internal/metrics"
	"github.com/sage-x-project/wsfabric/pkg/bridge"
	"github.com/sage-x-project/wsfabric/pkg/codec"
)

// Peer is one other node in a fleet's cluster set: a fixed group name,
// its fleet URL, and the Bridge Client connection reaching it.
type Peer struct {
	Group  string
	URL    string
	Client *bridge.Client
}

// innerEnvelope is the payload carried inside $innerP2P$/$innerGRP$/
// $innerALL$/$innerRMC$ packets exchanged between nodes in a cluster,
// per spec.md §4.5.
type innerEnvelope struct {
	TID     string      `json:"tid,omitempty"`
	Route   string      `json:"route"`
	Message interface{} `json:"message"`
	Word    string      `json:"word"`
	Sign    string      `json:"sign"`
}

// ClusterDispatchCallback selects which peer within a group should
// receive a point-to-point or remote-method-call dispatch. It returns
// an index into that group's peer slice.
type ClusterDispatchCallback func(group, tid string, envelope interface{}) int

// ClusterEventHandler receives the route/message payload of an inbound
// P2P, group, or all-cluster fan-out notification from a peer.
type ClusterEventHandler func(route string, message interface{})

// ClusterDispatcher fans packets out to peer nodes in the same
// cluster group over its own Bridge Client connections, and answers
// inbound cluster traffic that peers' Bridge Clients deliver to this
// node's Message Server (spec.md §4.5).
type ClusterDispatcher struct {
	ms     *MessageServer
	secret string
	log    logger.Logger

	mu       sync.RWMutex
	clusters map[string][]*Peer

	dispatchCB   ClusterDispatchCallback
	eventHandler ClusterEventHandler
}

func newClusterDispatcher(ms *MessageServer, secret string) *ClusterDispatcher {
	return &ClusterDispatcher{
		ms:       ms,
		secret:   secret,
		log:      ms.log,
		clusters: make(map[string][]*Peer),
	}
}

// SetDispatchCallback installs the peer-selection hook used by P2P and
// RMC. With none installed, P2P fans out to every peer in the group
// and RMC targets a uniformly random peer in the group.
func (d *ClusterDispatcher) SetDispatchCallback(cb ClusterDispatchCallback) {
	d.mu.Lock()
	d.dispatchCB = cb
	d.mu.Unlock()
}

// SetEventHandler installs the callback invoked for inbound P2P/GRP/ALL
// notifications from peers.
func (d *ClusterDispatcher) SetEventHandler(h ClusterEventHandler) {
	d.mu.Lock()
	d.eventHandler = h
	d.mu.Unlock()
}

// AddPeer registers a peer node in group at url and connects a Bridge
// Client to it. The cluster set is expected to be fixed at startup
// from fleet configuration. Per spec.md §6, peer links accept
// self-signed certificates, so the Bridge Client's TLS verification is
// always disabled here regardless of what cfg carries in.
func (d *ClusterDispatcher) AddPeer(group, url string, cfg bridge.Config) (*Peer, error) {
	cfg.Host = url
	cfg.InsecureSkipVerify = true
	client := bridge.New(cfg, bridge.Callbacks{}, d.log)
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("cluster: connect to peer %s in group %s: %w", url, group, err)
	}

	peer := &Peer{Group: group, URL: url, Client: client}

	d.mu.Lock()
	d.clusters[group] = append(d.clusters[group], peer)
	d.mu.Unlock()

	metrics.ClusterPeersConnected.WithLabelValues(group).Inc()
	return peer, nil
}

// Peers returns a snapshot of the peers currently registered in group.
func (d *ClusterDispatcher) Peers(group string) []*Peer {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Peer, len(d.clusters[group]))
	copy(out, d.clusters[group])
	return out
}

// PeerCount returns the total number of peers registered across every
// cluster group.
func (d *ClusterDispatcher) PeerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, peers := range d.clusters {
		n += len(peers)
	}
	return n
}

func (d *ClusterDispatcher) sign(route, word string) string {
	sum := md5.Sum([]byte(route + word + d.secret))
	return hex.EncodeToString(sum[:])
}

func (d *ClusterDispatcher) buildEnvelope(tid, route string, message interface{}) innerEnvelope {
	word := uuid.NewString()
	return innerEnvelope{
		TID:     tid,
		Route:   route,
		Message: message,
		Word:    word,
		Sign:    d.sign(route, word),
	}
}

func (d *ClusterDispatcher) selectIndex(group, tid string, env innerEnvelope, n int) (int, bool) {
	d.mu.RLock()
	cb := d.dispatchCB
	d.mu.RUnlock()
	if cb == nil || n == 0 {
		return 0, cb != nil
	}
	idx := cb(group, tid, env) % n
	if idx < 0 {
		idx += n
	}
	return idx, true
}

// P2P sends message on route to whichever peer hosts the session bound
// to uid tid: the callback's chosen index if a ClusterDispatchCallback
// is installed, otherwise every peer in the group (the safe default
// absent a dispatch hint; peers that don't host tid simply no-op).
func (d *ClusterDispatcher) P2P(group, tid, route string, message interface{}) error {
	peers := d.Peers(group)
	if len(peers) == 0 {
		return fmt.Errorf("cluster: no peers registered in group %q", group)
	}

	env := d.buildEnvelope(tid, route, message)

	if idx, has := d.selectIndex(group, env.TID, env, len(peers)); has {
		return d.callRemote(peers[idx], codec.RouteInnerP2P, env)
	}
	return d.fanOut(peers, codec.RouteInnerP2P, env)
}

// GRP fans message out to every peer in group, addressed to channel
// tid; each peer delivers locally to whichever of its own sessions
// belong to that channel.
func (d *ClusterDispatcher) GRP(group, tid, route string, message interface{}) error {
	peers := d.Peers(group)
	env := d.buildEnvelope(tid, route, message)
	return d.fanOut(peers, codec.RouteInnerGRP, env)
}

// PushClusterSession is an alias for P2P matching spec.md's §4.5 naming.
func (d *ClusterDispatcher) PushClusterSession(group, uid, route string, message interface{}) error {
	return d.P2P(group, uid, route, message)
}

// PushClusterChannel is an alias for GRP matching spec.md's §4.5 naming.
func (d *ClusterDispatcher) PushClusterChannel(group, gid, route string, message interface{}) error {
	return d.GRP(group, gid, route, message)
}

// ClusterBroadcast is an alias for ALL matching spec.md's §4.5 naming.
func (d *ClusterDispatcher) ClusterBroadcast(route string, message interface{}) error {
	return d.ALL(route, message)
}

// ALL fans message out to every peer in every cluster group.
func (d *ClusterDispatcher) ALL(route string, message interface{}) error {
	d.mu.RLock()
	var all []*Peer
	for _, peers := range d.clusters {
		all = append(all, peers...)
	}
	d.mu.RUnlock()

	env := d.buildEnvelope("", route, message)
	return d.fanOut(all, codec.RouteInnerALL, env)
}

func (d *ClusterDispatcher) fanOut(peers []*Peer, opRoute string, env innerEnvelope) error {
	var firstErr error
	for _, p := range peers {
		if err := d.callRemote(p, opRoute, env); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RMC invokes route on one peer in group and waits for its result.
// Absent a ClusterDispatchCallback, spec.md §4.5 has callRemoteForResult
// pick a uniformly random peer in the group.
func (d *ClusterDispatcher) RMC(group, route string, message interface{}, timeout time.Duration) (codec.ResponseEnvelope, error) {
	peers := d.Peers(group)
	if len(peers) == 0 {
		return codec.ResponseEnvelope{}, fmt.Errorf("cluster: no peers registered in group %q", group)
	}

	env := d.buildEnvelope("", route, message)
	idx, has := d.selectIndex(group, "", env, len(peers))
	if !has {
		idx = rand.Intn(len(peers))
	}

	return d.callRemoteForResult(peers[idx], env, timeout)
}

// callRemote fires an envelope at a peer without waiting for any
// reply. Used by P2P, GRP, and ALL.
func (d *ClusterDispatcher) callRemote(p *Peer, opRoute string, env innerEnvelope) error {
	metrics.ClusterDispatches.WithLabelValues(opLabel(opRoute)).Inc()
	p.Client.Request(opRoute, env, nil, nil, nil)
	return nil
}

// callRemoteForResult fires an $innerRMC$ envelope at a peer and waits
// for its response, wrapping either outcome into a single
// codec.ResponseEnvelope result.
func (d *ClusterDispatcher) callRemoteForResult(p *Peer, env innerEnvelope, timeout time.Duration) (codec.ResponseEnvelope, error) {
	metrics.ClusterDispatches.WithLabelValues("rmc").Inc()
	start := time.Now()

	resultCh := make(chan codec.ResponseEnvelope, 1)
	p.Client.Request(codec.RouteInnerRMC, env,
		func(resp codec.ResponseEnvelope, _ interface{}) { resultCh <- resp },
		func(resp codec.ResponseEnvelope, _ interface{}) { resultCh <- resp },
		nil,
	)

	select {
	case resp := <-resultCh:
		metrics.ClusterRemoteCallDuration.Observe(time.Since(start).Seconds())
		if resp.Code != codec.CodeOK {
			return resp, fmt.Errorf("cluster: remote call failed: %v", resp.Data)
		}
		return resp, nil
	case <-time.After(timeout):
		return codec.ResponseEnvelope{}, fmt.Errorf("cluster: remote call to %s timed out", p.URL)
	}
}

func opLabel(route string) string {
	switch route {
	case codec.RouteInnerP2P:
		return "p2p"
	case codec.RouteInnerGRP:
		return "grp"
	case codec.RouteInnerALL:
		return "all"
	case codec.RouteInnerRMC:
		return "rmc"
	default:
		return "unknown"
	}
}

// handleInbound verifies an inbound $innerP2P$/$innerGRP$/$innerALL$
// notification arriving over a peer's Bridge Client connection and
// delivers it to the matching local registry, per spec.md §4.4: P2P to
// the uid-bound session named by env.TID, GRP to every member of the
// channel named by env.TID, ALL to every uid-bound local session. A
// peer that does not host the target simply no-ops (spec.md §4.5).
func (d *ClusterDispatcher) handleInbound(opRoute string, s *Session, p *codec.Packet) {
	env, err := decodeEnvelope(p.Message)
	if err != nil || d.sign(env.Route, env.Word) != env.Sign {
		d.ms.removeSession(s, CloseSignError, "sign error")
		return
	}

	switch opRoute {
	case codec.RouteInnerP2P:
		_ = d.ms.PushSession(env.TID, env.Route, env.Message)
	case codec.RouteInnerGRP:
		_ = d.ms.PushChannel(env.TID, env.Route, env.Message)
	case codec.RouteInnerALL:
		_ = d.ms.Broadcast(env.Route, env.Message)
	}

	d.mu.RLock()
	handler := d.eventHandler
	d.mu.RUnlock()
	if handler != nil {
		handler(env.Route, env.Message)
	}
}

// handleInboundRMC verifies and services an inbound $innerRMC$ call,
// replying with the handler's result (or an error envelope) addressed
// to the caller's reqId.
func (d *ClusterDispatcher) handleInboundRMC(s *Session, p *codec.Packet) {
	env, err := decodeEnvelope(p.Message)
	if err != nil || d.sign(env.Route, env.Word) != env.Sign {
		d.ms.removeSession(s, CloseSignError, "sign error")
		return
	}

	d.ms.routerMu.RLock()
	handler, ok := d.ms.remote[env.Route]
	d.ms.routerMu.RUnlock()

	if !ok {
		d.ms.removeSession(s, CloseRemoteError, "unknown remote route")
		return
	}

	result, callErr := handler(env.Route, env.Message)

	if callErr != nil {
		_ = s.Send(codec.RouteResponse, p.ReqID, codec.NewErrorResponse(codec.CodeGatewayTimeout, callErr.Error()))
		return
	}
	_ = s.Send(codec.RouteResponse, p.ReqID, codec.NewResponse(result))
}

func decodeEnvelope(message interface{}) (innerEnvelope, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return innerEnvelope{}, err
	}
	var env innerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return innerEnvelope{}, err
	}
	return env, nil
}
