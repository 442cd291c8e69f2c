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

import "github.com/sage-x-project/wsfabric/pkg/codec"

// Response answers reqID on s's own socket, the counterpart to the
// automatic reply routeUser sends, for handlers that want to respond
// asynchronously instead of via their RouteHandler return value.
func (ms *MessageServer) Response(s *Session, reqID uint64, data interface{}) error {
	return s.Send(codec.RouteResponse, reqID, codec.NewResponse(data))
}

// PushSession sends an unsolicited packet to whichever session is
// currently bound to uid. A no-op, returning nil, if uid is unbound.
func (ms *MessageServer) PushSession(uid, route string, message interface{}) error {
	s, ok := ms.SessionByUID(uid)
	if !ok {
		return nil
	}
	return s.Send(route, 0, message)
}

// PushSessionBatch sends the same packet to every uid in uids that is
// currently bound, collecting and returning the first error
// encountered (if any) while still attempting the rest.
func (ms *MessageServer) PushSessionBatch(uids []string, route string, message interface{}) error {
	var firstErr error
	for _, uid := range uids {
		if err := ms.PushSession(uid, route, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PushChannel sends the same packet to every session currently a
// member of the named channel.
func (ms *MessageServer) PushChannel(name, route string, message interface{}) error {
	ms.mu.RLock()
	ch, ok := ms.channels[name]
	ms.mu.RUnlock()
	if !ok {
		return nil
	}

	var firstErr error
	for _, s := range ch.Members() {
		if err := s.Send(route, 0, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PushChannelCustom sends a per-member payload to every session in the
// named channel, computed by messageFor for each member in turn. Use
// this when recipients need slightly different payloads, e.g. to
// exclude the sender from the "who else is here" field.
func (ms *MessageServer) PushChannelCustom(name, route string, messageFor func(s *Session) interface{}) error {
	ms.mu.RLock()
	ch, ok := ms.channels[name]
	ms.mu.RUnlock()
	if !ok {
		return nil
	}

	var firstErr error
	for _, s := range ch.Members() {
		if err := s.Send(route, 0, messageFor(s)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Broadcast sends the same packet to every currently UID-bound session.
// Sessions without a bound uid are not broadcast targets, per spec.md
// §4.4 — an intentional filter, not an oversight.
func (ms *MessageServer) Broadcast(route string, message interface{}) error {
	ms.mu.RLock()
	sockets := make([]*Session, 0, len(ms.sessions))
	for _, s := range ms.sessions {
		sockets = append(sockets, s)
	}
	ms.mu.RUnlock()

	var firstErr error
	for _, s := range sockets {
		if err := s.Send(route, 0, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
