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

package bridge

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sage-x-project/wsfabric/internal/logger"
	"github.com/sage-x-project/wsfabric/pkg/codec"
)

// Request sends message on route and returns the assigned request id.
// onSuccess/onError are optional; when both are nil the call is
// fire-and-forget and no pending entry is tracked. ctxParam is handed
// back unchanged to whichever callback fires, letting a caller close
// over call-site state without an extra closure allocation.
func (c *Client) Request(route string, message interface{}, onSuccess, onError func(codec.ResponseEnvelope, interface{}), ctxParam interface{}) uint64 {
	reqID := atomic.AddUint64(&c.reqIDInc, 1)

	if onSuccess != nil || onError != nil {
		c.pendingMu.Lock()
		c.pending[reqID] = &pendingRequest{
			submittedAt: time.Now(),
			onSuccess:   onSuccess,
			onError:     onError,
			context:     ctxParam,
		}
		c.pendingMu.Unlock()
	}

	c.send(&codec.Packet{Route: route, ReqID: reqID, Message: message})
	return reqID
}

// handleResponse dispatches an incoming $response$ packet to its
// matching pending request, if any, and records the observed round
// trip as a net delay sample.
func (c *Client) handleResponse(p *codec.Packet) {
	c.pendingMu.Lock()
	pending, ok := c.pending[p.ReqID]
	if ok {
		delete(c.pending, p.ReqID)
	}
	c.pendingMu.Unlock()

	if !ok {
		return
	}

	c.setNetDelay(time.Since(pending.submittedAt))

	var env codec.ResponseEnvelope
	raw, err := json.Marshal(p.Message)
	if err == nil {
		err = json.Unmarshal(raw, &env)
	}
	if err != nil {
		c.log.Debug("bridge response envelope malformed", logger.Error(err))
		if pending.onError != nil {
			pending.onError(codec.NewErrorResponse(codec.CodeGatewayTimeout, "malformed response"), pending.context)
		}
		return
	}

	if env.Code == codec.CodeOK {
		if pending.onSuccess != nil {
			pending.onSuccess(env, pending.context)
		}
	} else if pending.onError != nil {
		pending.onError(env, pending.context)
	}
}
