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
	"sync/atomic"
	"time"

	"github.com/sage-x-project/wsfabric/pkg/codec"
)

// tickLoop drives the once-per-second bookkeeping described in spec.md
// §4.2: timeout sweeping, heartbeats, and the reconnect cadence.
func (c *Client) tickLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			return
		case <-c.ticker.C:
			c.tick()
		}
	}
}

func (c *Client) tick() {
	n := atomic.AddInt64(&c.timerInc, 1)

	c.sweepTimeouts()

	connected := c.IsConnected()

	if connected && c.cfg.Heartick > 0 && n%int64(c.cfg.Heartick) == 0 {
		c.send(&codec.Packet{
			Route:   codec.RouteHeartbeat,
			ReqID:   atomic.AddUint64(&c.reqIDInc, 1),
			Message: time.Now().UnixMilli(),
		})
	}

	c.stateMu.Lock()
	paused := c.paused
	c.stateMu.Unlock()

	if !connected && !paused && c.cfg.Conntick > 0 && n%int64(c.cfg.Conntick) == 0 {
		c.stateMu.Lock()
		c.retryCount++
		attempt := c.retryCount
		c.stateMu.Unlock()

		if c.cb.OnRetry != nil {
			c.cb.OnRetry(attempt)
		}
		c.closeConn(CloseRetry, "stale socket replaced")
		c.openSocket()
	}

	if c.cb.OnTick != nil {
		c.cb.OnTick(n, c.NetDelay())
	}
}

// sweepTimeouts completes any pending request whose age exceeds the
// configured timeout with a 504 Gateway Timeout, per spec.md §8
// invariant 6.
func (c *Client) sweepTimeouts() {
	now := time.Now()

	c.pendingMu.Lock()
	var expired []struct {
		id   uint64
		p    *pendingRequest
	}
	for id, p := range c.pending {
		if now.Sub(p.submittedAt) > c.cfg.Timeout {
			expired = append(expired, struct {
				id uint64
				p  *pendingRequest
			}{id, p})
			delete(c.pending, id)
		}
	}
	c.pendingMu.Unlock()

	for _, e := range expired {
		if e.p.onError != nil {
			e.p.onError(codec.NewErrorResponse(codec.CodeGatewayTimeout, "Gateway Timeout"), e.p.context)
		}
	}
}
