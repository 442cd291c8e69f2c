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
	"time"

	"github.com/gorilla/websocket"

	"github.com/sage-x-project/wsfabric/internal/logger"
	"github.com/sage-x-project/wsfabric/pkg/codec"
)

func (c *Client) openSocket() {
	conn, _, err := c.dialer.Dial(c.cfg.Host, nil)
	if err != nil {
		c.log.Warn("bridge dial failed", logger.String("host", c.cfg.Host), logger.Error(err))
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
		return
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.stateMu.Lock()
	c.connected = true
	c.retryCount = 0
	c.stateMu.Unlock()

	if c.cb.OnOpen != nil {
		c.cb.OnOpen()
	}

	c.wg.Add(1)
	go c.readLoop(conn)
}

// closeConn closes whatever socket is currently installed, sending the
// given close code, and fires OnClose. A no-op if nothing is connected.
func (c *Client) closeConn(code int, reason string) {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = conn.Close()

	c.stateMu.Lock()
	c.connected = false
	c.stateMu.Unlock()

	if c.cb.OnClose != nil {
		c.cb.OnClose(code, reason)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()

			c.stateMu.Lock()
			c.connected = false
			c.stateMu.Unlock()

			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				if c.cb.OnError != nil {
					c.cb.OnError(err)
				}
				if c.cb.OnClose != nil {
					c.cb.OnClose(CloseError, err.Error())
				}
			} else if c.cb.OnClose != nil {
				c.cb.OnClose(CloseRemote, "remote closed")
			}
			return
		}

		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	p, err := c.codec.Decode(data)
	if err != nil {
		c.log.Debug("bridge decode failed", logger.Error(err))
		if c.cb.OnError != nil {
			c.cb.OnError(errDeserializeError)
		}
		return
	}

	switch p.Route {
	case codec.RouteHeartbeat:
		if sentMs, ok := toInt64(p.Message); ok {
			c.setNetDelay(time.Since(time.UnixMilli(sentMs)))
		}
	case codec.RouteResponse:
		c.handleResponse(p)
	default:
		c.fireListeners(p.Route, p.Message)
	}
}

// send encodes and writes p to the live socket. It silently drops the
// frame when disconnected — the spec's intentional behavior (spec.md §9
// "Open question — unsent requests"): any pending entry for this
// request still resolves via the normal timeout sweep.
func (c *Client) send(p *codec.Packet) {
	data, binary, err := c.codec.Encode(p)
	if err != nil {
		c.log.Error("bridge encode failed", logger.Error(err))
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
		return
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return
	}

	frameType := websocket.TextMessage
	if binary {
		frameType = websocket.BinaryMessage
	}
	if err := conn.WriteMessage(frameType, data); err != nil {
		c.log.Debug("bridge write failed", logger.Error(err))
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
