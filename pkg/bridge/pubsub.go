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

// On registers fn to be called whenever a packet arrives on route that
// is not itself a response to a pending Request. When once is true, fn
// is removed after its first invocation.
func (c *Client) On(route string, once bool, fn func(message interface{})) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[route] = append(c.listeners[route], &listener{fn: fn, once: once})
}

// Off removes every listener registered for route.
func (c *Client) Off(route string) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	delete(c.listeners, route)
}

func (c *Client) fireListeners(route string, message interface{}) {
	c.listenersMu.Lock()
	ls := c.listeners[route]
	if len(ls) == 0 {
		c.listenersMu.Unlock()
		return
	}

	remaining := ls[:0]
	fire := make([]*listener, 0, len(ls))
	for _, l := range ls {
		fire = append(fire, l)
		if !l.once {
			remaining = append(remaining, l)
		}
	}
	if len(remaining) == 0 {
		delete(c.listeners, route)
	} else {
		c.listeners[route] = remaining
	}
	c.listenersMu.Unlock()

	for _, l := range fire {
		l.fn(message)
	}
}
