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

import "sync"

// Channel is a named group of sessions. It is created lazily on first
// join and removed once its member count reaches zero.
type Channel struct {
	Name string

	mu      sync.Mutex
	members map[string]*Session
}

func newChannel(name string) *Channel {
	return &Channel{Name: name, members: make(map[string]*Session)}
}

// Count returns the current member count.
func (c *Channel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

func (c *Channel) add(s *Session) {
	c.mu.Lock()
	c.members[s.id] = s
	c.mu.Unlock()
}

// remove deletes s from the channel and reports whether the channel is
// now empty.
func (c *Channel) remove(s *Session) (empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members, s.id)
	return len(c.members) == 0
}

// Members returns a snapshot slice of the channel's current sessions.
func (c *Channel) Members() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, 0, len(c.members))
	for _, s := range c.members {
		out = append(out, s)
	}
	return out
}
