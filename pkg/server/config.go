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

import "time"

const (
	minCycle      = 10 * time.Second
	defaultCycle  = 60 * time.Second
	minTimeout    = 30 * time.Second
	defaultTimeout = 180 * time.Second
)

// Config configures a MessageServer. Zero values are replaced with
// spec.md §4.3's defaults, and the supervisor cycle/session timeout are
// each clamped to their respective floors.
type Config struct {
	Password      string
	Binary        bool
	Cycle         time.Duration // supervisor sweep period, default 60s, floor 10s
	Timeout       time.Duration // session heartbeat timeout, default 180s, floor 30s and 3x Cycle
	ReqIDCache    int           // recent-reqId ring capacity per session, default 32
	ClusterSecret string        // HMAC-free MD5 signing secret for inner cluster envelopes

	// ForwardHeader names an HTTP header (e.g. "X-Forwarded-For") whose
	// first comma-separated value is preferred over the raw TCP peer
	// address when resolving Session.IP (spec.md §3). Empty disables
	// the preference and always uses the TCP peer.
	ForwardHeader string
}

func (c Config) withDefaults() Config {
	if c.Cycle <= 0 {
		c.Cycle = defaultCycle
	}
	if c.Cycle < minCycle {
		c.Cycle = minCycle
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Timeout < minTimeout {
		c.Timeout = minTimeout
	}
	if floor := 3 * c.Cycle; c.Timeout < floor {
		c.Timeout = floor
	}
	if c.ReqIDCache <= 0 {
		c.ReqIDCache = defaultReqIDCache
	}
	return c
}
